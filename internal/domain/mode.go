package domain

// TradingMode selects where orders go and where fills come from. The
// execution core behaves identically in all three; only the gateway
// boundary changes.
type TradingMode string

const (
	// ModeLive trades real orders on the exchange.
	ModeLive TradingMode = "LIVE"
	// ModePaper consumes live market data but simulates fills locally.
	ModePaper TradingMode = "PAPER"
	// ModeBacktest replays historical market data and simulates fills.
	ModeBacktest TradingMode = "BACKTEST"
)

// Simulated reports whether fills come from the virtual matcher rather
// than the venue.
func (m TradingMode) Simulated() bool {
	return m == ModePaper || m == ModeBacktest
}
