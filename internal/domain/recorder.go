package domain

import (
	"context"
	"time"
)

// PrivateTradeRow is one recorded fill. All numeric columns are already
// normalized decimal strings; the recorder never does arithmetic.
type PrivateTradeRow struct {
	Time          time.Time
	TradeID       string
	Price         string
	Size          string
	Side          string
	IsMaker       bool
	OrderID       string
	ClientOrderID string
	FeeQuantity   string
	FeeAsset      string
}

// OrderUpdateRow is one recorded order transition.
type OrderUpdateRow struct {
	Time                     time.Time
	OrderID                  string
	ClientOrderID            string
	Side                     string
	LimitPrice               string
	Quantity                 string
	RemainingQuantity        string
	CumulativeFilledQuantity string
	CumulativeFilledNotional string
	Status                   string
}

// BalanceRow is one recorded account-balance snapshot together with the
// top of book at the time it was taken.
type BalanceRow struct {
	Time         time.Time
	BaseBalance  string
	QuoteBalance string
	BestBidPrice string
	BestAskPrice string
}

// SummaryRow is the single final row written at backtest completion.
type SummaryRow struct {
	BaseBalance    string
	QuoteBalance   string
	BestBidPrice   string
	BestAskPrice   string
	VolumeBaseSum  string
	VolumeQuoteSum string
	FeeBaseSum     string
	FeeQuoteSum    string
}

// Recorder persists rows of already-computed execution data. CSV and
// PostgreSQL implementations exist; a MultiRecorder fans out to several.
type Recorder interface {
	RecordPrivateTrade(ctx context.Context, row PrivateTradeRow) error
	RecordOrderUpdate(ctx context.Context, row OrderUpdateRow) error
	RecordBalance(ctx context.Context, row BalanceRow) error
	RecordSummary(ctx context.Context, row SummaryRow) error
	Close() error
}
