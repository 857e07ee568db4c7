// Package sim contains the virtual matching engine used in paper and
// backtest modes. It is trade-tape driven and maker-only: resting
// orders fill against incoming public prints at their own limit price,
// never at the tape price, and no order-book depth is reconstructed.
package sim

import (
	"strconv"

	"github.com/alanyoungcy/execbot/internal/domain"
	"github.com/alanyoungcy/execbot/internal/ledger"
)

// Matcher fills resting orders against the public trade tape. It owns
// the synthetic trade id counter and mutates the order and balance
// ledgers as one logical step per fill.
type Matcher struct {
	orders   *ledger.OrderLedger
	balances *ledger.BalanceLedger

	nextTradeID int64
}

// NewMatcher creates a matcher operating on the given ledgers.
func NewMatcher(orders *ledger.OrderLedger, balances *ledger.BalanceLedger) *Matcher {
	return &Matcher{orders: orders, balances: balances}
}

// MatchTrade consumes one public print. A buyer-maker print is a taker
// sell and can only fill our open BUY order; a seller-maker print can
// only fill our open SELL order. The fill quantity is the smaller of
// the print size and the order's remaining quantity; leftover print
// size is not re-matched against a replacement order in the same pass.
//
// On a fill it returns the synthesized private-trade and order-update
// events, in that order, for the controller to re-enter; otherwise nil.
func (m *Matcher) MatchTrade(print domain.TradePrint) []domain.MarketEvent {
	var side domain.Side
	if print.IsBuyerMaker {
		side = domain.SideBuy
	} else {
		side = domain.SideSell
	}

	open, ok := m.orders.Open(side)
	if !ok {
		return nil
	}
	// The maker never receives price improvement: a buy rests at or
	// above the taker price, a sell at or below it, and the fill always
	// happens at the resting order's limit.
	if side == domain.SideBuy && print.Price.GreaterThan(open.LimitPrice) {
		return nil
	}
	if side == domain.SideSell && print.Price.LessThan(open.LimitPrice) {
		return nil
	}

	order, filled, _ := m.orders.ApplyFill(side, print.Size)
	feeQuantity, feeAsset := m.balances.ApplyMakerFill(side, order.LimitPrice, filled)

	m.nextTradeID++
	privateTrade := domain.PrivateTrade{
		TradeID:       strconv.FormatInt(m.nextTradeID, 10),
		Price:         order.LimitPrice,
		Size:          filled,
		Side:          order.Side,
		IsMaker:       true,
		OrderID:       order.OrderID,
		ClientOrderID: order.ClientOrderID,
		FeeQuantity:   feeQuantity,
		FeeAsset:      feeAsset,
		Time:          print.Time,
	}
	orderUpdate := domain.OrderUpdate{Order: order, Time: print.Time}
	return []domain.MarketEvent{privateTrade, orderUpdate}
}
