package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketEvent is a single message delivered by the market gateway (or
// synthesized by the virtual matcher). Events arrive in batches; the
// controller processes each batch strictly in arrival order.
type MarketEvent interface {
	EventTime() time.Time
}

// DepthUpdate carries the latest top-of-book quote.
type DepthUpdate struct {
	BestBidPrice decimal.Decimal
	BestBidSize  decimal.Decimal
	BestAskPrice decimal.Decimal
	BestAskSize  decimal.Decimal
	Time         time.Time
}

func (e DepthUpdate) EventTime() time.Time { return e.Time }

// TradePrint is one public trade from the tape. IsBuyerMaker reports
// whether the passive side of the print was a buyer.
type TradePrint struct {
	Price        decimal.Decimal
	Size         decimal.Decimal
	IsBuyerMaker bool
	Time         time.Time
}

func (e TradePrint) EventTime() time.Time { return e.Time }

// PrivateTrade is one fill of our own order.
type PrivateTrade struct {
	TradeID       string
	Price         decimal.Decimal
	Size          decimal.Decimal
	Side          Side
	IsMaker       bool
	OrderID       string
	ClientOrderID string
	FeeQuantity   decimal.Decimal
	FeeAsset      string
	Time          time.Time
}

func (e PrivateTrade) EventTime() time.Time { return e.Time }

// OrderUpdate carries the post-transition state of one of our orders.
type OrderUpdate struct {
	Order Order
	Time  time.Time
}

func (e OrderUpdate) EventTime() time.Time { return e.Time }

// MarketSnapshot is the last-known top of book. A zero price on either
// side means that side is not yet known.
type MarketSnapshot struct {
	BestBidPrice decimal.Decimal
	BestBidSize  decimal.Decimal
	BestAskPrice decimal.Decimal
	BestAskSize  decimal.Decimal
}

// HasBothSides reports whether bid and ask are both known.
func (s MarketSnapshot) HasBothSides() bool {
	return s.BestBidPrice.IsPositive() && s.BestAskPrice.IsPositive()
}

// Apply folds a depth update into the snapshot, keeping previous values
// for any field the update does not carry.
func (s MarketSnapshot) Apply(d DepthUpdate) MarketSnapshot {
	if d.BestBidPrice.IsPositive() {
		s.BestBidPrice = d.BestBidPrice
		s.BestBidSize = d.BestBidSize
	}
	if d.BestAskPrice.IsPositive() {
		s.BestAskPrice = d.BestAskPrice
		s.BestAskSize = d.BestAskSize
	}
	return s
}
