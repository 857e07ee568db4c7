// Package ledger tracks open-order state and asset balances for a single
// instrument execution run. Both ledgers are plain single-owner state:
// the execution controller is the only writer, so no locking is needed.
package ledger

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/execbot/internal/domain"
)

// OrderLedger holds at most one open order per side. The open order is an
// explicit present/absent value replaced wholesale on each transition;
// callers receive copies and never mutate ledger state in place.
type OrderLedger struct {
	buy  *domain.Order
	sell *domain.Order

	// nextOrderID is the synthetic order id counter for self-generated
	// orders (paper/backtest). Instance-owned so parallel runs don't
	// collide.
	nextOrderID int64
}

// NewOrderLedger returns an empty ledger.
func NewOrderLedger() *OrderLedger {
	return &OrderLedger{}
}

// Open returns the open order for the side, if any.
func (l *OrderLedger) Open(side domain.Side) (domain.Order, bool) {
	if o := l.slot(side); *o != nil {
		return **o, true
	}
	return domain.Order{}, false
}

// HasOpen reports whether either side has an open order.
func (l *OrderLedger) HasOpen() bool {
	return l.buy != nil || l.sell != nil
}

// Place constructs a NEW order with a fresh synthetic id and makes it the
// side's open order. The caller must have cancelled any previous order on
// that side first; Place does not check, matching the single-order-per-
// side execution model where a double place is a caller bug.
func (l *OrderLedger) Place(side domain.Side, limitPrice, quantity decimal.Decimal, clientOrderID string) domain.Order {
	l.nextOrderID++
	order := domain.Order{
		OrderID:                  strconv.FormatInt(l.nextOrderID, 10),
		ClientOrderID:            clientOrderID,
		Side:                     side,
		LimitPrice:               limitPrice,
		Quantity:                 quantity,
		CumulativeFilledQuantity: decimal.Zero,
		RemainingQuantity:        quantity,
		Status:                   domain.OrderStatusNew,
	}
	*l.slot(side) = &order
	return order
}

// ApplyFill applies a fill of up to fillQuantity against the side's open
// order. A fill that meets or exceeds the remaining quantity closes the
// order: remaining is forced to zero and cumulative filled to the
// original quantity, clamping rather than summing so tape or rounding
// residue can never break the quantity invariant. It returns the
// post-fill order, the quantity actually filled, and whether an open
// order existed.
func (l *OrderLedger) ApplyFill(side domain.Side, fillQuantity decimal.Decimal) (domain.Order, decimal.Decimal, bool) {
	slot := l.slot(side)
	if *slot == nil {
		return domain.Order{}, decimal.Zero, false
	}
	order := **slot
	var filled decimal.Decimal
	if fillQuantity.LessThan(order.RemainingQuantity) {
		filled = fillQuantity
		order.CumulativeFilledQuantity = order.CumulativeFilledQuantity.Add(filled)
		order.RemainingQuantity = order.RemainingQuantity.Sub(filled)
		order.Status = domain.OrderStatusPartiallyFilled
		*slot = &order
	} else {
		filled = order.RemainingQuantity
		order.CumulativeFilledQuantity = order.Quantity
		order.RemainingQuantity = decimal.Zero
		order.Status = domain.OrderStatusFilled
		*slot = nil
	}
	return order, filled, true
}

// Sync overwrites the side's open-order slot from a venue-reported order
// state. Terminal statuses clear the slot; open statuses replace it
// wholesale. Used in live trading, where the exchange is authoritative.
func (l *OrderLedger) Sync(order domain.Order) {
	slot := l.slot(order.Side)
	switch order.Status {
	case domain.OrderStatusFilled, domain.OrderStatusCanceled:
		*slot = nil
	default:
		copied := order
		*slot = &copied
	}
}

// Cancel marks the side's open order CANCELED and clears it. Cancelling
// when no order is open is a no-op.
func (l *OrderLedger) Cancel(side domain.Side) (domain.Order, bool) {
	slot := l.slot(side)
	if *slot == nil {
		return domain.Order{}, false
	}
	order := **slot
	order.Status = domain.OrderStatusCanceled
	*slot = nil
	return order, true
}

// CancelAll cancels both sides and returns the cancelled orders, buy
// side first.
func (l *OrderLedger) CancelAll() []domain.Order {
	var cancelled []domain.Order
	if o, ok := l.Cancel(domain.SideBuy); ok {
		cancelled = append(cancelled, o)
	}
	if o, ok := l.Cancel(domain.SideSell); ok {
		cancelled = append(cancelled, o)
	}
	return cancelled
}

func (l *OrderLedger) slot(side domain.Side) **domain.Order {
	if side == domain.SideBuy {
		return &l.buy
	}
	return &l.sell
}
