package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side indicates whether an order buys or sells the base asset.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus tracks the order lifecycle. It is a pure function of the
// filled/remaining quantities: FILLED once remaining reaches zero,
// PARTIALLY_FILLED while 0 < filled < quantity.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
)

// Order is a limit order tracked by the execution engine. Instances are
// value types replaced wholesale on every mutation; nothing aliases the
// open order held by the ledger.
//
// Invariant: Quantity == CumulativeFilledQuantity + RemainingQuantity.
type Order struct {
	OrderID                  string
	ClientOrderID            string
	Side                     Side
	LimitPrice               decimal.Decimal
	Quantity                 decimal.Decimal
	CumulativeFilledQuantity decimal.Decimal
	RemainingQuantity        decimal.Decimal
	Status                   OrderStatus
}

// String returns a compact human-readable description for logging.
func (o Order) String() string {
	return fmt.Sprintf("Order(id=%s, clientId=%s, side=%s, price=%s, quantity=%s, filled=%s, remaining=%s, status=%s)",
		o.OrderID, o.ClientOrderID, o.Side, o.LimitPrice, o.Quantity,
		o.CumulativeFilledQuantity, o.RemainingQuantity, o.Status)
}
