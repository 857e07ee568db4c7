package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest is a request the controller emits toward the market
// gateway. In LIVE mode requests are sent over the wire; in PAPER and
// BACKTEST modes each request is converted synchronously into the
// corresponding synthetic events before control returns to the caller.
// The correlation id pairs a request with its eventual acknowledgement.
type OrderRequest interface {
	Correlation() string
	SentAt() time.Time
}

// CreateOrder places a new limit order.
type CreateOrder struct {
	Side          Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	ClientOrderID string
	CorrelationID string
	Time          time.Time
}

func (r CreateOrder) Correlation() string { return r.CorrelationID }
func (r CreateOrder) SentAt() time.Time   { return r.Time }

// CancelOpenOrders cancels every open order on the instrument.
type CancelOpenOrders struct {
	CorrelationID string
	Time          time.Time
}

func (r CancelOpenOrders) Correlation() string { return r.CorrelationID }
func (r CancelOpenOrders) SentAt() time.Time   { return r.Time }

// GetAccountBalances requests the available balances for the account.
type GetAccountBalances struct {
	AccountID     string
	CorrelationID string
	Time          time.Time
}

func (r GetAccountBalances) Correlation() string { return r.CorrelationID }
func (r GetAccountBalances) SentAt() time.Time   { return r.Time }

// RequestAck is the acknowledgement for a previously sent OrderRequest.
type RequestAck interface {
	AckCorrelation() string
	AckTime() time.Time
}

// BalancesResponse reports the quantity available for trading per asset.
type BalancesResponse struct {
	Balances      map[string]decimal.Decimal
	CorrelationID string
	Time          time.Time
}

func (a BalancesResponse) AckCorrelation() string { return a.CorrelationID }
func (a BalancesResponse) AckTime() time.Time     { return a.Time }

// CreateOrderResponse acknowledges order creation.
type CreateOrderResponse struct {
	Order         Order
	CorrelationID string
	Time          time.Time
}

func (a CreateOrderResponse) AckCorrelation() string { return a.CorrelationID }
func (a CreateOrderResponse) AckTime() time.Time     { return a.Time }

// CancelResponse acknowledges an open-orders cancellation and carries the
// final state of every order that was cancelled.
type CancelResponse struct {
	Orders        []Order
	CorrelationID string
	Time          time.Time
}

func (a CancelResponse) AckCorrelation() string { return a.CorrelationID }
func (a CancelResponse) AckTime() time.Time     { return a.Time }

// ErrorResponse reports a request that the venue rejected. The controller
// logs it and leaves open-order accounting untouched until a
// corroborating order update arrives; it never retries on its own.
type ErrorResponse struct {
	Message       string
	CorrelationID string
	Time          time.Time
}

func (a ErrorResponse) AckCorrelation() string { return a.CorrelationID }
func (a ErrorResponse) AckTime() time.Time     { return a.Time }
