// Package exec contains the execution controller: the event-driven state
// machine that turns market data into sliced order requests and tracks
// the run from start to completion. The controller is single-owner
// state; gateways and replayers deliver events into it from one
// goroutine at a time.
package exec

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/execbot/internal/domain"
	"github.com/alanyoungcy/execbot/internal/ledger"
	"github.com/alanyoungcy/execbot/internal/numeric"
	"github.com/alanyoungcy/execbot/internal/sched"
	"github.com/alanyoungcy/execbot/internal/sim"
)

const (
	correlationCancelOpenOrders   = "CANCEL_OPEN_ORDERS"
	correlationGetAccountBalances = "GET_ACCOUNT_BALANCES"
	correlationCreateOrder        = "CREATE_ORDER"
)

// Publisher receives run milestones for external fan-out (Redis stream,
// chat notifications). A nil Publisher disables publishing.
type Publisher interface {
	PublishFill(ctx context.Context, trade domain.PrivateTrade) error
	PublishComplete(ctx context.Context, summary domain.SummaryRow) error
}

// Options carries the per-run parameters the controller needs beyond its
// collaborators.
type Options struct {
	Mode       domain.TradingMode
	Exchange   string
	Instrument string
	BaseAsset  string
	QuoteAsset string
	AccountID  string

	PriceIncrement    decimal.Decimal
	QuantityIncrement decimal.Decimal

	RefreshInterval time.Duration
	// RefreshIntervalOffsetSeconds pins refresh ticks to a wall-clock
	// offset within the interval; -1 uses elapsed time instead.
	RefreshIntervalOffsetSeconds int
	BalanceRefreshWait           time.Duration

	PriceLimits      sched.PriceLimits
	PerOrderCapRatio decimal.Decimal

	// Risk haircuts applied to balances reported by the venue.
	BaseBalanceProportion  decimal.Decimal
	QuoteBalanceProportion decimal.Decimal

	// ImmediatelyPlaceNewOrders restarts the refresh cycle as soon as
	// every open order has filled instead of waiting out the interval.
	ImmediatelyPlaceNewOrders bool
}

// workItem is one queued unit of inbound traffic: either a batch of
// market events or a single request ack, never both.
type workItem struct {
	batch []domain.MarketEvent
	ack   domain.RequestAck
}

// Controller drives one execution run from RUNNING to COMPLETE. All
// processing is synchronous: synthetic events produced while handling an
// item go onto a local FIFO queue that is fully drained before control
// returns, so fills observed mid-batch keep their arrival order and the
// matcher is never re-entered from its own output.
type Controller struct {
	opts     Options
	plan     *sched.Plan
	sizer    sched.ClipSizer
	orders   *ledger.OrderLedger
	balances *ledger.BalanceLedger
	matcher  *sim.Matcher
	gateway  domain.MarketGateway
	recorder domain.Recorder
	pub      Publisher
	logger   *slog.Logger

	snapshot domain.MarketSnapshot

	orderRefreshLastTime       time.Time
	cancelOpenOrdersLastTime   time.Time
	getAccountBalancesLastTime time.Time

	numOpenOrders int

	queue    []workItem
	draining bool

	complete bool
	done     chan struct{}
}

// NewController wires a controller. gateway may be nil in PAPER and
// BACKTEST modes, where every request is looped back locally; pub may be
// nil to disable milestone publishing.
func NewController(
	opts Options,
	plan *sched.Plan,
	sizer sched.ClipSizer,
	orders *ledger.OrderLedger,
	balances *ledger.BalanceLedger,
	gateway domain.MarketGateway,
	recorder domain.Recorder,
	pub Publisher,
	logger *slog.Logger,
) *Controller {
	c := &Controller{
		opts:     opts,
		plan:     plan,
		sizer:    sizer,
		orders:   orders,
		balances: balances,
		gateway:  gateway,
		recorder: recorder,
		pub:      pub,
		logger:   logger.With("component", "controller"),
		done:     make(chan struct{}),
	}
	if opts.Mode.Simulated() {
		c.matcher = sim.NewMatcher(orders, balances)
	}
	return c
}

// Done is closed exactly once, when the run reaches COMPLETE.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Complete reports whether the run has finished.
func (c *Controller) Complete() bool { return c.complete }

// Summary snapshots the final balances, top of book and run accumulators.
func (c *Controller) Summary() domain.SummaryRow {
	return domain.SummaryRow{
		BaseBalance:    numeric.Normalize(c.balances.Base()),
		QuoteBalance:   numeric.Normalize(c.balances.Quote()),
		BestBidPrice:   numeric.Normalize(c.snapshot.BestBidPrice),
		BestAskPrice:   numeric.Normalize(c.snapshot.BestAskPrice),
		VolumeBaseSum:  numeric.Normalize(c.balances.VolumeBase()),
		VolumeQuoteSum: numeric.Normalize(c.balances.VolumeQuote()),
		FeeBaseSum:     numeric.Normalize(c.balances.FeeBase()),
		FeeQuoteSum:    numeric.Normalize(c.balances.FeeQuote()),
	}
}

// ProcessEvents implements domain.EventSink.
func (c *Controller) ProcessEvents(ctx context.Context, batch []domain.MarketEvent) {
	if c.complete || len(batch) == 0 {
		return
	}
	c.queue = append(c.queue, workItem{batch: batch})
	c.drain(ctx)
}

// ProcessAck implements domain.EventSink.
func (c *Controller) ProcessAck(ctx context.Context, ack domain.RequestAck) {
	if c.complete || ack == nil {
		return
	}
	c.queue = append(c.queue, workItem{ack: ack})
	c.drain(ctx)
}

// drain runs queued items until none remain. Re-entrant calls return
// immediately; the outermost drain owns the loop, so items enqueued by a
// nested dispatch run after the item that produced them.
func (c *Controller) drain(ctx context.Context) {
	if c.draining {
		return
	}
	c.draining = true
	defer func() { c.draining = false }()

	for len(c.queue) > 0 {
		item := c.queue[0]
		c.queue = c.queue[1:]
		if c.complete {
			continue
		}
		if item.ack != nil {
			c.handleAck(ctx, item.ack)
		} else {
			c.handleBatch(ctx, item.batch)
		}
	}
}

func (c *Controller) handleBatch(ctx context.Context, batch []domain.MarketEvent) {
	lastDepth := -1
	for i, ev := range batch {
		if _, ok := ev.(domain.DepthUpdate); ok {
			lastDepth = i
		}
	}
	for i, ev := range batch {
		if c.complete {
			return
		}
		switch e := ev.(type) {
		case domain.DepthUpdate:
			c.snapshot = c.snapshot.Apply(e)
			if i == lastDepth {
				c.evaluateRefresh(ctx, e.Time)
			}
		case domain.TradePrint:
			if c.matcher != nil {
				if fills := c.matcher.MatchTrade(e); len(fills) > 0 {
					c.queue = append(c.queue, workItem{batch: fills})
				}
			}
		case domain.PrivateTrade:
			c.handlePrivateTrade(ctx, e)
		case domain.OrderUpdate:
			c.handleOrderUpdate(ctx, e)
		default:
			c.logger.Warn("dropping unknown market event", "type", fmt.Sprintf("%T", ev))
		}
	}
}

func (c *Controller) handlePrivateTrade(ctx context.Context, trade domain.PrivateTrade) {
	c.balances.AccumulatePrivateTrade(trade.Price, trade.Size, trade.FeeQuantity, trade.FeeAsset)
	c.logger.Info("fill",
		"tradeId", trade.TradeID,
		"side", string(trade.Side),
		"price", numeric.Normalize(trade.Price),
		"size", numeric.Normalize(trade.Size),
		"fee", numeric.Normalize(trade.FeeQuantity),
		"feeAsset", trade.FeeAsset,
	)
	row := domain.PrivateTradeRow{
		Time:          trade.Time,
		TradeID:       trade.TradeID,
		Price:         numeric.Normalize(trade.Price),
		Size:          numeric.Normalize(trade.Size),
		Side:          string(trade.Side),
		IsMaker:       trade.IsMaker,
		OrderID:       trade.OrderID,
		ClientOrderID: trade.ClientOrderID,
		FeeQuantity:   numeric.Normalize(trade.FeeQuantity),
		FeeAsset:      trade.FeeAsset,
	}
	if err := c.recorder.RecordPrivateTrade(ctx, row); err != nil {
		c.logger.Error("record private trade", "error", err)
	}
	if c.pub != nil {
		if err := c.pub.PublishFill(ctx, trade); err != nil {
			c.logger.Warn("publish fill", "error", err)
		}
	}
}

func (c *Controller) handleOrderUpdate(ctx context.Context, update domain.OrderUpdate) {
	order := update.Order
	if c.opts.Mode == domain.ModeLive {
		c.orders.Sync(order)
	}
	row := domain.OrderUpdateRow{
		Time:                     update.Time,
		OrderID:                  order.OrderID,
		ClientOrderID:            order.ClientOrderID,
		Side:                     string(order.Side),
		LimitPrice:               numeric.Normalize(order.LimitPrice),
		Quantity:                 numeric.Normalize(order.Quantity),
		RemainingQuantity:        numeric.Normalize(order.RemainingQuantity),
		CumulativeFilledQuantity: numeric.Normalize(order.CumulativeFilledQuantity),
		CumulativeFilledNotional: numeric.Normalize(order.CumulativeFilledQuantity.Mul(order.LimitPrice)),
		Status:                   string(order.Status),
	}
	if err := c.recorder.RecordOrderUpdate(ctx, row); err != nil {
		c.logger.Error("record order update", "error", err)
	}
	if order.Status != domain.OrderStatusFilled {
		return
	}
	if c.numOpenOrders > 0 {
		c.numOpenOrders--
	}
	if c.numOpenOrders == 0 {
		c.logger.Info("all open orders filled")
		if c.opts.ImmediatelyPlaceNewOrders {
			// Restart the cycle from the fill time instead of waiting for
			// the next interval tick.
			c.orderRefreshLastTime = update.Time
			c.cancelOpenOrdersLastTime = update.Time
			if c.opts.BalanceRefreshWait == 0 {
				c.requestBalances(ctx, update.Time)
			}
		}
	}
}

// evaluateRefresh runs the refresh-cycle timing checks. Called once per
// batch, on the message carrying the latest depth snapshot.
func (c *Controller) evaluateRefresh(ctx context.Context, now time.Time) {
	if c.refreshDue(now) {
		c.orderRefreshLastTime = now
		c.cancelOpenOrdersLastTime = now
		if c.numOpenOrders != 0 {
			c.numOpenOrders = 0
			c.dispatch(ctx, []domain.OrderRequest{domain.CancelOpenOrders{
				CorrelationID: correlationID(now, correlationCancelOpenOrders),
				Time:          now,
			}})
		}
		if c.opts.BalanceRefreshWait == 0 {
			c.requestBalances(ctx, now)
		}
		return
	}
	// Deferred balance refresh: the configured wait after the last cancel
	// has passed, no balance refresh has happened since that cancel, and
	// the wait window still falls inside the current refresh cycle.
	if !c.cancelOpenOrdersLastTime.IsZero() &&
		now.Sub(c.cancelOpenOrdersLastTime) >= c.opts.BalanceRefreshWait &&
		c.getAccountBalancesLastTime.Before(c.cancelOpenOrdersLastTime) &&
		!c.cancelOpenOrdersLastTime.Add(c.opts.BalanceRefreshWait).Before(c.orderRefreshLastTime) {
		c.requestBalances(ctx, now)
	}
}

func (c *Controller) refreshDue(now time.Time) bool {
	if c.opts.RefreshIntervalOffsetSeconds < 0 {
		return c.orderRefreshLastTime.IsZero() ||
			now.Sub(c.orderRefreshLastTime) >= c.opts.RefreshInterval
	}
	intervalSeconds := int64(c.opts.RefreshInterval / time.Second)
	if intervalSeconds <= 0 {
		return false
	}
	if !c.orderRefreshLastTime.IsZero() && now.Sub(c.orderRefreshLastTime) < time.Second {
		return false
	}
	return now.Unix()%intervalSeconds == int64(c.opts.RefreshIntervalOffsetSeconds)
}

// requestBalances emits the balance request, then advances the interval
// and runs the termination check. The request still goes out when the
// run completes on this cycle; its ack is simply ignored.
func (c *Controller) requestBalances(ctx context.Context, now time.Time) {
	c.getAccountBalancesLastTime = now
	c.dispatch(ctx, []domain.OrderRequest{domain.GetAccountBalances{
		AccountID:     c.opts.AccountID,
		CorrelationID: correlationID(now, correlationGetAccountBalances),
		Time:          now,
	}})
	c.plan.AdvanceInterval()
	if c.plan.Terminal(now) {
		c.markComplete(ctx, now)
	}
}

func (c *Controller) handleAck(ctx context.Context, ack domain.RequestAck) {
	switch a := ack.(type) {
	case domain.BalancesResponse:
		c.handleBalances(ctx, a)
	case domain.CreateOrderResponse:
		if c.opts.Mode == domain.ModeLive {
			c.orders.Sync(a.Order)
		}
		c.logger.Debug("order created", "order", a.Order.String())
	case domain.CancelResponse:
		if c.opts.Mode == domain.ModeLive {
			for _, o := range a.Orders {
				c.orders.Sync(o)
			}
		}
		c.logger.Debug("open orders cancelled", "count", len(a.Orders))
	case domain.ErrorResponse:
		c.logger.Warn("request rejected", "correlationId", a.AckCorrelation(), "message", a.Message)
	default:
		c.logger.Warn("dropping unknown ack", "type", fmt.Sprintf("%T", ack))
	}
}

func (c *Controller) handleBalances(ctx context.Context, resp domain.BalancesResponse) {
	if c.opts.Mode == domain.ModeLive {
		base := resp.Balances[c.opts.BaseAsset].Mul(c.opts.BaseBalanceProportion)
		quote := resp.Balances[c.opts.QuoteAsset].Mul(c.opts.QuoteBalanceProportion)
		c.balances.SetBalances(base, quote)
	}
	row := domain.BalanceRow{
		Time:         resp.Time,
		BaseBalance:  numeric.Normalize(c.balances.Base()),
		QuoteBalance: numeric.Normalize(c.balances.Quote()),
		BestBidPrice: numeric.Normalize(c.snapshot.BestBidPrice),
		BestAskPrice: numeric.Normalize(c.snapshot.BestAskPrice),
	}
	if err := c.recorder.RecordBalance(ctx, row); err != nil {
		c.logger.Error("record balance", "error", err)
	}
	c.placeOrders(ctx, resp.Time)
}

// placeOrders runs one sizing pass and emits at most one create request.
// Skips, never aborts: missing market data, an empty account or a
// zero-sized clip just mean no order this interval.
func (c *Controller) placeOrders(ctx context.Context, now time.Time) {
	if !c.snapshot.HasBothSides() {
		c.logger.Warn("skipping interval", "reason", domain.ErrMissingMarketData.Error())
		return
	}
	if c.balances.Empty() {
		c.logger.Warn("skipping interval", "reason", domain.ErrEmptyAccount.Error())
		return
	}
	mid := numeric.MidPrice(c.snapshot.BestBidPrice, c.snapshot.BestAskPrice)
	price := sched.TargetPrice(c.plan.Side, mid, c.opts.PriceLimits, c.opts.PriceIncrement)

	raw, err := c.sizer.ClipQuantity(c.plan, price)
	if err != nil {
		c.logger.Error("clip sizing", "error", err)
		return
	}
	clamped := sched.ClampQuantity(c.plan, raw, price, c.balances.Base(), c.balances.Quote(), c.opts.PerOrderCapRatio)
	quantity := numeric.RoundToIncrement(clamped, c.opts.QuantityIncrement, false)
	if numeric.Normalize(quantity) == "0" || quantity.IsNegative() {
		return
	}

	if c.plan.QuoteDenominated() {
		if !c.plan.TryCommitQuote(price.Mul(quantity)) {
			return
		}
	} else {
		c.plan.CommitBase(quantity)
	}

	c.logger.Info("placing clip",
		"interval", c.plan.RefreshIntervalIndex,
		"side", string(c.plan.Side),
		"price", numeric.Normalize(price),
		"quantity", numeric.Normalize(quantity),
	)
	c.dispatch(ctx, []domain.OrderRequest{domain.CreateOrder{
		Side:          c.plan.Side,
		Price:         price,
		Quantity:      quantity,
		ClientOrderID: c.clientOrderID(now, price, quantity),
		CorrelationID: correlationID(now, correlationCreateOrder),
		Time:          now,
	}})
	c.numOpenOrders = 1
}

// dispatch hands requests to the live gateway or, in simulated modes,
// converts each one synchronously into the synthetic events and ack the
// venue would have produced, enqueued for the drain loop.
func (c *Controller) dispatch(ctx context.Context, reqs []domain.OrderRequest) {
	if c.opts.Mode == domain.ModeLive {
		if err := c.gateway.SendRequests(ctx, reqs); err != nil {
			c.logger.Error("send requests", "error", err)
		}
		return
	}
	for _, req := range reqs {
		switch r := req.(type) {
		case domain.GetAccountBalances:
			c.loopbackBalances(r)
		case domain.CreateOrder:
			c.loopbackCreate(r)
		case domain.CancelOpenOrders:
			c.loopbackCancel(r)
		}
	}
}

// loopbackBalances reports balances the way the venue would: with the
// risk haircut divided back out, so applying the configured proportions
// on receipt lands on the ledger's true values.
func (c *Controller) loopbackBalances(req domain.GetAccountBalances) {
	base := c.balances.Base()
	if c.opts.BaseBalanceProportion.IsPositive() {
		base = base.Div(c.opts.BaseBalanceProportion)
	}
	quote := c.balances.Quote()
	if c.opts.QuoteBalanceProportion.IsPositive() {
		quote = quote.Div(c.opts.QuoteBalanceProportion)
	}
	c.queue = append(c.queue, workItem{ack: domain.BalancesResponse{
		Balances: map[string]decimal.Decimal{
			c.opts.BaseAsset:  base,
			c.opts.QuoteAsset: quote,
		},
		CorrelationID: req.CorrelationID,
		Time:          req.Time,
	}})
}

func (c *Controller) loopbackCreate(req domain.CreateOrder) {
	if err := c.balances.CheckSufficient(req.Side, req.Price, req.Quantity); err != nil {
		c.queue = append(c.queue, workItem{ack: domain.ErrorResponse{
			Message:       "Insufficient balance.",
			CorrelationID: req.CorrelationID,
			Time:          req.Time,
		}})
		return
	}
	order := c.orders.Place(req.Side, req.Price, req.Quantity, req.ClientOrderID)
	c.queue = append(c.queue,
		workItem{batch: []domain.MarketEvent{domain.OrderUpdate{Order: order, Time: req.Time}}},
		workItem{ack: domain.CreateOrderResponse{Order: order, CorrelationID: req.CorrelationID, Time: req.Time}},
	)
}

func (c *Controller) loopbackCancel(req domain.CancelOpenOrders) {
	cancelled := c.orders.CancelAll()
	for _, o := range cancelled {
		c.queue = append(c.queue, workItem{
			batch: []domain.MarketEvent{domain.OrderUpdate{Order: o, Time: req.Time}},
		})
	}
	c.queue = append(c.queue, workItem{ack: domain.CancelResponse{
		Orders:        cancelled,
		CorrelationID: req.CorrelationID,
		Time:          req.Time,
	}})
}

func (c *Controller) markComplete(ctx context.Context, now time.Time) {
	c.complete = true
	c.logger.Info("run complete",
		"intervals", c.plan.RefreshIntervalIndex+1,
		"elapsed", now.Sub(c.plan.StartTime).String(),
		"volumeBase", numeric.Normalize(c.balances.VolumeBase()),
		"volumeQuote", numeric.Normalize(c.balances.VolumeQuote()),
	)
	if c.pub != nil {
		if err := c.pub.PublishComplete(ctx, c.Summary()); err != nil {
			c.logger.Warn("publish completion", "error", err)
		}
	}
	close(c.done)
}

// clientOrderID builds an id in the shape the venue expects. Backtests
// use a deterministic timestamp_side form so replayed runs produce
// stable artifacts.
func (c *Controller) clientOrderID(now time.Time, price, quantity decimal.Decimal) string {
	if c.opts.Mode == domain.ModeBacktest {
		return now.UTC().Format("2006-01-02T15:04:05Z") + "_" + string(c.plan.Side)
	}
	switch strings.ToLower(c.opts.Exchange) {
	case "coinbase":
		return uuid.NewString()
	case "kraken":
		return strconv.FormatInt(now.Unix(), 10)
	case "gateio":
		return "t-" + strconv.FormatInt(now.Unix(), 10)
	default:
		return c.opts.Instrument + "_" + now.UTC().Format("2006-01-02T15:04:05Z") + "_" +
			string(c.plan.Side) + "_" + numeric.Normalize(price) + "_" + numeric.Normalize(quantity)
	}
}

func correlationID(now time.Time, suffix string) string {
	return now.UTC().Format("2006-01-02T15:04:05Z") + "-" + suffix
}
