package exec

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/execbot/internal/domain"
	"github.com/alanyoungcy/execbot/internal/ledger"
	"github.com/alanyoungcy/execbot/internal/sched"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type memRecorder struct {
	trades   []domain.PrivateTradeRow
	updates  []domain.OrderUpdateRow
	balances []domain.BalanceRow
	summary  []domain.SummaryRow
}

func (r *memRecorder) RecordPrivateTrade(_ context.Context, row domain.PrivateTradeRow) error {
	r.trades = append(r.trades, row)
	return nil
}

func (r *memRecorder) RecordOrderUpdate(_ context.Context, row domain.OrderUpdateRow) error {
	r.updates = append(r.updates, row)
	return nil
}

func (r *memRecorder) RecordBalance(_ context.Context, row domain.BalanceRow) error {
	r.balances = append(r.balances, row)
	return nil
}

func (r *memRecorder) RecordSummary(_ context.Context, row domain.SummaryRow) error {
	r.summary = append(r.summary, row)
	return nil
}

func (r *memRecorder) Close() error { return nil }

type captureGateway struct {
	sent []domain.OrderRequest
}

func (g *captureGateway) SendRequests(_ context.Context, reqs []domain.OrderRequest) error {
	g.sent = append(g.sent, reqs...)
	return nil
}

type fixture struct {
	c        *Controller
	orders   *ledger.OrderLedger
	balances *ledger.BalanceLedger
	rec      *memRecorder
	gw       *captureGateway
}

func testOptions(mode domain.TradingMode) Options {
	return Options{
		Mode:                         mode,
		Exchange:                     "binance",
		Instrument:                   "BTCUSDT",
		BaseAsset:                    "BTC",
		QuoteAsset:                   "USDT",
		PriceIncrement:               dec("0.01"),
		QuantityIncrement:            dec("0.0001"),
		RefreshInterval:              60 * time.Second,
		RefreshIntervalOffsetSeconds: -1,
		BalanceRefreshWait:           0,
		PriceLimits:                  sched.PriceLimits{RelativeToMid: decimal.Zero, Absolute: decimal.Zero},
		PerOrderCapRatio:             dec("1"),
		BaseBalanceProportion:        dec("1"),
		QuoteBalanceProportion:       dec("1"),
	}
}

func newFixture(t *testing.T, opts Options, plan *sched.Plan) *fixture {
	t.Helper()
	orders := ledger.NewOrderLedger()
	balances := ledger.NewBalanceLedger(opts.BaseAsset, opts.QuoteAsset, ledger.FeeSchedule{
		MakerBuyerFeeAsset:  opts.QuoteAsset,
		MakerSellerFeeAsset: opts.QuoteAsset,
	})
	rec := &memRecorder{}
	gw := &captureGateway{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sizer := sched.NewTWAP(0, 1)
	c := NewController(opts, plan, sizer, orders, balances, gw, rec, nil, logger)
	return &fixture{c: c, orders: orders, balances: balances, rec: rec, gw: gw}
}

func depthAt(ts time.Time, bid, ask string) domain.DepthUpdate {
	return domain.DepthUpdate{
		BestBidPrice: dec(bid), BestBidSize: dec("1"),
		BestAskPrice: dec(ask), BestAskSize: dec("1"),
		Time: ts,
	}
}

func TestFullMakerFill(t *testing.T) {
	plan := sched.NewPlan(domain.SideBuy, dec("100"), decimal.Zero, t0, time.Hour, time.Minute, 60)
	f := newFixture(t, testOptions(domain.ModePaper), plan)
	f.balances.SetBalances(decimal.Zero, dec("1000"))
	f.orders.Place(domain.SideBuy, dec("100"), dec("5"), "c1")

	f.c.ProcessEvents(context.Background(), []domain.MarketEvent{
		domain.TradePrint{Price: dec("99"), Size: dec("10"), IsBuyerMaker: true, Time: t0},
	})

	if len(f.rec.trades) != 1 || len(f.rec.updates) != 1 {
		t.Fatalf("rows = %d trades, %d updates, want 1 and 1", len(f.rec.trades), len(f.rec.updates))
	}
	trade, update := f.rec.trades[0], f.rec.updates[0]
	if trade.Price != "100" || trade.Size != "5" {
		t.Errorf("trade row = %s@%s, want 5@100", trade.Size, trade.Price)
	}
	if update.Status != "FILLED" || update.CumulativeFilledQuantity != "5" {
		t.Errorf("update row status=%s filled=%s, want FILLED/5", update.Status, update.CumulativeFilledQuantity)
	}
	if !f.balances.Base().Equal(dec("5")) || !f.balances.Quote().Equal(dec("500")) {
		t.Errorf("balances = %s/%s, want 5/500", f.balances.Base(), f.balances.Quote())
	}
	if f.orders.HasOpen() {
		t.Error("no order should remain open after a full fill")
	}
}

func TestPartialMakerFill(t *testing.T) {
	plan := sched.NewPlan(domain.SideBuy, dec("100"), decimal.Zero, t0, time.Hour, time.Minute, 60)
	f := newFixture(t, testOptions(domain.ModePaper), plan)
	f.balances.SetBalances(decimal.Zero, dec("1000"))
	f.orders.Place(domain.SideBuy, dec("100"), dec("5"), "c1")

	f.c.ProcessEvents(context.Background(), []domain.MarketEvent{
		domain.TradePrint{Price: dec("99"), Size: dec("2"), IsBuyerMaker: true, Time: t0},
	})

	if len(f.rec.updates) != 1 || f.rec.updates[0].Status != "PARTIALLY_FILLED" {
		t.Fatalf("expected one PARTIALLY_FILLED update, got %+v", f.rec.updates)
	}
	open, ok := f.orders.Open(domain.SideBuy)
	if !ok {
		t.Fatal("order should stay open")
	}
	if !open.RemainingQuantity.Equal(dec("3")) || !open.CumulativeFilledQuantity.Equal(dec("2")) {
		t.Errorf("open order remaining=%s filled=%s, want 3/2", open.RemainingQuantity, open.CumulativeFilledQuantity)
	}
}

func TestRefreshCycleEmitsCancelThenBalances(t *testing.T) {
	plan := sched.NewPlan(domain.SideBuy, dec("100"), decimal.Zero, t0, time.Hour, time.Minute, 60)
	f := newFixture(t, testOptions(domain.ModeLive), plan)
	ctx := context.Background()

	// First depth message triggers the initial refresh. Nothing is
	// resting yet, so no cancel goes out.
	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(t0, "99", "101")})
	if len(f.gw.sent) != 1 {
		t.Fatalf("requests = %d, want balances only", len(f.gw.sent))
	}
	if _, ok := f.gw.sent[0].(domain.GetAccountBalances); !ok {
		t.Errorf("first request is %T, want GetAccountBalances", f.gw.sent[0])
	}

	// Mid-interval depth does not re-trigger.
	f.gw.sent = nil
	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(t0.Add(30*time.Second), "99", "101")})
	if len(f.gw.sent) != 0 {
		t.Fatalf("mid-interval requests = %d, want 0", len(f.gw.sent))
	}

	// With a clip resting, the next cycle cancels it before refreshing.
	f.c.numOpenOrders = 1
	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(t0.Add(61*time.Second), "99", "101")})
	if len(f.gw.sent) != 2 {
		t.Fatalf("post-interval requests = %d, want cancel + balances", len(f.gw.sent))
	}
	if _, ok := f.gw.sent[0].(domain.CancelOpenOrders); !ok {
		t.Errorf("first request is %T, want CancelOpenOrders", f.gw.sent[0])
	}
	if _, ok := f.gw.sent[1].(domain.GetAccountBalances); !ok {
		t.Errorf("second request is %T, want GetAccountBalances", f.gw.sent[1])
	}
}

func TestDeferredBalanceRefresh(t *testing.T) {
	plan := sched.NewPlan(domain.SideBuy, dec("100"), decimal.Zero, t0, time.Hour, time.Minute, 60)
	opts := testOptions(domain.ModeLive)
	opts.BalanceRefreshWait = 5 * time.Second
	f := newFixture(t, opts, plan)
	ctx := context.Background()

	f.c.numOpenOrders = 1
	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(t0, "99", "101")})
	if len(f.gw.sent) != 1 {
		t.Fatalf("requests at refresh = %d, want cancel only", len(f.gw.sent))
	}

	// Before the wait elapses, nothing further.
	f.gw.sent = nil
	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(t0.Add(3*time.Second), "99", "101")})
	if len(f.gw.sent) != 0 {
		t.Fatalf("requests before wait = %d, want 0", len(f.gw.sent))
	}

	// After the wait, the balance request goes out once.
	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(t0.Add(6*time.Second), "99", "101")})
	if len(f.gw.sent) != 1 {
		t.Fatalf("requests after wait = %d, want 1", len(f.gw.sent))
	}
	if _, ok := f.gw.sent[0].(domain.GetAccountBalances); !ok {
		t.Errorf("request is %T, want GetAccountBalances", f.gw.sent[0])
	}
	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(t0.Add(7*time.Second), "99", "101")})
	if len(f.gw.sent) != 1 {
		t.Error("balance refresh should not repeat within the cycle")
	}
}

func TestLiveBalancesApplyHaircut(t *testing.T) {
	plan := sched.NewPlan(domain.SideBuy, dec("100"), decimal.Zero, t0, time.Hour, time.Minute, 60)
	opts := testOptions(domain.ModeLive)
	opts.BaseBalanceProportion = dec("0.5")
	opts.QuoteBalanceProportion = dec("0.9")
	f := newFixture(t, opts, plan)
	ctx := context.Background()

	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(t0, "99", "101")})
	f.c.ProcessAck(ctx, domain.BalancesResponse{
		Balances:      map[string]decimal.Decimal{"BTC": dec("2"), "USDT": dec("1000")},
		CorrelationID: "x",
		Time:          t0,
	})
	if !f.balances.Base().Equal(dec("1")) || !f.balances.Quote().Equal(dec("900")) {
		t.Errorf("balances = %s/%s, want 1/900 after haircut", f.balances.Base(), f.balances.Quote())
	}
	if len(f.rec.balances) != 1 {
		t.Fatalf("balance rows = %d, want 1", len(f.rec.balances))
	}
	if f.rec.balances[0].QuoteBalance != "900" {
		t.Errorf("recorded quote = %s, want 900", f.rec.balances[0].QuoteBalance)
	}
}

func TestRunCompletion(t *testing.T) {
	plan := sched.NewPlan(domain.SideBuy, dec("100"), decimal.Zero, t0, 120*time.Second, time.Minute, 2)
	f := newFixture(t, testOptions(domain.ModePaper), plan)
	f.balances.SetBalances(decimal.Zero, dec("1000"))
	ctx := context.Background()

	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(t0.Add(121*time.Second), "99", "101")})
	if !f.c.Complete() {
		t.Fatal("run should be complete past the total duration")
	}
	select {
	case <-f.c.Done():
	default:
		t.Error("done channel should be closed")
	}

	// Everything after completion is ignored.
	before := len(f.rec.balances)
	f.orders.Place(domain.SideBuy, dec("100"), dec("1"), "c1")
	f.c.ProcessEvents(ctx, []domain.MarketEvent{
		domain.TradePrint{Price: dec("99"), Size: dec("1"), IsBuyerMaker: true, Time: t0.Add(122 * time.Second)},
	})
	if len(f.rec.trades) != 0 || len(f.rec.balances) != before {
		t.Error("events after completion should not produce rows")
	}
}

func TestPaperCreateRejectedWhenFeeExceedsBalance(t *testing.T) {
	// The balance clamp allows a 10-unit clip at 100, but the 1% maker fee
	// pushes the notional past the quote balance; the loopback venue
	// rejects the order and the run carries on.
	plan := sched.NewPlan(domain.SideBuy, dec("100"), decimal.Zero, t0, time.Hour, time.Minute, 60)
	orders := ledger.NewOrderLedger()
	balances := ledger.NewBalanceLedger("BTC", "USDT", ledger.FeeSchedule{
		MakerFee:            dec("0.01"),
		MakerBuyerFeeAsset:  "USDT",
		MakerSellerFeeAsset: "USDT",
	})
	balances.SetBalances(decimal.Zero, dec("1000"))
	rec := &memRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewController(testOptions(domain.ModePaper), plan, fixedSizer{quantity: dec("10")},
		orders, balances, nil, rec, nil, logger)

	c.ProcessEvents(context.Background(), []domain.MarketEvent{depthAt(t0, "99.99", "100.01")})

	if orders.HasOpen() {
		t.Error("rejected order must not rest")
	}
	if len(rec.updates) != 0 {
		t.Errorf("updates = %d, want 0", len(rec.updates))
	}
	if !balances.Quote().Equal(dec("1000")) {
		t.Errorf("quote = %s, want unchanged 1000", balances.Quote())
	}
}

func TestPaperIntervalPlacesAndFillsClip(t *testing.T) {
	// A full simulated interval: refresh triggers, the synthetic balance
	// response arrives, a clip is placed, and a tape print fills it.
	plan := sched.NewPlan(domain.SideBuy, dec("100"), decimal.Zero, t0, time.Hour, time.Minute, 60)
	opts := testOptions(domain.ModePaper)
	f := newFixture(t, opts, plan)
	f.balances.SetBalances(decimal.Zero, dec("100000"))

	// Replace the zero-randomization sizer with a fixed-size one so the
	// interval reliably produces an order.
	f.c.sizer = fixedSizer{quantity: dec("2")}

	ctx := context.Background()
	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(t0, "99.98", "100.02")})

	open, ok := f.orders.Open(domain.SideBuy)
	if !ok {
		t.Fatal("clip should be resting after the interval")
	}
	if !open.LimitPrice.Equal(dec("100")) {
		t.Errorf("clip price = %s, want mid 100", open.LimitPrice)
	}
	if !open.Quantity.Equal(dec("2")) {
		t.Errorf("clip quantity = %s, want 2", open.Quantity)
	}
	if len(f.rec.updates) != 1 || f.rec.updates[0].Status != "NEW" {
		t.Fatalf("expected one NEW update, got %+v", f.rec.updates)
	}
	if !plan.TheoreticalRemaining().Equal(dec("98")) {
		t.Errorf("remaining = %s, want 98 after commit", plan.TheoreticalRemaining())
	}

	f.c.ProcessEvents(ctx, []domain.MarketEvent{
		domain.TradePrint{Price: dec("100"), Size: dec("2"), IsBuyerMaker: true, Time: t0.Add(time.Second)},
	})
	if f.orders.HasOpen() {
		t.Error("clip should be fully filled")
	}
	if !f.balances.Base().Equal(dec("2")) {
		t.Errorf("base balance = %s, want 2", f.balances.Base())
	}
}

func TestImmediateReplacementInOffsetMode(t *testing.T) {
	// Offset-pinned refresh ticks only fire when the wall clock hits the
	// offset; a full fill restarts the cycle from the fill time instead of
	// waiting for the next hit.
	plan := sched.NewPlan(domain.SideBuy, dec("100"), decimal.Zero, t0, time.Hour, time.Minute, 60)
	opts := testOptions(domain.ModePaper)
	opts.RefreshIntervalOffsetSeconds = 0
	opts.ImmediatelyPlaceNewOrders = true
	f := newFixture(t, opts, plan)
	f.balances.SetBalances(decimal.Zero, dec("100000"))
	f.c.sizer = fixedSizer{quantity: dec("2")}
	ctx := context.Background()

	// t0 lands on the offset and the first clip goes out.
	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(t0, "99.98", "100.02")})
	if !f.orders.HasOpen() {
		t.Fatal("clip should be resting after the offset hit")
	}

	// A tape print fills it mid-interval; the replacement goes out in the
	// same event.
	fillTime := t0.Add(10 * time.Second)
	f.c.ProcessEvents(ctx, []domain.MarketEvent{
		domain.TradePrint{Price: dec("99.99"), Size: dec("2"), IsBuyerMaker: true, Time: fillTime},
	})
	open, ok := f.orders.Open(domain.SideBuy)
	if !ok {
		t.Fatal("replacement clip should be resting right after the fill")
	}
	if !open.CumulativeFilledQuantity.IsZero() {
		t.Errorf("replacement filled = %s, want a fresh order", open.CumulativeFilledQuantity)
	}
	if plan.RefreshIntervalIndex != 1 {
		t.Errorf("interval index = %d, want 1 after the restarted cycle", plan.RefreshIntervalIndex)
	}

	// Off-offset depth messages do not trigger anything further.
	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(t0.Add(20*time.Second), "99.98", "100.02")})
	if plan.RefreshIntervalIndex != 1 {
		t.Errorf("interval index = %d, want unchanged 1", plan.RefreshIntervalIndex)
	}
}

func TestImmediateReplacementHonorsBalanceWait(t *testing.T) {
	plan := sched.NewPlan(domain.SideBuy, dec("100"), decimal.Zero, t0, time.Hour, time.Minute, 60)
	opts := testOptions(domain.ModePaper)
	opts.BalanceRefreshWait = 5 * time.Second
	opts.ImmediatelyPlaceNewOrders = true
	f := newFixture(t, opts, plan)
	f.balances.SetBalances(decimal.Zero, dec("100000"))
	f.c.sizer = fixedSizer{quantity: dec("2")}
	ctx := context.Background()

	// Initial cycle: the balance request waits out the configured window,
	// then the first clip goes out.
	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(t0, "99.98", "100.02")})
	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(t0.Add(6*time.Second), "99.98", "100.02")})
	if !f.orders.HasOpen() {
		t.Fatal("clip should be resting after the deferred balance refresh")
	}

	// The fill restarts the cycle, but the balance wait still counts from
	// the fill time: no replacement inside the window, one right after it.
	fillTime := t0.Add(10 * time.Second)
	f.c.ProcessEvents(ctx, []domain.MarketEvent{
		domain.TradePrint{Price: dec("99.99"), Size: dec("2"), IsBuyerMaker: true, Time: fillTime},
	})
	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(fillTime.Add(2*time.Second), "99.98", "100.02")})
	if f.orders.HasOpen() {
		t.Fatal("no replacement should rest inside the balance wait window")
	}
	f.c.ProcessEvents(ctx, []domain.MarketEvent{depthAt(fillTime.Add(6*time.Second), "99.98", "100.02")})
	if !f.orders.HasOpen() {
		t.Fatal("replacement clip should rest once the balance wait elapses")
	}
}

type fixedSizer struct{ quantity decimal.Decimal }

func (s fixedSizer) ClipQuantity(*sched.Plan, decimal.Decimal) (decimal.Decimal, error) {
	return s.quantity, nil
}
