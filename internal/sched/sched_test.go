package sched

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/execbot/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func basePlan() *Plan {
	return NewPlan(domain.SideBuy, dec("100"), decimal.Zero, t0, 120*time.Second, 60*time.Second, 2)
}

func TestPlanIntervalIndexStartsAtMinusOne(t *testing.T) {
	p := basePlan()
	if p.RefreshIntervalIndex != -1 {
		t.Errorf("initial interval index = %d, want -1", p.RefreshIntervalIndex)
	}
	p.AdvanceInterval()
	if p.RefreshIntervalIndex != 0 {
		t.Errorf("interval index after advance = %d, want 0", p.RefreshIntervalIndex)
	}
}

func TestPlanRemainingNonIncreasing(t *testing.T) {
	p := basePlan()
	prev := p.TheoreticalRemaining()
	for _, q := range []string{"10", "0", "25.5", "64.5", "3"} {
		p.CommitBase(dec(q))
		cur := p.TheoreticalRemaining()
		if cur.GreaterThan(prev) {
			t.Fatalf("remaining increased from %s to %s", prev, cur)
		}
		prev = cur
	}
}

func TestPlanTerminalOnElapsed(t *testing.T) {
	p := basePlan()
	if p.Terminal(t0.Add(119 * time.Second)) {
		t.Error("plan terminal before duration elapsed")
	}
	if !p.Terminal(t0.Add(121 * time.Second)) {
		t.Error("plan not terminal after duration elapsed")
	}
}

func TestPlanTerminalOnExhaustedBudget(t *testing.T) {
	p := basePlan()
	p.CommitBase(dec("100"))
	if !p.Terminal(t0.Add(time.Second)) {
		t.Error("plan not terminal with zero remaining")
	}
}

func TestPlanQuoteReservation(t *testing.T) {
	p := NewPlan(domain.SideBuy, decimal.Zero, dec("1000"), t0, time.Minute, time.Second, 10)
	if !p.QuoteDenominated() {
		t.Fatal("plan should be quote denominated")
	}
	if !p.TryCommitQuote(dec("600")) {
		t.Error("600 of 1000 should commit")
	}
	if p.TryCommitQuote(dec("600")) {
		t.Error("second 600 should fail the reservation")
	}
	// The failed reservation still consumed the budget, so the plan is
	// now terminal.
	if !p.Terminal(t0) {
		t.Error("plan should be terminal once quote budget is exhausted")
	}
}

func TestTWAPClipQuantityWithinBounds(t *testing.T) {
	p := basePlan() // target 100 over 2 intervals -> share 50
	twap := NewTWAP(0.5, 1)
	for i := 0; i < 200; i++ {
		q, err := twap.ClipQuantity(p, dec("10"))
		if err != nil {
			t.Fatalf("ClipQuantity: %v", err)
		}
		f, _ := q.Float64()
		if f < -25 || f > 25 {
			t.Fatalf("clip %s outside [-25, 25] for share 50, max 0.5", q)
		}
	}
}

func TestTWAPQuoteDenominatedShare(t *testing.T) {
	p := NewPlan(domain.SideBuy, decimal.Zero, dec("1000"), t0, time.Minute, time.Second, 10)
	// Randomization 0 forces factor 0; share math still exercised.
	twap := NewTWAP(0, 42)
	q, err := twap.ClipQuantity(p, dec("50"))
	if err != nil {
		t.Fatalf("ClipQuantity: %v", err)
	}
	if !q.IsZero() {
		t.Errorf("zero randomization should produce zero clip, got %s", q)
	}
}

func TestUnsupportedStrategies(t *testing.T) {
	for _, name := range []string{StrategyVWAP, StrategyPOV, StrategyIS} {
		sizer, err := NewSizer(name, 0.1, 1)
		if err != nil {
			t.Fatalf("NewSizer(%s): %v", name, err)
		}
		if _, err := sizer.ClipQuantity(basePlan(), dec("10")); !errors.Is(err, domain.ErrUnsupportedStrategy) {
			t.Errorf("%s: err = %v, want ErrUnsupportedStrategy", name, err)
		}
	}
	if _, err := NewSizer("bogus", 0, 1); err == nil {
		t.Error("unknown strategy name should fail")
	}
}

func TestTargetPriceBuy(t *testing.T) {
	limits := PriceLimits{RelativeToMid: dec("0.001"), Absolute: dec("101")}
	// mid 100.5 -> shifted 100.6005 -> capped stays, rounded down to 0.01.
	got := TargetPrice(domain.SideBuy, dec("100.5"), limits, dec("0.01"))
	if !got.Equal(dec("100.6")) {
		t.Errorf("buy target = %s, want 100.60", got)
	}

	// Absolute cap binds.
	limits.Absolute = dec("100.55")
	got = TargetPrice(domain.SideBuy, dec("100.5"), limits, dec("0.01"))
	if !got.Equal(dec("100.55")) {
		t.Errorf("capped buy target = %s, want 100.55", got)
	}

	// Zero absolute limit disables the cap on buys.
	limits.Absolute = decimal.Zero
	got = TargetPrice(domain.SideBuy, dec("100.5"), limits, dec("0.01"))
	if !got.Equal(dec("100.6")) {
		t.Errorf("uncapped buy target = %s, want 100.60", got)
	}
}

func TestTargetPriceSellRoundsUp(t *testing.T) {
	limits := PriceLimits{RelativeToMid: dec("-0.001"), Absolute: dec("99")}
	// mid 100 -> shifted 99.9 -> floor(limit)=99 doesn't bind -> round up.
	got := TargetPrice(domain.SideSell, dec("100"), limits, dec("0.25"))
	if !got.Equal(dec("100")) {
		t.Errorf("sell target = %s, want 100 (99.9 rounded up to 0.25)", got)
	}

	// Limit floor binds.
	limits.Absolute = dec("100.5")
	got = TargetPrice(domain.SideSell, dec("100"), limits, dec("0.25"))
	if !got.Equal(dec("100.5")) {
		t.Errorf("floored sell target = %s, want 100.5", got)
	}
}

func TestClampQuantity(t *testing.T) {
	p := basePlan() // buy, base target 100 remaining
	price := dec("10")

	// Balance cap: quote 200 -> 20 base.
	got := ClampQuantity(p, dec("50"), price, dec("0"), dec("200"), dec("1"))
	if !got.Equal(dec("20")) {
		t.Errorf("balance-capped quantity = %s, want 20", got)
	}

	// Remaining cap.
	p.CommitBase(dec("95")) // 5 left
	got = ClampQuantity(p, dec("50"), price, dec("0"), dec("10000"), dec("1"))
	if !got.Equal(dec("5")) {
		t.Errorf("remaining-capped quantity = %s, want 5", got)
	}

	// Per-order cap relative to total target.
	p2 := basePlan()
	got = ClampQuantity(p2, dec("50"), price, dec("0"), dec("10000"), dec("0.02"))
	if !got.Equal(dec("2")) {
		t.Errorf("per-order-capped quantity = %s, want 2", got)
	}

	// Sell side uses the base balance directly.
	p3 := NewPlan(domain.SideSell, dec("100"), decimal.Zero, t0, time.Minute, time.Second, 2)
	got = ClampQuantity(p3, dec("50"), price, dec("7"), dec("0"), dec("1"))
	if !got.Equal(dec("7")) {
		t.Errorf("sell balance-capped quantity = %s, want 7", got)
	}
}
