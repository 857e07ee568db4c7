// Package sched implements the execution schedule: the per-interval
// bookkeeping of how much of the target remains, what price the next
// clip should be quoted at, and how large it should be under the
// configured strategy.
package sched

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/execbot/internal/domain"
)

// Plan is the execution plan for one run. Exactly one of
// TotalTargetQuantity (base units) and TotalTargetQuantityInQuote is
// authoritative: a quote-denominated target is divided by the execution
// price at sizing time, a base-denominated one is not.
//
// The interval index starts at -1 and is incremented once per refresh
// cycle; the theoretical remaining budget only ever decreases.
type Plan struct {
	Side                       domain.Side
	TotalTargetQuantity        decimal.Decimal
	TotalTargetQuantityInQuote decimal.Decimal

	theoreticalRemaining        decimal.Decimal
	theoreticalRemainingInQuote decimal.Decimal

	StartTime            time.Time
	TotalDuration        time.Duration
	RefreshInterval      time.Duration
	NumRefreshIntervals  int
	RefreshIntervalIndex int
}

// NewPlan creates a plan with the full target still outstanding and the
// interval index at -1.
func NewPlan(side domain.Side, targetBase, targetQuote decimal.Decimal, start time.Time, total, refresh time.Duration, numIntervals int) *Plan {
	return &Plan{
		Side:                        side,
		TotalTargetQuantity:         targetBase,
		TotalTargetQuantityInQuote:  targetQuote,
		theoreticalRemaining:        targetBase,
		theoreticalRemainingInQuote: targetQuote,
		StartTime:                   start,
		TotalDuration:               total,
		RefreshInterval:             refresh,
		NumRefreshIntervals:         numIntervals,
		RefreshIntervalIndex:        -1,
	}
}

// QuoteDenominated reports whether the quote-side target is the
// authoritative one.
func (p *Plan) QuoteDenominated() bool {
	return p.TotalTargetQuantityInQuote.IsPositive()
}

// TheoreticalRemaining returns the outstanding budget in base units.
func (p *Plan) TheoreticalRemaining() decimal.Decimal { return p.theoreticalRemaining }

// TheoreticalRemainingInQuote returns the outstanding budget in quote units.
func (p *Plan) TheoreticalRemainingInQuote() decimal.Decimal { return p.theoreticalRemainingInQuote }

// AdvanceInterval moves the plan to the next refresh interval.
func (p *Plan) AdvanceInterval() {
	p.RefreshIntervalIndex++
}

// CommitBase deducts a base-denominated clip that has been sent. Called
// only after the request is actually emitted.
func (p *Plan) CommitBase(quantity decimal.Decimal) {
	p.theoreticalRemaining = p.theoreticalRemaining.Sub(quantity)
}

// TryCommitQuote optimistically deducts the notional of a
// quote-denominated clip and reports whether the remaining budget stayed
// non-negative; when it did not, the caller must not send the request.
// The deduction is kept either way so the remaining budget stays
// non-increasing and the termination check fires on the next cycle.
func (p *Plan) TryCommitQuote(notional decimal.Decimal) bool {
	p.theoreticalRemainingInQuote = p.theoreticalRemainingInQuote.Sub(notional)
	return !p.theoreticalRemainingInQuote.IsNegative()
}

// Terminal reports whether the run is over: the full duration has
// elapsed or the authoritative remaining budget is exhausted.
func (p *Plan) Terminal(now time.Time) bool {
	if !now.Before(p.StartTime.Add(p.TotalDuration)) {
		return true
	}
	if p.QuoteDenominated() {
		return !p.theoreticalRemainingInQuote.IsPositive()
	}
	return !p.theoreticalRemaining.IsPositive()
}
