package sched

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/execbot/internal/domain"
)

// Strategy names accepted by the configuration.
const (
	StrategyTWAP = "TWAP"
	StrategyVWAP = "VWAP"
	StrategyPOV  = "POV"
	StrategyIS   = "IS"
)

// ClipSizer computes the raw (pre-clamp, pre-rounding) clip quantity in
// base units for the current interval at the given limit price.
type ClipSizer interface {
	ClipQuantity(plan *Plan, price decimal.Decimal) (decimal.Decimal, error)
}

// TWAP sizes each clip as the per-interval share of the target, scaled
// by a uniform random factor in [-max, +max]. A non-positive result
// simply places no order that interval.
type TWAP struct {
	RandomizationMax float64
	rng              *rand.Rand
}

// NewTWAP creates a TWAP sizer with its own random source, so parallel
// runs never share generator state.
func NewTWAP(randomizationMax float64, seed int64) *TWAP {
	return &TWAP{
		RandomizationMax: randomizationMax,
		rng:              rand.New(rand.NewSource(seed)),
	}
}

// ClipQuantity implements ClipSizer.
func (t *TWAP) ClipQuantity(plan *Plan, price decimal.Decimal) (decimal.Decimal, error) {
	intervals := decimal.NewFromInt(int64(plan.NumRefreshIntervals))
	var share decimal.Decimal
	if plan.QuoteDenominated() {
		share = plan.TotalTargetQuantityInQuote.Div(intervals).Div(price)
	} else {
		share = plan.TotalTargetQuantity.Div(intervals)
	}
	factor := -t.RandomizationMax + t.rng.Float64()*2*t.RandomizationMax
	return share.Mul(decimal.NewFromFloat(factor)), nil
}

// unsupported is the placeholder for strategy variants whose sizing
// formulas are not yet settled.
type unsupported struct{ name string }

func (u unsupported) ClipQuantity(*Plan, decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, domain.ErrUnsupportedStrategy
}

// NewSizer returns the ClipSizer for the named strategy. VWAP, POV and
// IS are recognized but return domain.ErrUnsupportedStrategy from
// ClipQuantity until their sizing formulas are settled.
func NewSizer(name string, twapRandomizationMax float64, seed int64) (ClipSizer, error) {
	switch name {
	case StrategyTWAP:
		return NewTWAP(twapRandomizationMax, seed), nil
	case StrategyVWAP, StrategyPOV, StrategyIS:
		return unsupported{name: name}, nil
	default:
		return nil, domain.ErrUnsupportedStrategy
	}
}
