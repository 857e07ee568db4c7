package sched

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/execbot/internal/domain"
	"github.com/alanyoungcy/execbot/internal/numeric"
)

// PriceLimits bounds where a clip may be quoted. RelativeToMid shifts
// the mid price multiplicatively (e.g. 0.001 quotes a tenth of a percent
// through the mid); Absolute is a hard limit the quote never crosses (0
// disables it on the buy side, where it would otherwise forbid any
// price).
type PriceLimits struct {
	RelativeToMid decimal.Decimal
	Absolute      decimal.Decimal
}

// TargetPrice computes the limit price for the next clip from the mid
// price. Buy prices are capped at the absolute limit and rounded down to
// the price increment; sell prices are floored at the limit and rounded
// up. Rounding never crosses the configured limit.
func TargetPrice(side domain.Side, mid decimal.Decimal, limits PriceLimits, priceIncrement decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	shifted := mid.Mul(one.Add(limits.RelativeToMid))
	if side == domain.SideBuy {
		price := shifted
		if limits.Absolute.IsPositive() && limits.Absolute.LessThan(price) {
			price = limits.Absolute
		}
		return numeric.RoundToIncrement(price, priceIncrement, false)
	}
	price := shifted
	if limits.Absolute.GreaterThan(price) {
		price = limits.Absolute
	}
	return numeric.RoundToIncrement(price, priceIncrement, true)
}

// ClampQuantity applies the sizing caps to a raw clip quantity: the
// available balance converted to base units for the side being traded,
// the theoretical remaining budget, and the per-order cap relative to
// the total target. Returns the smallest of the four.
func ClampQuantity(plan *Plan, raw, price, baseBalance, quoteBalance, perOrderCapRatio decimal.Decimal) decimal.Decimal {
	quantity := raw

	var balanceCap decimal.Decimal
	if plan.Side == domain.SideBuy {
		balanceCap = quoteBalance.Div(price)
	} else {
		balanceCap = baseBalance
	}
	if balanceCap.LessThan(quantity) {
		quantity = balanceCap
	}

	var remainingCap decimal.Decimal
	if plan.QuoteDenominated() {
		remainingCap = plan.TheoreticalRemainingInQuote().Div(price)
	} else {
		remainingCap = plan.TheoreticalRemaining()
	}
	if remainingCap.LessThan(quantity) {
		quantity = remainingCap
	}

	var orderCap decimal.Decimal
	if plan.QuoteDenominated() {
		orderCap = plan.TotalTargetQuantityInQuote.Mul(perOrderCapRatio).Div(price)
	} else {
		orderCap = plan.TotalTargetQuantity.Mul(perOrderCapRatio)
	}
	if orderCap.LessThan(quantity) {
		quantity = orderCap
	}

	return quantity
}
