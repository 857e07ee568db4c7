// Package numeric provides exact decimal rounding and canonicalization
// helpers used for all order price/quantity math. Everything is built on
// shopspring/decimal so repeated add/subtract cycles over a long run
// accumulate no binary floating-point drift.
package numeric

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RoundToIncrement rounds v to a multiple of increment. When roundUp is
// false the value is truncated toward zero (quantities, buy prices);
// when true it is ceiled away from zero (sell prices, which must never
// cross below the requested limit). A zero increment returns v
// unchanged.
func RoundToIncrement(v, increment decimal.Decimal, roundUp bool) decimal.Decimal {
	if increment.IsZero() {
		return v
	}
	steps := v.Div(increment)
	if roundUp {
		steps = steps.Ceil()
	} else {
		steps = steps.Floor()
	}
	return steps.Mul(increment)
}

// Normalize renders d as a canonical decimal string: trailing zeros and
// a redundant decimal point stripped, and exactly "0" for zero
// regardless of sign or scale.
func Normalize(d decimal.Decimal) string {
	s := d.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	if s == "" || s == "-0" || s == "0" {
		return "0"
	}
	return s
}

// MidPrice returns (bid+ask)/2 exactly.
func MidPrice(bid, ask decimal.Decimal) decimal.Decimal {
	return bid.Add(ask).Div(decimal.NewFromInt(2))
}
