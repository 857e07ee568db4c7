package ledger

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/execbot/internal/domain"
)

// FeeSchedule holds maker/taker fee rates and, per side of the fill, the
// asset the fee is charged in. The engine simulates maker fills only, but
// taker configuration is carried for venues that report taker fills on
// the private stream.
type FeeSchedule struct {
	MakerFee decimal.Decimal
	TakerFee decimal.Decimal

	MakerBuyerFeeAsset  string
	MakerSellerFeeAsset string
	TakerBuyerFeeAsset  string
	TakerSellerFeeAsset string
}

// BalanceLedger tracks the base and quote asset balances plus the
// running volume and fee accumulators for the whole run. Balances are
// exact decimals end to end; they are rendered to strings only at the
// recorder boundary.
//
// Invariant: neither balance ever goes negative. Mutations that would
// violate this are rejected up front by CheckSufficient; fills only move
// value that a prior sufficiency check reserved room for.
type BalanceLedger struct {
	baseAsset  string
	quoteAsset string
	fees       FeeSchedule

	base  decimal.Decimal
	quote decimal.Decimal

	volumeBase  decimal.Decimal
	volumeQuote decimal.Decimal
	feeBase     decimal.Decimal
	feeQuote    decimal.Decimal
}

// NewBalanceLedger returns a ledger for the given asset pair.
func NewBalanceLedger(baseAsset, quoteAsset string, fees FeeSchedule) *BalanceLedger {
	return &BalanceLedger{
		baseAsset:  baseAsset,
		quoteAsset: quoteAsset,
		fees:       fees,
	}
}

// Base returns the current base-asset balance.
func (b *BalanceLedger) Base() decimal.Decimal { return b.base }

// Quote returns the current quote-asset balance.
func (b *BalanceLedger) Quote() decimal.Decimal { return b.quote }

// SetBalances overwrites both balances, e.g. from a live balance
// response or the initial paper balances.
func (b *BalanceLedger) SetBalances(base, quote decimal.Decimal) {
	b.base = base
	b.quote = quote
}

// Empty reports whether the account holds nothing on either side.
func (b *BalanceLedger) Empty() bool {
	return !b.base.IsPositive() && !b.quote.IsPositive()
}

// CheckSufficient reports whether a maker order of the given price and
// quantity could be created without driving a balance negative. The
// notional includes the maker fee when the fee is charged in the same
// asset being debited. It mutates nothing: balances move only when fills
// arrive, so a rejected order leaves state untouched.
func (b *BalanceLedger) CheckSufficient(side domain.Side, price, quantity decimal.Decimal) error {
	one := decimal.NewFromInt(1)
	if side == domain.SideBuy {
		transacted := price.Mul(quantity)
		if equalAsset(b.fees.MakerBuyerFeeAsset, b.quoteAsset) {
			transacted = transacted.Mul(one.Add(b.fees.MakerFee))
		}
		if b.quote.Sub(transacted).IsNegative() {
			return domain.ErrInsufficientBalance
		}
		return nil
	}
	transacted := quantity
	if equalAsset(b.fees.MakerSellerFeeAsset, b.baseAsset) {
		transacted = transacted.Mul(one.Add(b.fees.MakerFee))
	}
	if b.base.Sub(transacted).IsNegative() {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// ApplyMakerFill settles a maker fill at the resting order's limit
// price: credits the acquired asset, debits the surrendered notional,
// then debits the maker fee in its configured asset (converted at the
// fill price when the fee asset is the opposite leg). It returns the fee
// quantity charged and the asset it was charged in.
func (b *BalanceLedger) ApplyMakerFill(side domain.Side, price, quantity decimal.Decimal) (decimal.Decimal, string) {
	notional := price.Mul(quantity)
	if side == domain.SideBuy {
		b.base = b.base.Add(quantity)
		b.quote = b.quote.Sub(notional)
	} else {
		b.base = b.base.Sub(quantity)
		b.quote = b.quote.Add(notional)
	}

	feeAsset := b.fees.MakerSellerFeeAsset
	if side == domain.SideBuy {
		feeAsset = b.fees.MakerBuyerFeeAsset
	}
	feeQuantity := decimal.Zero
	switch {
	case equalAsset(feeAsset, b.baseAsset):
		feeQuantity = quantity.Mul(b.fees.MakerFee)
		b.base = b.base.Sub(feeQuantity)
	case equalAsset(feeAsset, b.quoteAsset):
		feeQuantity = notional.Mul(b.fees.MakerFee)
		b.quote = b.quote.Sub(feeQuantity)
	}
	return feeQuantity, feeAsset
}

// AccumulatePrivateTrade folds one private trade into the run-level
// volume and fee accumulators. Fees charged in an asset outside the pair
// are ignored, matching the venue-reported accounting.
func (b *BalanceLedger) AccumulatePrivateTrade(price, size, feeQuantity decimal.Decimal, feeAsset string) {
	b.volumeBase = b.volumeBase.Add(size)
	b.volumeQuote = b.volumeQuote.Add(size.Mul(price))
	switch {
	case equalAsset(feeAsset, b.baseAsset):
		b.feeBase = b.feeBase.Add(feeQuantity)
		b.feeQuote = b.feeQuote.Add(feeQuantity.Mul(price))
	case equalAsset(feeAsset, b.quoteAsset):
		if price.IsPositive() {
			b.feeBase = b.feeBase.Add(feeQuantity.Div(price))
		}
		b.feeQuote = b.feeQuote.Add(feeQuantity)
	}
}

// VolumeBase returns the run's traded volume in base units.
func (b *BalanceLedger) VolumeBase() decimal.Decimal { return b.volumeBase }

// VolumeQuote returns the run's traded volume in quote units.
func (b *BalanceLedger) VolumeQuote() decimal.Decimal { return b.volumeQuote }

// FeeBase returns the run's accumulated fees in base units.
func (b *BalanceLedger) FeeBase() decimal.Decimal { return b.feeBase }

// FeeQuote returns the run's accumulated fees in quote units.
func (b *BalanceLedger) FeeQuote() decimal.Decimal { return b.feeQuote }

// BaseAsset returns the base asset symbol.
func (b *BalanceLedger) BaseAsset() string { return b.baseAsset }

// QuoteAsset returns the quote asset symbol.
func (b *BalanceLedger) QuoteAsset() string { return b.quoteAsset }

// Fees returns the configured fee schedule.
func (b *BalanceLedger) Fees() FeeSchedule { return b.fees }

func equalAsset(a, b string) bool {
	return strings.EqualFold(a, b)
}
