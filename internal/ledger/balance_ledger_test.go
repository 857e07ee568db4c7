package ledger

import (
	"errors"
	"testing"

	"github.com/alanyoungcy/execbot/internal/domain"
)

func newTestLedger(base, quote string, fees FeeSchedule) *BalanceLedger {
	b := NewBalanceLedger("BTC", "USDT", fees)
	b.SetBalances(dec(base), dec(quote))
	return b
}

func TestCheckSufficientBuyRejected(t *testing.T) {
	// base=0, quote=100, buy 11 @ 10 with quote fee 0% -> notional 110 > 100.
	b := newTestLedger("0", "100", FeeSchedule{MakerBuyerFeeAsset: "USDT"})

	err := b.CheckSufficient(domain.SideBuy, dec("10"), dec("11"))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	// No state mutated.
	if !b.Base().IsZero() || !b.Quote().Equal(dec("100")) {
		t.Errorf("balances changed on rejection: base=%s quote=%s", b.Base(), b.Quote())
	}
}

func TestCheckSufficientIncludesFeeInDebitedAsset(t *testing.T) {
	// quote=100, buy 10 @ 10 is exactly affordable without fee, but a 1%
	// maker fee charged in quote pushes the notional to 101.
	fees := FeeSchedule{MakerFee: dec("0.01"), MakerBuyerFeeAsset: "USDT"}
	b := newTestLedger("0", "100", fees)
	if err := b.CheckSufficient(domain.SideBuy, dec("10"), dec("10")); err == nil {
		t.Error("expected rejection when fee pushes notional over balance")
	}

	// Fee charged in base does not inflate the quote-side notional.
	fees = FeeSchedule{MakerFee: dec("0.01"), MakerBuyerFeeAsset: "BTC"}
	b = newTestLedger("0", "100", fees)
	if err := b.CheckSufficient(domain.SideBuy, dec("10"), dec("10")); err != nil {
		t.Errorf("unexpected rejection: %v", err)
	}
}

func TestCheckSufficientSell(t *testing.T) {
	fees := FeeSchedule{MakerFee: dec("0.1"), MakerSellerFeeAsset: "BTC"}
	b := newTestLedger("10", "0", fees)

	if err := b.CheckSufficient(domain.SideSell, dec("100"), dec("9")); err != nil {
		t.Errorf("9 * 1.1 = 9.9 <= 10 should pass: %v", err)
	}
	if err := b.CheckSufficient(domain.SideSell, dec("100"), dec("10")); err == nil {
		t.Error("10 * 1.1 = 11 > 10 should be rejected")
	}
}

func TestApplyMakerFillBuyQuoteFee(t *testing.T) {
	fees := FeeSchedule{MakerFee: dec("0.001"), MakerBuyerFeeAsset: "USDT"}
	b := newTestLedger("1", "1000", fees)

	feeQty, feeAsset := b.ApplyMakerFill(domain.SideBuy, dec("100"), dec("5"))

	if !b.Base().Equal(dec("6")) {
		t.Errorf("base = %s, want 6", b.Base())
	}
	// 1000 - 500 - 0.5 fee.
	if !b.Quote().Equal(dec("499.5")) {
		t.Errorf("quote = %s, want 499.5", b.Quote())
	}
	if feeAsset != "USDT" || !feeQty.Equal(dec("0.5")) {
		t.Errorf("fee = %s %s, want 0.5 USDT", feeQty, feeAsset)
	}
	if b.Base().IsNegative() || b.Quote().IsNegative() {
		t.Error("balance went negative")
	}
}

func TestApplyMakerFillSellBaseFee(t *testing.T) {
	fees := FeeSchedule{MakerFee: dec("0.002"), MakerSellerFeeAsset: "BTC"}
	b := newTestLedger("10", "0", fees)

	feeQty, feeAsset := b.ApplyMakerFill(domain.SideSell, dec("100"), dec("4"))

	// 10 - 4 - 0.008 fee.
	if !b.Base().Equal(dec("5.992")) {
		t.Errorf("base = %s, want 5.992", b.Base())
	}
	if !b.Quote().Equal(dec("400")) {
		t.Errorf("quote = %s, want 400", b.Quote())
	}
	if feeAsset != "BTC" || !feeQty.Equal(dec("0.008")) {
		t.Errorf("fee = %s %s, want 0.008 BTC", feeQty, feeAsset)
	}
}

func TestAccumulatePrivateTrade(t *testing.T) {
	b := newTestLedger("0", "0", FeeSchedule{})

	b.AccumulatePrivateTrade(dec("100"), dec("2"), dec("0.2"), "USDT")
	b.AccumulatePrivateTrade(dec("50"), dec("1"), dec("0.001"), "BTC")

	if !b.VolumeBase().Equal(dec("3")) {
		t.Errorf("volume base = %s, want 3", b.VolumeBase())
	}
	if !b.VolumeQuote().Equal(dec("250")) {
		t.Errorf("volume quote = %s, want 250", b.VolumeQuote())
	}
	// 0.2 USDT at price 100 -> 0.002 base; plus 0.001 base directly.
	if !b.FeeBase().Equal(dec("0.003")) {
		t.Errorf("fee base = %s, want 0.003", b.FeeBase())
	}
	// 0.2 quote directly; 0.001 base at 50 -> 0.05 quote.
	if !b.FeeQuote().Equal(dec("0.25")) {
		t.Errorf("fee quote = %s, want 0.25", b.FeeQuote())
	}
}

func TestEmpty(t *testing.T) {
	b := newTestLedger("0", "0", FeeSchedule{})
	if !b.Empty() {
		t.Error("zero balances should report empty")
	}
	b.SetBalances(dec("0"), dec("0.1"))
	if b.Empty() {
		t.Error("positive quote should not report empty")
	}
}
