package numeric

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRoundToIncrement(t *testing.T) {
	tests := []struct {
		name      string
		v         string
		increment string
		roundUp   bool
		want      string
	}{
		{"exact multiple down", "100.50", "0.01", false, "100.5"},
		{"exact multiple up", "100.50", "0.01", true, "100.5"},
		{"truncate down", "100.567", "0.01", false, "100.56"},
		{"ceil up", "100.561", "0.01", true, "100.57"},
		{"coarse increment down", "7.9", "0.5", false, "7.5"},
		{"coarse increment up", "7.1", "0.5", true, "7.5"},
		{"zero increment passthrough", "3.14159", "0", false, "3.14159"},
		{"smaller than increment down", "0.004", "0.01", false, "0"},
		{"smaller than increment up", "0.004", "0.01", true, "0.01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToIncrement(dec(tt.v), dec(tt.increment), tt.roundUp)
			if !got.Equal(dec(tt.want)) {
				t.Errorf("RoundToIncrement(%s, %s, %v) = %s, want %s",
					tt.v, tt.increment, tt.roundUp, got, tt.want)
			}
		})
	}
}

func TestRoundToIncrementIdempotent(t *testing.T) {
	values := []string{"123.456789", "0.1", "99999.99999", "0.00042"}
	increments := []string{"0.01", "0.001", "0.5", "1"}
	for _, v := range values {
		for _, inc := range increments {
			for _, up := range []bool{false, true} {
				once := RoundToIncrement(dec(v), dec(inc), up)
				twice := RoundToIncrement(once, dec(inc), up)
				if !once.Equal(twice) {
					t.Errorf("rounding %s by %s (up=%v) not idempotent: %s then %s",
						v, inc, up, once, twice)
				}
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.500", "1.5"},
		{"0.000", "0"},
		{"-0.0", "0"},
		{"10", "10"},
		{"10.010", "10.01"},
		{"-2.300", "-2.3"},
	}
	for _, tt := range tests {
		if got := Normalize(dec(tt.in)); got != tt.want {
			t.Errorf("Normalize(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMidPrice(t *testing.T) {
	got := MidPrice(dec("100"), dec("101"))
	if !got.Equal(dec("100.5")) {
		t.Errorf("MidPrice(100, 101) = %s, want 100.5", got)
	}
}
