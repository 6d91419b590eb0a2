package pricing

import (
	"math"
	"testing"
)

func TestFeeAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		rateBps int64
		want    int64
	}{
		{"two percent", 1_000_000, 200, 20_000},
		{"floors remainder", 999, 200, 19},
		{"sub-unit fee floors to zero", 49, 200, 0},
		{"zero amount", 0, 200, 0},
		{"zero rate", 1_000_000, 0, 0},
		{"negative amount", -500, 200, 0},
		{"full rate", 12_345, 10_000, 12_345},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FeeAmount(tt.amount, tt.rateBps); got != tt.want {
				t.Errorf("FeeAmount(%d, %d) = %d, want %d", tt.amount, tt.rateBps, got, tt.want)
			}
		})
	}
}

func TestFeeAmount_LargeAmounts(t *testing.T) {
	// amount * rateBps wraps int64 for amounts above ~4.6e16 at 2%; the
	// 128-bit intermediate must keep the fee exact and non-negative.
	tests := []struct {
		name    string
		amount  int64
		rateBps int64
		want    int64
	}{
		{"sixty quadrillion at 2%", 60_000_000_000_000_000, 200, 1_200_000_000_000_000},
		{"just past the wrap point", 46_116_860_184_273_880, 200, 922_337_203_685_477},
		{"max amount at 2%", math.MaxInt64, 200, math.MaxInt64 / 50},
		{"max amount at 9999 bps", math.MaxInt64, 9_999, 9_222_449_699_651_090_329},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FeeAmount(tt.amount, tt.rateBps)
			if got != tt.want {
				t.Errorf("FeeAmount(%d, %d) = %d, want %d", tt.amount, tt.rateBps, got, tt.want)
			}
			if got < 0 || got > tt.amount {
				t.Errorf("FeeAmount(%d, %d) = %d outside [0, amount]", tt.amount, tt.rateBps, got)
			}
		})
	}
}

func TestFeeAmount_NeverExceedsExactFraction(t *testing.T) {
	for _, amount := range []int64{1, 99, 12_345, 1_000_000_007} {
		for _, rate := range []int64{1, 30, 200, 9_999} {
			fee := FeeAmount(amount, rate)
			exact := float64(amount) * float64(rate) / float64(BpsDenominator)
			if float64(fee) > exact {
				t.Errorf("FeeAmount(%d, %d) = %d exceeds exact %v", amount, rate, fee, exact)
			}
		}
	}
}

func TestAfterFee(t *testing.T) {
	if got := AfterFee(1_000_000, 200); got != 980_000 {
		t.Errorf("AfterFee(1000000, 200) = %d, want 980000", got)
	}
	if got := AfterFee(100, 0); got != 100 {
		t.Errorf("AfterFee(100, 0) = %d, want 100", got)
	}
}

func TestFloorUnits(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int64
	}{
		{"truncates", 42.99, 42},
		{"exact integer", 42.0, 42},
		{"negative clamps to zero", -3.5, 0},
		{"nan clamps to zero", math.NaN(), 0},
		{"huge clamps to max", math.MaxFloat64, math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FloorUnits(tt.in); got != tt.want {
				t.Errorf("FloorUnits(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoundBps(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int64
	}{
		{"half", 0.5, 5000},
		{"rounds up", 0.33335, 3334},
		{"rounds down", 0.33334, 3333},
		{"clamps below", -0.1, 0},
		{"clamps above", 1.5, 10_000},
		{"one", 1.0, 10_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoundBps(tt.in); got != tt.want {
				t.Errorf("RoundBps(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
