package pricing

import (
	"math"
	"math/bits"
)

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator int64 = 10_000

// FeeAmount returns the fee charged on amount at rateBps, rounded down.
// Rounding down keeps the fee never larger than the exact fraction. The
// product goes through a 128-bit intermediate; amount * rateBps wraps int64
// for amounts above roughly 4.6e16 at the full 10000 bps scale.
func FeeAmount(amount, rateBps int64) int64 {
	if amount <= 0 || rateBps <= 0 {
		return 0
	}
	if rateBps >= BpsDenominator {
		return amount
	}
	hi, lo := bits.Mul64(uint64(amount), uint64(rateBps))
	if hi == 0 {
		return int64(lo / uint64(BpsDenominator))
	}
	// rateBps < 10000 keeps hi below the divisor and the quotient below
	// amount, so Div64 cannot trap and the result fits int64.
	quo, _ := bits.Div64(hi, lo, uint64(BpsDenominator))
	return int64(quo)
}

// AfterFee returns amount with the basis-point fee deducted.
func AfterFee(amount, rateBps int64) int64 {
	return amount - FeeAmount(amount, rateBps)
}

// FloorUnits converts a float cost to atomic currency units by truncation,
// clamped at zero. Balance-changing outputs always truncate so the market
// maker never pays out more than it collects.
func FloorUnits(x float64) int64 {
	if x <= 0 || math.IsNaN(x) {
		return 0
	}
	f := math.Floor(x)
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f)
}

// RoundBps converts a probability in [0,1] to basis points with standard
// rounding. Only valid at the presentation boundary; engine-internal math
// stays in float64.
func RoundBps(p float64) int64 {
	if p <= 0 || math.IsNaN(p) {
		return 0
	}
	if p >= 1 {
		return BpsDenominator
	}
	return int64(math.Round(p * float64(BpsDenominator)))
}
