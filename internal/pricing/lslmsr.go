// Package pricing implements the liquidity-sensitive LMSR cost function
// that prices trades against aggregate outcome demand. All functions are
// pure: they never mutate their inputs and carry no state beyond the alpha
// sensitivity constant held by Engine.
package pricing

import (
	"math"

	"github.com/opine-markets/opined/internal/domain"
)

// DefaultAlpha is the sensitivity constant applied to a market's liquidity
// to derive the LS-LMSR scale parameter b = alpha * liquidity.
const DefaultAlpha = 0.02

// Engine derives the scale parameter from market liquidity. It is shared
// freely across goroutines.
type Engine struct {
	alpha float64
}

// New creates a pricing engine with the given alpha. Alpha must be positive;
// a zero or negative alpha would collapse the scale parameter and divide by
// zero inside the cost function.
func New(alpha float64) (*Engine, error) {
	if alpha <= 0 || math.IsNaN(alpha) {
		return nil, domain.ErrInvalidLiquidity
	}
	return &Engine{alpha: alpha}, nil
}

// Alpha returns the configured sensitivity constant.
func (e *Engine) Alpha() float64 { return e.alpha }

// B returns the scale parameter for a market with the given liquidity.
func (e *Engine) B(liquidity int64) float64 {
	return e.alpha * float64(liquidity)
}

// logSumExp computes ln(Σ exp(q_i / b)) with the max-shift trick so large
// share totals do not overflow float64.
func logSumExp(quantities []int64, b float64) float64 {
	maxQ := quantities[0]
	for _, q := range quantities[1:] {
		if q > maxQ {
			maxQ = q
		}
	}

	var sum float64
	for _, q := range quantities {
		sum += math.Exp(float64(q-maxQ) / b)
	}
	return float64(maxQ)/b + math.Log(sum)
}

// Cost evaluates the LS-LMSR cost function C(q) = b * ln(Σ exp(q_i / b)).
// The result is in (fractional) atomic currency units.
func Cost(quantities []int64, b float64) (float64, error) {
	if b <= 0 || math.IsNaN(b) {
		return 0, domain.ErrInvalidLiquidity
	}
	if len(quantities) == 0 {
		return 0, domain.ErrInvalidMarket
	}
	return b * logSumExp(quantities, b), nil
}

// Prices returns the normalized price vector p_i = exp(q_i/b) / Σ exp(q_j/b).
// Entries lie in [0,1] and sum to 1 within floating tolerance.
func Prices(quantities []int64, b float64) ([]float64, error) {
	if b <= 0 || math.IsNaN(b) {
		return nil, domain.ErrInvalidLiquidity
	}
	if len(quantities) == 0 {
		return nil, domain.ErrInvalidMarket
	}

	maxQ := quantities[0]
	for _, q := range quantities[1:] {
		if q > maxQ {
			maxQ = q
		}
	}

	exps := make([]float64, len(quantities))
	var sum float64
	for i, q := range quantities {
		exps[i] = math.Exp(float64(q-maxQ) / b)
		sum += exps[i]
	}

	prices := make([]float64, len(quantities))
	for i := range exps {
		prices[i] = exps[i] / sum
	}
	return prices, nil
}

// PricesBps converts the price vector to basis points for the presentation
// boundary. Each entry is rounded, then the largest entry absorbs the
// rounding residual so the vector always sums to exactly 10000.
func PricesBps(quantities []int64, b float64) ([]int64, error) {
	prices, err := Prices(quantities, b)
	if err != nil {
		return nil, err
	}

	bps := make([]int64, len(prices))
	var sum int64
	maxIdx := 0
	for i, p := range prices {
		bps[i] = RoundBps(p)
		sum += bps[i]
		if prices[i] > prices[maxIdx] {
			maxIdx = i
		}
	}
	bps[maxIdx] += BpsDenominator - sum
	return bps, nil
}

// BuyCost returns the integer cost of adding delta shares to the given
// outcome: floor(C(q + delta·e_i) - C(q)), never negative. Convexity of C
// makes the result monotonically increasing in delta.
func BuyCost(quantities []int64, outcome int, delta int64, b float64) (int64, error) {
	if outcome < 0 || outcome >= len(quantities) {
		return 0, domain.ErrOutcomeOutOfRange
	}
	if delta < 0 {
		return 0, domain.ErrInvalidAmount
	}
	if delta == 0 {
		return 0, nil
	}
	if quantities[outcome] > math.MaxInt64-delta {
		return 0, domain.ErrInvalidAmount
	}

	current, err := Cost(quantities, b)
	if err != nil {
		return 0, err
	}

	next := append([]int64(nil), quantities...)
	next[outcome] += delta
	after, err := Cost(next, b)
	if err != nil {
		return 0, err
	}

	return FloorUnits(after - current), nil
}

// SellPayout returns the integer payout for removing delta shares from the
// given outcome: floor(C(q) - C(q - delta·e_i)), never negative. A delta
// larger than the outcome's total is clamped to zero shares remaining;
// callers must reject oversell against the seller's position before
// invoking this rather than rely on the clamp.
func SellPayout(quantities []int64, outcome int, delta int64, b float64) (int64, error) {
	if outcome < 0 || outcome >= len(quantities) {
		return 0, domain.ErrOutcomeOutOfRange
	}
	if delta < 0 {
		return 0, domain.ErrInvalidAmount
	}
	if delta == 0 {
		return 0, nil
	}

	current, err := Cost(quantities, b)
	if err != nil {
		return 0, err
	}

	removed := delta
	if removed > quantities[outcome] {
		removed = quantities[outcome]
	}
	next := append([]int64(nil), quantities...)
	next[outcome] -= removed
	after, err := Cost(next, b)
	if err != nil {
		return 0, err
	}

	return FloorUnits(current - after), nil
}

// SharesForCost returns the largest share count whose buy cost does not
// exceed the given budget, found by binary search over the monotone
// BuyCost. Used for quoting only; order execution prices an exact share
// count.
func SharesForCost(quantities []int64, outcome int, cost int64, b float64) (int64, error) {
	if outcome < 0 || outcome >= len(quantities) {
		return 0, domain.ErrOutcomeOutOfRange
	}
	if cost < 0 {
		return 0, domain.ErrInvalidAmount
	}
	if cost == 0 {
		return 0, nil
	}
	if b <= 0 || math.IsNaN(b) {
		return 0, domain.ErrInvalidLiquidity
	}

	// Buying k shares costs at least k - b·ln(n), so the budget bounds the
	// share count by cost + b·ln(n) + 1. Budgets near MaxInt64 wrap that
	// sum; clamp so the search range stays valid and mid never trips the
	// BuyCost overflow guard.
	hi := cost + int64(math.Ceil(b*math.Log(float64(len(quantities))))) + 1
	if hi < cost {
		hi = math.MaxInt64 - quantities[outcome]
	}
	lo := int64(0)
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		c, err := BuyCost(quantities, outcome, mid, b)
		if err != nil {
			return 0, err
		}
		if c <= cost {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}
