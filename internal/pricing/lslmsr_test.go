package pricing

import (
	"errors"
	"math"
	"testing"

	"github.com/opine-markets/opined/internal/domain"
)

const (
	testLiquidity = int64(1_000_000_000)
)

func testB(t *testing.T) float64 {
	t.Helper()
	e, err := New(DefaultAlpha)
	if err != nil {
		t.Fatalf("New(DefaultAlpha) error: %v", err)
	}
	return e.B(testLiquidity)
}

func TestNew_InvalidAlpha(t *testing.T) {
	for _, alpha := range []float64{0, -0.01, math.NaN()} {
		if _, err := New(alpha); !errors.Is(err, domain.ErrInvalidLiquidity) {
			t.Errorf("New(%v) error = %v, want ErrInvalidLiquidity", alpha, err)
		}
	}
}

func TestCost_ZeroShares(t *testing.T) {
	b := testB(t)
	cost, err := Cost([]int64{0, 0}, b)
	if err != nil {
		t.Fatalf("Cost() error: %v", err)
	}
	// C([0,0]) = b * ln(2).
	want := b * math.Log(2)
	if math.Abs(cost-want) > 1e-3 {
		t.Errorf("Cost([0,0]) = %v, want %v", cost, want)
	}
}

func TestCost_InvalidInputs(t *testing.T) {
	if _, err := Cost([]int64{1, 2}, 0); !errors.Is(err, domain.ErrInvalidLiquidity) {
		t.Errorf("Cost with b=0: error = %v, want ErrInvalidLiquidity", err)
	}
	if _, err := Cost(nil, 100); !errors.Is(err, domain.ErrInvalidMarket) {
		t.Errorf("Cost with empty quantities: error = %v, want ErrInvalidMarket", err)
	}
}

func TestPrices_SumToOne(t *testing.T) {
	b := testB(t)
	tests := []struct {
		name       string
		quantities []int64
	}{
		{"fresh binary", []int64{0, 0}},
		{"skewed binary", []int64{10_000, 1}},
		{"three outcomes", []int64{100, 200, 150}},
		{"ten outcomes", []int64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}},
		{"large totals", []int64{1_000_000, 2_000_000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prices, err := Prices(tt.quantities, b)
			if err != nil {
				t.Fatalf("Prices() error: %v", err)
			}
			var sum float64
			for i, p := range prices {
				if p < 0 || p > 1 {
					t.Errorf("price[%d] = %v outside [0,1]", i, p)
				}
				sum += p
			}
			if math.Abs(sum-1) > 1e-6 {
				t.Errorf("Σ prices = %v, want 1 ± 1e-6", sum)
			}
		})
	}
}

func TestPricesBps_FreshBinaryMarket(t *testing.T) {
	b := testB(t)
	bps, err := PricesBps([]int64{0, 0}, b)
	if err != nil {
		t.Fatalf("PricesBps() error: %v", err)
	}
	if bps[0] != 5000 || bps[1] != 5000 {
		t.Errorf("PricesBps([0,0]) = %v, want [5000 5000]", bps)
	}
}

func TestPricesBps_ShiftAfterBuy(t *testing.T) {
	b := testB(t)
	bps, err := PricesBps([]int64{100, 0}, b)
	if err != nil {
		t.Fatalf("PricesBps() error: %v", err)
	}
	if bps[0] <= 5000 {
		t.Errorf("bps[0] = %d, want > 5000 after buy of outcome 0", bps[0])
	}
	if bps[1] >= 5000 {
		t.Errorf("bps[1] = %d, want < 5000 after buy of outcome 0", bps[1])
	}
	if bps[0]+bps[1] != 10_000 {
		t.Errorf("Σ bps = %d, want 10000", bps[0]+bps[1])
	}
}

func TestPricesBps_AlwaysSumsToTenThousand(t *testing.T) {
	b := testB(t)
	vectors := [][]int64{
		{1, 2, 3},
		{100, 150, 200},
		{0, 10, 20, 30, 40, 50, 60, 70, 80, 90},
		{999_999, 1, 1},
	}
	for _, q := range vectors {
		bps, err := PricesBps(q, b)
		if err != nil {
			t.Fatalf("PricesBps(%v) error: %v", q, err)
		}
		var sum int64
		for _, p := range bps {
			sum += p
		}
		if sum != 10_000 {
			t.Errorf("PricesBps(%v) sums to %d, want 10000", q, sum)
		}
	}
}

func TestBuyCost_StrictlyIncreasingInDelta(t *testing.T) {
	b := testB(t)
	q := []int64{0, 0}
	var prev int64 = -1
	for _, delta := range []int64{1_000, 10_000, 100_000, 1_000_000, 10_000_000} {
		cost, err := BuyCost(q, 0, delta, b)
		if err != nil {
			t.Fatalf("BuyCost(delta=%d) error: %v", delta, err)
		}
		if cost <= prev {
			t.Errorf("BuyCost(delta=%d) = %d, not greater than cost %d at smaller delta", delta, cost, prev)
		}
		prev = cost
	}
}

func TestBuyCost_IncreasingMarginalCost(t *testing.T) {
	b := testB(t)
	first, err := BuyCost([]int64{0, 0}, 0, 1_000_000, b)
	if err != nil {
		t.Fatalf("BuyCost() error: %v", err)
	}
	second, err := BuyCost([]int64{1_000_000, 0}, 0, 1_000_000, b)
	if err != nil {
		t.Fatalf("BuyCost() error: %v", err)
	}
	if second <= first {
		t.Errorf("marginal cost %d not greater than previous tranche %d", second, first)
	}
}

func TestBuyCost_Validation(t *testing.T) {
	b := testB(t)
	if _, err := BuyCost([]int64{0, 0}, 2, 10, b); !errors.Is(err, domain.ErrOutcomeOutOfRange) {
		t.Errorf("outcome out of range: error = %v, want ErrOutcomeOutOfRange", err)
	}
	if _, err := BuyCost([]int64{0, 0}, 0, -1, b); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("negative delta: error = %v, want ErrInvalidAmount", err)
	}
	cost, err := BuyCost([]int64{0, 0}, 0, 0, b)
	if err != nil || cost != 0 {
		t.Errorf("zero delta: got (%d, %v), want (0, nil)", cost, err)
	}
}

func TestSellPayout_LessThanOrEqualBuyCost(t *testing.T) {
	b := testB(t)
	q := []int64{100, 200}
	delta := int64(1_000_000)

	buy, err := BuyCost(q, 0, delta, b)
	if err != nil {
		t.Fatalf("BuyCost() error: %v", err)
	}

	after := []int64{q[0] + delta, q[1]}
	sell, err := SellPayout(after, 0, delta, b)
	if err != nil {
		t.Fatalf("SellPayout() error: %v", err)
	}

	if sell > buy {
		t.Errorf("SellPayout = %d exceeds BuyCost = %d", sell, buy)
	}
}

func TestRoundTrip_WithinOneUnit(t *testing.T) {
	b := testB(t)
	starts := [][]int64{
		{0, 0},
		{500_000, 250_000},
		{1, 2, 3},
	}
	for _, q := range starts {
		for _, delta := range []int64{1_000, 123_457, 5_000_000} {
			buy, err := BuyCost(q, 0, delta, b)
			if err != nil {
				t.Fatalf("BuyCost(%v, %d) error: %v", q, delta, err)
			}
			after := append([]int64(nil), q...)
			after[0] += delta
			sell, err := SellPayout(after, 0, delta, b)
			if err != nil {
				t.Fatalf("SellPayout(%v, %d) error: %v", after, delta, err)
			}
			if diff := buy - sell; diff < 0 || diff > 1 {
				t.Errorf("round trip q=%v delta=%d: buy=%d sell=%d, want loss in [0,1]", q, delta, buy, sell)
			}
		}
	}
}

func TestSellPayout_DecreasingMarginalPayout(t *testing.T) {
	b := testB(t)
	first, err := SellPayout([]int64{2_000_000, 0}, 0, 500_000, b)
	if err != nil {
		t.Fatalf("SellPayout() error: %v", err)
	}
	second, err := SellPayout([]int64{1_500_000, 0}, 0, 500_000, b)
	if err != nil {
		t.Fatalf("SellPayout() error: %v", err)
	}
	if second >= first {
		t.Errorf("marginal payout %d not less than previous tranche %d", second, first)
	}
}

func TestSellPayout_ClampsAtZero(t *testing.T) {
	b := testB(t)
	// Selling past the outcome total clamps the vector at zero; the payout
	// equals a full liquidation of the outcome.
	full, err := SellPayout([]int64{50, 100}, 0, 50, b)
	if err != nil {
		t.Fatalf("SellPayout() error: %v", err)
	}
	clamped, err := SellPayout([]int64{50, 100}, 0, 500, b)
	if err != nil {
		t.Fatalf("SellPayout() error: %v", err)
	}
	if clamped != full {
		t.Errorf("clamped oversell payout = %d, want %d", clamped, full)
	}
}

func TestSharesForCost_InvertsBuyCost(t *testing.T) {
	b := testB(t)
	q := []int64{100_000, 50_000}

	for _, target := range []int64{10_000, 1_000_000, 50_000_000} {
		shares, err := SharesForCost(q, 0, target, b)
		if err != nil {
			t.Fatalf("SharesForCost(%d) error: %v", target, err)
		}
		cost, err := BuyCost(q, 0, shares, b)
		if err != nil {
			t.Fatalf("BuyCost(%d) error: %v", shares, err)
		}
		if cost > target {
			t.Errorf("SharesForCost(%d) = %d shares costing %d, exceeds budget", target, shares, cost)
		}
		over, err := BuyCost(q, 0, shares+1, b)
		if err != nil {
			t.Fatalf("BuyCost(%d) error: %v", shares+1, err)
		}
		if over <= target {
			t.Errorf("SharesForCost(%d) = %d not maximal: %d shares still affordable at %d", target, shares, shares+1, over)
		}
	}
}

func TestSharesForCost_HugeBudget(t *testing.T) {
	b := testB(t)
	// A budget this close to MaxInt64 wraps the naive upper bound of the
	// search; the clamp must keep the range valid instead of answering zero.
	budget := int64(math.MaxInt64 - 1_000)
	shares, err := SharesForCost([]int64{0, 0}, 0, budget, b)
	if err != nil {
		t.Fatalf("SharesForCost(%d) error: %v", budget, err)
	}
	if shares == 0 {
		t.Fatal("SharesForCost returned 0 shares for a near-max budget")
	}
	cost, err := BuyCost([]int64{0, 0}, 0, shares, b)
	if err != nil {
		t.Fatalf("BuyCost(%d) error: %v", shares, err)
	}
	if cost > budget {
		t.Errorf("BuyCost(%d) = %d exceeds budget %d", shares, cost, budget)
	}
}

func TestSharesForCost_ZeroBudget(t *testing.T) {
	b := testB(t)
	shares, err := SharesForCost([]int64{0, 0}, 0, 0, b)
	if err != nil || shares != 0 {
		t.Errorf("SharesForCost(0) = (%d, %v), want (0, nil)", shares, err)
	}
}

func TestAlphaSensitivity(t *testing.T) {
	low, err := New(0.01)
	if err != nil {
		t.Fatalf("New(0.01) error: %v", err)
	}
	high, err := New(0.05)
	if err != nil {
		t.Fatalf("New(0.05) error: %v", err)
	}

	q := []int64{1_000_000, 0}
	pLow, err := Prices(q, low.B(testLiquidity))
	if err != nil {
		t.Fatalf("Prices() error: %v", err)
	}
	pHigh, err := Prices(q, high.B(testLiquidity))
	if err != nil {
		t.Fatalf("Prices() error: %v", err)
	}
	// A smaller b reacts more sharply to the same share imbalance.
	if pLow[0] <= pHigh[0] {
		t.Errorf("price at alpha=0.01 (%v) not above price at alpha=0.05 (%v)", pLow[0], pHigh[0])
	}
}
