package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/opine-markets/opined/internal/domain"
)

func TestResolve(t *testing.T) {
	sink := &recordSink{}
	e := newTestEngine(t, 0, sink)
	m := newTestMarket(t, e, 3, 1_000_000_000)

	t.Run("invalid outcome", func(t *testing.T) {
		if _, err := e.Resolve(m.ID, 3); !errors.Is(err, domain.ErrOutcomeOutOfRange) {
			t.Errorf("Resolve(3) error = %v, want ErrOutcomeOutOfRange", err)
		}
		snap, _ := e.Snapshot(m.ID)
		if snap.Resolved {
			t.Error("market resolved by rejected call")
		}
	})

	t.Run("first call wins", func(t *testing.T) {
		snap, err := e.Resolve(m.ID, 1)
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}
		if !snap.Resolved || snap.WinningOutcome == nil || *snap.WinningOutcome != 1 {
			t.Errorf("resolved snapshot = %+v", snap)
		}
		if len(sink.resolved) != 1 || sink.resolved[0] != 1 {
			t.Errorf("MarketResolved events = %v", sink.resolved)
		}
	})

	t.Run("second call rejected", func(t *testing.T) {
		if _, err := e.Resolve(m.ID, 2); !errors.Is(err, domain.ErrAlreadyResolved) {
			t.Errorf("second Resolve() error = %v, want ErrAlreadyResolved", err)
		}
		snap, _ := e.Snapshot(m.ID)
		if *snap.WinningOutcome != 1 {
			t.Errorf("winning outcome changed to %d", *snap.WinningOutcome)
		}
	})

	t.Run("unknown market", func(t *testing.T) {
		if _, err := e.Resolve("nope", 0); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Resolve(unknown) error = %v, want ErrNotFound", err)
		}
	})
}

func TestClaim_Lifecycle(t *testing.T) {
	sink := &recordSink{}
	e := newTestEngine(t, 0, sink)
	m := newTestMarket(t, e, 2, 1_000_000_000)

	buy, err := e.SubmitBuy(m.ID, "bob", 0, 10_000_000, 0)
	if err != nil {
		t.Fatalf("SubmitBuy() error: %v", err)
	}

	t.Run("before resolution", func(t *testing.T) {
		if _, err := e.Claim(m.ID, "bob"); !errors.Is(err, domain.ErrMarketNotResolved) {
			t.Errorf("Claim() error = %v, want ErrMarketNotResolved", err)
		}
	})

	if _, err := e.Resolve(m.ID, 0); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	t.Run("no position", func(t *testing.T) {
		if _, err := e.Claim(m.ID, "carol"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Claim() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("pays pro rata", func(t *testing.T) {
		res, err := e.Claim(m.ID, "bob")
		if err != nil {
			t.Fatalf("Claim() error: %v", err)
		}
		// Sole holder of the winning pool takes the full liquidity.
		if res.Payout != m.Liquidity {
			t.Errorf("payout = %d, want %d", res.Payout, m.Liquidity)
		}
		if !res.Position.Claimed {
			t.Error("position not marked claimed")
		}
		if len(sink.claims) != 1 || sink.claims[0] != res.Payout {
			t.Errorf("PositionClaimed events = %v", sink.claims)
		}
		_ = buy
	})

	t.Run("second claim rejected", func(t *testing.T) {
		if _, err := e.Claim(m.ID, "bob"); !errors.Is(err, domain.ErrAlreadyClaimed) {
			t.Errorf("second Claim() error = %v, want ErrAlreadyClaimed", err)
		}
	})
}

func TestClaim_SplitPool(t *testing.T) {
	e := newTestEngine(t, 0, nil)
	m := newTestMarket(t, e, 2, 1_000_000_000)

	users := []string{"u0", "u1", "u2"}
	for _, u := range users {
		if _, err := e.SubmitBuy(m.ID, u, 0, 3_000_000, 0); err != nil {
			t.Fatalf("SubmitBuy(%s) error: %v", u, err)
		}
	}
	if _, err := e.SubmitBuy(m.ID, "loser", 1, 3_000_000, 0); err != nil {
		t.Fatalf("SubmitBuy(loser) error: %v", err)
	}
	if _, err := e.Resolve(m.ID, 0); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	var total int64
	for _, u := range users {
		res, err := e.Claim(m.ID, u)
		if err != nil {
			t.Fatalf("Claim(%s) error: %v", u, err)
		}
		total += res.Payout
	}

	// Floored pro-rata shares can never pay out more than the pool.
	if total > m.Liquidity {
		t.Errorf("total payouts %d exceed liquidity %d", total, m.Liquidity)
	}
	if total < m.Liquidity-int64(len(users)) {
		t.Errorf("total payouts %d lose more than truncation allows", total)
	}

	res, err := e.Claim(m.ID, "loser")
	if err != nil {
		t.Fatalf("Claim(loser) error: %v", err)
	}
	if res.Payout != 0 {
		t.Errorf("losing position payout = %d, want 0", res.Payout)
	}
	if !res.Position.Claimed {
		t.Error("losing position not marked claimed")
	}
}

func TestClaim_EmptyWinningPool(t *testing.T) {
	e := newTestEngine(t, 0, nil)
	m := newTestMarket(t, e, 2, 1_000_000_000)

	if _, err := e.SubmitBuy(m.ID, "bob", 1, 1_000_000, 0); err != nil {
		t.Fatalf("SubmitBuy() error: %v", err)
	}
	// Outcome 0 wins with nobody holding it.
	if _, err := e.Resolve(m.ID, 0); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	res, err := e.Claim(m.ID, "bob")
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if res.Payout != 0 {
		t.Errorf("payout = %d, want 0 for empty winning pool", res.Payout)
	}
	if !res.Position.Claimed {
		t.Error("position not marked claimed on zero payout")
	}
}

func TestEstimatedPayout(t *testing.T) {
	e := newTestEngine(t, 0, nil)
	m := newTestMarket(t, e, 2, 1_000_000_000)

	if _, err := e.SubmitBuy(m.ID, "bob", 0, 5_000_000, 0); err != nil {
		t.Fatalf("SubmitBuy() error: %v", err)
	}

	snap, _ := e.Snapshot(m.ID)
	pos, _ := e.Position(m.ID, "bob")
	if got := EstimatedPayout(snap, pos); got != 0 {
		t.Errorf("EstimatedPayout(unresolved) = %d, want 0", got)
	}

	if _, err := e.Resolve(m.ID, 0); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	snap, _ = e.Snapshot(m.ID)
	pos, _ = e.Position(m.ID, "bob")

	estimate := EstimatedPayout(snap, pos)
	res, err := e.Claim(m.ID, "bob")
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if estimate != res.Payout {
		t.Errorf("EstimatedPayout = %d, Claim paid %d", estimate, res.Payout)
	}
	if got := EstimatedPayout(snap, res.Position); got != 0 {
		t.Errorf("EstimatedPayout(claimed) = %d, want 0", got)
	}
}

func TestSettlementPayout(t *testing.T) {
	tests := []struct {
		name                    string
		shares, liquidity, pool int64
		want                    int64
	}{
		{"full pool", 100, 1_000_000, 100, 1_000_000},
		{"half pool", 50, 1_000_000, 100, 500_000},
		{"floors", 1, 100, 3, 33},
		{"zero shares", 0, 1_000_000, 100, 0},
		{"empty pool", 10, 1_000_000, 0, 0},
		{"large values", 1 << 40, 1 << 40, 1 << 40, 1 << 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := settlementPayout(tt.shares, tt.liquidity, tt.pool); got != tt.want {
				t.Errorf("settlementPayout(%d, %d, %d) = %d, want %d", tt.shares, tt.liquidity, tt.pool, got, tt.want)
			}
		})
	}
}

func TestApplyDelta_Defensive(t *testing.T) {
	ms := newMarketState(domain.Market{
		ID:          "m",
		Outcomes:    []string{"yes", "no"},
		TotalShares: []int64{5, 0},
	})

	if err := ms.applyDelta(2, 1); !errors.Is(err, domain.ErrOutcomeOutOfRange) {
		t.Errorf("applyDelta(2) error = %v, want ErrOutcomeOutOfRange", err)
	}
	if err := ms.applyDelta(0, -6); !errors.Is(err, domain.ErrNegativeBalance) {
		t.Errorf("applyDelta(-6) error = %v, want ErrNegativeBalance", err)
	}
	if ms.market.TotalShares[0] != 5 {
		t.Errorf("vector mutated by rejected delta: %v", ms.market.TotalShares)
	}
	if err := ms.applyDelta(0, -5); err != nil {
		t.Errorf("applyDelta(-5) error: %v", err)
	}
	if ms.market.TotalShares[0] != 0 {
		t.Errorf("TotalShares[0] = %d, want 0", ms.market.TotalShares[0])
	}
}

func TestClaim_SplitPoolPayoutsMatchShares(t *testing.T) {
	e := newTestEngine(t, 0, nil)
	m := newTestMarket(t, e, 2, 1_000_000_000)

	holdings := make(map[string]int64)
	for i := 0; i < 4; i++ {
		u := fmt.Sprintf("u%d", i)
		res, err := e.SubmitBuy(m.ID, u, 0, int64(1_000_000*(i+1)), 0)
		if err != nil {
			t.Fatalf("SubmitBuy(%s) error: %v", u, err)
		}
		holdings[u] = res.Order.ActualAmount
	}
	if _, err := e.Resolve(m.ID, 0); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	snap, _ := e.Snapshot(m.ID)
	pool := snap.TotalShares[0]

	for u, shares := range holdings {
		res, err := e.Claim(m.ID, u)
		if err != nil {
			t.Fatalf("Claim(%s) error: %v", u, err)
		}
		want := settlementPayout(shares, m.Liquidity, pool)
		if res.Payout != want {
			t.Errorf("Claim(%s) payout = %d, want %d", u, res.Payout, want)
		}
	}
}
