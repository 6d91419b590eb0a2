package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opine-markets/opined/internal/domain"
	"github.com/opine-markets/opined/internal/pricing"
)

// recordSink captures emitted events for assertions.
type recordSink struct {
	mu       sync.Mutex
	created  []domain.Market
	shares   int
	resolved []int
	orders   []domain.Order
	claims   []int64
}

func (r *recordSink) MarketCreated(m domain.Market) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, m)
}

func (r *recordSink) SharesChanged(domain.Market, []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shares++
}

func (r *recordSink) MarketResolved(_ domain.Market, winning int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, winning)
}

func (r *recordSink) OrderFinalized(o domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o)
}

func (r *recordSink) PositionClaimed(_ domain.Market, _ domain.Position, payout int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims = append(r.claims, payout)
}

func newTestEngine(t *testing.T, feeBps int64, sink domain.EventSink) *Engine {
	t.Helper()
	cfg := Config{
		Alpha:        pricing.DefaultAlpha,
		FeeRateBps:   feeBps,
		MinLiquidity: 1_000,
		MaxLiquidity: 1_000_000_000_000,
	}
	e, err := New(cfg, sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return e
}

func newTestMarket(t *testing.T, e *Engine, outcomes int, liquidity int64) domain.Market {
	t.Helper()
	labels := make([]string, outcomes)
	for i := range labels {
		labels[i] = fmt.Sprintf("outcome-%d", i)
	}
	m, err := e.CreateMarket("Will it rain in Lisbon tomorrow?", labels, time.Now().Add(48*time.Hour), liquidity, "alice")
	if err != nil {
		t.Fatalf("CreateMarket() error: %v", err)
	}
	return m
}

func TestCreateMarket_Envelope(t *testing.T) {
	e := newTestEngine(t, 0, nil)
	end := time.Now().Add(48 * time.Hour)
	two := []string{"yes", "no"}

	tests := []struct {
		name      string
		question  string
		outcomes  []string
		endTime   time.Time
		liquidity int64
		wantErr   error
	}{
		{"empty question", "", two, end, 1_000_000, domain.ErrInvalidMarket},
		{"question too long", strings.Repeat("q", domain.MaxQuestionLen+1), two, end, 1_000_000, domain.ErrInvalidMarket},
		{"one outcome", "q?", []string{"yes"}, end, 1_000_000, domain.ErrInvalidMarket},
		{"eleven outcomes", "q?", make11(), end, 1_000_000, domain.ErrInvalidMarket},
		{"blank outcome label", "q?", []string{"yes", "  "}, end, 1_000_000, domain.ErrInvalidMarket},
		{"outcome label too long", "q?", []string{"yes", strings.Repeat("n", domain.MaxOutcomeLen+1)}, end, 1_000_000, domain.ErrInvalidMarket},
		{"ends too soon", "q?", two, time.Now().Add(time.Hour), 1_000_000, domain.ErrInvalidMarket},
		{"ends too late", "q?", two, time.Now().Add(2 * domain.MaxMarketDuration), 1_000_000, domain.ErrInvalidMarket},
		{"liquidity below minimum", "q?", two, end, 10, domain.ErrInvalidLiquidity},
		{"liquidity above maximum", "q?", two, end, 1 << 62, domain.ErrInvalidLiquidity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CreateMarket(tt.question, tt.outcomes, tt.endTime, tt.liquidity, "alice")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateMarket() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func make11() []string {
	labels := make([]string, domain.MaxOutcomes+1)
	for i := range labels {
		labels[i] = fmt.Sprintf("o%d", i)
	}
	return labels
}

func TestCreateMarket_FreshState(t *testing.T) {
	sink := &recordSink{}
	e := newTestEngine(t, 200, sink)
	m := newTestMarket(t, e, 3, 1_000_000_000)

	if m.ID == "" {
		t.Error("market ID is empty")
	}
	if len(m.TotalShares) != 3 {
		t.Fatalf("len(TotalShares) = %d, want 3", len(m.TotalShares))
	}
	for i, s := range m.TotalShares {
		if s != 0 {
			t.Errorf("TotalShares[%d] = %d, want 0", i, s)
		}
	}
	if m.Resolved || m.WinningOutcome != nil {
		t.Error("fresh market reports resolved")
	}
	if len(sink.created) != 1 {
		t.Errorf("MarketCreated events = %d, want 1", len(sink.created))
	}

	snap, err := e.Snapshot(m.ID)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if snap.ID != m.ID {
		t.Errorf("Snapshot().ID = %q, want %q", snap.ID, m.ID)
	}
}

func TestSnapshot_UnknownMarket(t *testing.T) {
	e := newTestEngine(t, 0, nil)
	if _, err := e.Snapshot("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Snapshot(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestQuoteMarket_FreshBinary(t *testing.T) {
	e := newTestEngine(t, 0, nil)
	m := newTestMarket(t, e, 2, 1_000_000_000)

	q, err := e.QuoteMarket(m.ID)
	if err != nil {
		t.Fatalf("QuoteMarket() error: %v", err)
	}
	if q.PricesBps[0] != 5000 || q.PricesBps[1] != 5000 {
		t.Errorf("fresh binary quote = %v, want [5000 5000]", q.PricesBps)
	}
}

func TestQuoteMarket_ShiftsAfterBuy(t *testing.T) {
	e := newTestEngine(t, 0, nil)
	m := newTestMarket(t, e, 2, 1_000_000_000)

	if _, err := e.SubmitBuy(m.ID, "bob", 0, 5_000_000, 0); err != nil {
		t.Fatalf("SubmitBuy() error: %v", err)
	}

	q, err := e.QuoteMarket(m.ID)
	if err != nil {
		t.Fatalf("QuoteMarket() error: %v", err)
	}
	if q.PricesBps[0] <= 5000 {
		t.Errorf("PricesBps[0] = %d, want > 5000", q.PricesBps[0])
	}
	if q.PricesBps[0]+q.PricesBps[1] != 10_000 {
		t.Errorf("Σ bps = %d, want 10000", q.PricesBps[0]+q.PricesBps[1])
	}
}

func TestQuoteBuy_MatchesExecution(t *testing.T) {
	e := newTestEngine(t, 200, nil)
	m := newTestMarket(t, e, 2, 1_000_000_000)

	shares, cost, fee, err := e.QuoteBuy(m.ID, 0, 2_000_000)
	if err != nil {
		t.Fatalf("QuoteBuy() error: %v", err)
	}
	if shares == 0 {
		t.Fatal("QuoteBuy() returned 0 shares for a real budget")
	}
	if cost > 2_000_000 {
		t.Errorf("quoted cost %d exceeds budget", cost)
	}
	if want := pricing.FeeAmount(cost, 200); fee != want {
		t.Errorf("quoted fee = %d, want %d", fee, want)
	}

	res, err := e.SubmitBuy(m.ID, "bob", 0, 2_000_000, 0)
	if err != nil {
		t.Fatalf("SubmitBuy() error: %v", err)
	}
	if res.Order.ActualAmount != shares {
		t.Errorf("executed shares = %d, quote said %d", res.Order.ActualAmount, shares)
	}
	if res.Order.Fee != fee {
		t.Errorf("executed fee = %d, quote said %d", res.Order.Fee, fee)
	}
}

func TestRestore_Hydrates(t *testing.T) {
	e := newTestEngine(t, 0, nil)
	now := time.Now()
	m := domain.Market{
		ID:          "m1",
		Question:    "q?",
		Outcomes:    []string{"yes", "no"},
		EndTime:     now.Add(48 * time.Hour),
		Liquidity:   1_000_000_000,
		TotalShares: []int64{500, 0},
		Creator:     "alice",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p := domain.Position{
		MarketID:  "m1",
		User:      "bob",
		Shares:    []int64{500, 0},
		TotalCost: 260,
	}
	orphan := domain.Position{MarketID: "missing", User: "carol", Shares: []int64{1, 0}}

	e.Restore([]domain.Market{m}, []domain.Position{p, orphan})

	snap, err := e.Snapshot("m1")
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if snap.TotalShares[0] != 500 {
		t.Errorf("restored TotalShares[0] = %d, want 500", snap.TotalShares[0])
	}
	got, err := e.Position("m1", "bob")
	if err != nil {
		t.Fatalf("Position() error: %v", err)
	}
	if got.Shares[0] != 500 || got.TotalCost != 260 {
		t.Errorf("restored position = %+v", got)
	}
	if _, err := e.Position("missing", "carol"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("orphan position error = %v, want ErrNotFound", err)
	}
}

// Concurrent buys on the same market must serialize: every executed
// order's shares land in the vector exactly once and positions reconcile
// with the market total.
func TestConcurrentBuys_NoLostUpdates(t *testing.T) {
	e := newTestEngine(t, 0, nil)
	m := newTestMarket(t, e, 2, 1_000_000_000)

	const workers = 32
	results := make([]TradeResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)
			results[i], errs[i] = e.SubmitBuy(m.ID, user, i%2, 1_000_000, 0)
		}(i)
	}
	wg.Wait()

	var wantShares [2]int64
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("SubmitBuy(worker %d) error: %v", i, errs[i])
		}
		wantShares[i%2] += results[i].Order.ActualAmount
	}

	snap, err := e.Snapshot(m.ID)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	for outcome := 0; outcome < 2; outcome++ {
		if snap.TotalShares[outcome] != wantShares[outcome] {
			t.Errorf("TotalShares[%d] = %d, want %d (lost update)", outcome, snap.TotalShares[outcome], wantShares[outcome])
		}
	}

	var positionSum int64
	for i := 0; i < workers; i++ {
		p, err := e.Position(m.ID, fmt.Sprintf("user-%d", i))
		if err != nil {
			t.Fatalf("Position(user-%d) error: %v", i, err)
		}
		positionSum += p.TotalShares()
	}
	if total := snap.TotalShares[0] + snap.TotalShares[1]; positionSum != total {
		t.Errorf("position share sum %d != market total %d", positionSum, total)
	}
}

func TestCollectedFees_Accumulates(t *testing.T) {
	e := newTestEngine(t, 200, nil)
	m := newTestMarket(t, e, 2, 1_000_000_000)

	res, err := e.SubmitBuy(m.ID, "bob", 0, 1_000_000, 0)
	if err != nil {
		t.Fatalf("SubmitBuy() error: %v", err)
	}
	if e.CollectedFees() != res.Order.Fee {
		t.Errorf("CollectedFees() = %d, want %d", e.CollectedFees(), res.Order.Fee)
	}

	sell, err := e.SubmitSell(m.ID, "bob", 0, res.Order.ActualAmount, 0)
	if err != nil {
		t.Fatalf("SubmitSell() error: %v", err)
	}
	if want := res.Order.Fee + sell.Order.Fee; e.CollectedFees() != want {
		t.Errorf("CollectedFees() = %d, want %d", e.CollectedFees(), want)
	}
}
