package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opine-markets/opined/internal/domain"
	"github.com/opine-markets/opined/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubOrderService returns canned answers for the stats endpoints.
type stubOrderService struct {
	stats     domain.OrderStats
	collected int64
}

func (s *stubOrderService) SubmitBuy(context.Context, string, string, int, int64, int64) (engine.TradeResult, error) {
	return engine.TradeResult{}, nil
}

func (s *stubOrderService) SubmitSell(context.Context, string, string, int, int64, int64) (engine.TradeResult, error) {
	return engine.TradeResult{}, nil
}

func (s *stubOrderService) Cancel(context.Context, string, string) (domain.Order, error) {
	return domain.Order{}, nil
}

func (s *stubOrderService) Get(context.Context, string) (domain.Order, error) {
	return domain.Order{}, nil
}

func (s *stubOrderService) List(context.Context, domain.OrderFilter, domain.ListOpts) ([]domain.Order, error) {
	return nil, nil
}

func (s *stubOrderService) Stats(context.Context) (domain.OrderStats, error) {
	return s.stats, nil
}

func (s *stubOrderService) CollectedFees() int64 { return s.collected }

func (s *stubOrderService) QuoteBuy(context.Context, string, int, int64) (int64, int64, int64, error) {
	return 0, 0, 0, nil
}

func (s *stubOrderService) QuoteSell(context.Context, string, int, int64) (int64, int64, error) {
	return 0, 0, nil
}

func TestOrderStats_IncludesCollectedFees(t *testing.T) {
	svc := &stubOrderService{
		stats: domain.OrderStats{
			TotalOrders: 3,
			UniqueUsers: 2,
			TotalVolume: 60_000,
			TotalFees:   1_200,
			ByStatus:    map[domain.OrderStatus]int64{domain.OrderStatusExecuted: 3},
		},
		collected: 1_450,
	}
	h := NewOrderHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.OrderStats(rec, httptest.NewRequest(http.MethodGet, "/api/orders/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got := body["collected_fees"]; got != float64(1_450) {
		t.Errorf("collected_fees = %v, want 1450", got)
	}
	if got := body["total_orders"]; got != float64(3) {
		t.Errorf("total_orders = %v, want 3", got)
	}
}
