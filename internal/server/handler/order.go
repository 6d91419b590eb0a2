package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/opine-markets/opined/internal/domain"
	"github.com/opine-markets/opined/internal/engine"
	"github.com/opine-markets/opined/internal/service"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	SubmitBuy(ctx context.Context, marketID, user string, outcome int, maxCost, minShares int64) (engine.TradeResult, error)
	SubmitSell(ctx context.Context, marketID, user string, outcome int, sharesToSell, minPayout int64) (engine.TradeResult, error)
	Cancel(ctx context.Context, orderID, user string) (domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter domain.OrderFilter, opts domain.ListOpts) ([]domain.Order, error)
	Stats(ctx context.Context) (domain.OrderStats, error)
	CollectedFees() int64
	QuoteBuy(ctx context.Context, marketID string, outcome int, maxCost int64) (shares, cost, fee int64, err error)
	QuoteSell(ctx context.Context, marketID string, outcome int, shares int64) (payout, fee int64, err error)
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// submitOrderRequest is the body for trade submission. For buys, max_cost is
// the budget and min_shares the slippage floor; for sells, shares is the
// amount to liquidate and min_payout the slippage floor.
type submitOrderRequest struct {
	MarketID     string `json:"market_id"`
	User         string `json:"user"`
	Side         string `json:"side"`
	OutcomeIndex int    `json:"outcome_index"`
	MaxCost      int64  `json:"max_cost"`
	MinShares    int64  `json:"min_shares"`
	Shares       int64  `json:"shares"`
	MinPayout    int64  `json:"min_payout"`
}

// tradeResponse is the result of a trade submission: the finalized order
// plus the post-trade market prices.
type tradeResponse struct {
	Order     orderResponse `json:"order"`
	PricesBps []int64       `json:"prices_bps,omitempty"`
}

// SubmitOrder executes a buy or sell against a market.
// POST /api/orders
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.MarketID == "" || req.User == "" {
		writeError(w, http.StatusBadRequest, "market_id and user are required")
		return
	}

	var (
		res engine.TradeResult
		err error
	)
	switch domain.OrderSide(strings.ToLower(req.Side)) {
	case domain.OrderSideBuy:
		res, err = h.orders.SubmitBuy(r.Context(), req.MarketID, req.User, req.OutcomeIndex, req.MaxCost, req.MinShares)
	case domain.OrderSideSell:
		res, err = h.orders.SubmitSell(r.Context(), req.MarketID, req.User, req.OutcomeIndex, req.Shares, req.MinPayout)
	default:
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}

	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		if service.IsRejection(err) {
			// The rejected order record travels with the error so clients
			// can inspect the failure detail.
			writeJSON(w, http.StatusUnprocessableEntity, tradeResponse{
				Order: toOrderResponse(res.Order),
			})
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: submit order failed",
			slog.String("market_id", req.MarketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to submit order")
		return
	}

	writeJSON(w, http.StatusCreated, tradeResponse{
		Order:     toOrderResponse(res.Order),
		PricesBps: res.PricesBps,
	})
}

// Quote previews a trade without executing it.
// GET /api/markets/{id}/quote?side=buy&outcome=0&amount=100000
func (h *OrderHandler) Quote(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	q := r.URL.Query()
	outcome, err := strconv.Atoi(q.Get("outcome"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "outcome query parameter required")
		return
	}
	amount, err := strconv.ParseInt(q.Get("amount"), 10, 64)
	if err != nil || amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount query parameter must be a positive integer")
		return
	}

	switch strings.ToLower(q.Get("side")) {
	case "buy":
		shares, cost, fee, err := h.orders.QuoteBuy(r.Context(), marketID, outcome, amount)
		if err != nil {
			h.writeQuoteError(w, r, marketID, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{
			"shares": shares,
			"cost":   cost,
			"fee":    fee,
		})
	case "sell":
		payout, fee, err := h.orders.QuoteSell(r.Context(), marketID, outcome, amount)
		if err != nil {
			h.writeQuoteError(w, r, marketID, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{
			"payout": payout,
			"fee":    fee,
		})
	default:
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
	}
}

func (h *OrderHandler) writeQuoteError(w http.ResponseWriter, r *http.Request, marketID string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "market not found")
		return
	}
	if service.IsRejection(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.ErrorContext(r.Context(), "handler: quote failed",
		slog.String("market_id", marketID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to quote")
}

// listOrdersResponse wraps the list orders response.
type listOrdersResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// ListOrders returns orders filtered by market, user, side, or status.
// GET /api/orders?market_id=...&user=...&side=buy&status=executed
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.OrderFilter{
		MarketID: q.Get("market_id"),
		User:     q.Get("user"),
		Side:     domain.OrderSide(q.Get("side")),
		Status:   domain.OrderStatus(q.Get("status")),
	}
	if filter.MarketID == "" && filter.User == "" {
		writeError(w, http.StatusBadRequest, "market_id or user query parameter required")
		return
	}

	opts := parseListOpts(r)
	orders, err := h.orders.List(r.Context(), filter, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	writeJSON(w, http.StatusOK, listOrdersResponse{
		Orders: toOrderResponses(orders),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// OrderStats returns aggregate order activity.
// GET /api/orders/stats
func (h *OrderHandler) OrderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orders.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: order stats failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get order stats")
		return
	}

	byStatus := make(map[string]int64, len(stats.ByStatus))
	for status, n := range stats.ByStatus {
		byStatus[string(status)] = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_orders":   stats.TotalOrders,
		"unique_users":   stats.UniqueUsers,
		"total_volume":   stats.TotalVolume,
		"total_fees":     stats.TotalFees,
		"collected_fees": h.orders.CollectedFees(),
		"by_status":      byStatus,
	})
}

// GetOrder returns a single order by its ID.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// CancelOrder cancels a pending order. The user query parameter must match
// the order's owner.
// DELETE /api/orders/{id}?user=alice
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user query parameter required")
		return
	}

	order, err := h.orders.Cancel(r.Context(), id, user)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, domain.ErrUnauthorized):
			writeError(w, http.StatusForbidden, "order belongs to another user")
		case errors.Is(err, domain.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "order is not pending")
		default:
			h.logger.ErrorContext(r.Context(), "handler: cancel order failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to cancel order")
		}
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}
