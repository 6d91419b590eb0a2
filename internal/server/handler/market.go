package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/opine-markets/opined/internal/domain"
)

// MarketService defines the methods that the market handler requires from
// the service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type MarketService interface {
	Create(ctx context.Context, question string, outcomes []string, endTime time.Time, liquidity int64, creator string) (domain.Market, error)
	Get(ctx context.Context, id string) (domain.Market, error)
	Prices(ctx context.Context, id string) ([]int64, time.Time, error)
	ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	ListAll(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Search(ctx context.Context, query string, opts domain.ListOpts) ([]domain.Market, error)
	Stats(ctx context.Context) (domain.MarketStats, error)
	Resolve(ctx context.Context, id string, winningOutcome int) (domain.Market, error)
	AddLiquidity(ctx context.Context, id string, amount int64) (domain.Market, error)
	RemoveLiquidity(ctx context.Context, id string, amount int64) (domain.Market, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the body for market creation.
type createMarketRequest struct {
	Question  string    `json:"question"`
	Outcomes  []string  `json:"outcomes"`
	EndTime   time.Time `json:"end_time"`
	Liquidity int64     `json:"liquidity"`
	Creator   string    `json:"creator"`
}

// CreateMarket registers a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	m, err := h.markets.Create(r.Context(), req.Question, req.Outcomes, req.EndTime, req.Liquidity, req.Creator)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidMarket) || errors.Is(err, domain.ErrInvalidLiquidity) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create market")
		return
	}

	writeJSON(w, http.StatusCreated, toMarketResponse(m))
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketResponse `json:"markets"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ListMarkets returns markets with pagination. By default only markets open
// for trading are listed; status=all includes resolved and expired markets.
// GET /api/markets?status=active|all&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		markets []domain.Market
		err     error
	)
	if strings.EqualFold(r.URL.Query().Get("status"), "all") {
		markets, err = h.markets.ListAll(r.Context(), opts)
	} else {
		markets, err = h.markets.ListActive(r.Context(), opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: toMarketResponses(markets),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// SearchMarkets returns markets whose question matches the query.
// GET /api/markets/search?q=bitcoin&limit=50&offset=0
func (h *MarketHandler) SearchMarkets(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q query parameter required")
		return
	}

	markets, err := h.markets.Search(r.Context(), query, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: search markets failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to search markets")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"markets": toMarketResponses(markets),
		"query":   query,
	})
}

// MarketStats returns aggregate market counts.
// GET /api/markets/stats
func (h *MarketHandler) MarketStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.markets.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: market stats failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{
		"total_markets":    stats.TotalMarkets,
		"active_markets":   stats.ActiveMarkets,
		"resolved_markets": stats.ResolvedMarkets,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	m, err := h.markets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, toMarketResponse(m))
}

// GetPrices returns the current per-outcome prices in basis points.
// GET /api/markets/{id}/prices
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	bps, ts, err := h.markets.Prices(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get prices failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get prices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":  id,
		"prices_bps": bps,
		"timestamp":  ts.UTC().Format(time.RFC3339Nano),
	})
}

// liquidityRequest is the body for liquidity adjustments.
type liquidityRequest struct {
	Action string `json:"action"` // "add" or "remove"
	Amount int64  `json:"amount"`
}

// UpdateLiquidity adjusts a market's subsidy pool. Admin only.
// POST /api/markets/{id}/liquidity
func (h *MarketHandler) UpdateLiquidity(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req liquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var (
		m   domain.Market
		err error
	)
	switch strings.ToLower(req.Action) {
	case "add":
		m, err = h.markets.AddLiquidity(r.Context(), id, req.Amount)
	case "remove":
		m, err = h.markets.RemoveLiquidity(r.Context(), id, req.Amount)
	default:
		writeError(w, http.StatusBadRequest, "action must be add or remove")
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrMarketClosed):
			writeError(w, http.StatusConflict, "market is closed")
		case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidLiquidity):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: update liquidity failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to update liquidity")
		}
		return
	}

	writeJSON(w, http.StatusOK, toMarketResponse(m))
}

// resolveMarketRequest is the body for market resolution.
type resolveMarketRequest struct {
	WinningOutcome int `json:"winning_outcome"`
}

// ResolveMarket settles a market on the winning outcome. Admin only.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req resolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	m, err := h.markets.Resolve(r.Context(), id, req.WinningOutcome)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrAlreadyResolved):
			writeError(w, http.StatusConflict, "market already resolved")
		case errors.Is(err, domain.ErrOutcomeOutOfRange):
			writeError(w, http.StatusBadRequest, "winning outcome out of range")
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusConflict, "resolution already in progress")
		default:
			h.logger.ErrorContext(r.Context(), "handler: resolve market failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to resolve market")
		}
		return
	}

	writeJSON(w, http.StatusOK, toMarketResponse(m))
}
