package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/opine-markets/opined/internal/domain"
	"github.com/opine-markets/opined/internal/engine"
	"github.com/opine-markets/opined/internal/service"
)

// PositionService defines the methods that the position handler requires
// from the service layer.
type PositionService interface {
	Get(ctx context.Context, marketID, user string) (service.PositionView, error)
	ListByUser(ctx context.Context, user string, opts domain.ListOpts) ([]service.PositionView, error)
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]service.PositionView, error)
	Claim(ctx context.Context, marketID, user string) (engine.ClaimResult, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and
// logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// ListPositions returns positions for a user or a market. When both are
// given the single matching position is returned.
// GET /api/positions?user=alice or ?market_id=... or both
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user := q.Get("user")
	marketID := q.Get("market_id")

	if user == "" && marketID == "" {
		writeError(w, http.StatusBadRequest, "user or market_id query parameter required")
		return
	}

	if user != "" && marketID != "" {
		v, err := h.positions.Get(r.Context(), marketID, user)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "position not found")
				return
			}
			h.logger.ErrorContext(r.Context(), "handler: get position failed",
				slog.String("market_id", marketID),
				slog.String("user", user),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to get position")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"positions": []positionResponse{toPositionResponse(v)},
		})
		return
	}

	opts := parseListOpts(r)
	var (
		views []service.PositionView
		err   error
	)
	if user != "" {
		views, err = h.positions.ListByUser(r.Context(), user, opts)
	} else {
		views, err = h.positions.ListByMarket(r.Context(), marketID, opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positions": toPositionResponses(views),
		"limit":     opts.Limit,
		"offset":    opts.Offset,
	})
}

// claimRequest is the body for claiming winnings.
type claimRequest struct {
	MarketID string `json:"market_id"`
	User     string `json:"user"`
}

// Claim settles the user's position against a resolved market and returns
// the payout.
// POST /api/positions/claim
func (h *PositionHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.MarketID == "" || req.User == "" {
		writeError(w, http.StatusBadRequest, "market_id and user are required")
		return
	}

	res, err := h.positions.Claim(r.Context(), req.MarketID, req.User)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "position not found")
		case errors.Is(err, domain.ErrMarketNotResolved):
			writeError(w, http.StatusConflict, "market not resolved")
		case errors.Is(err, domain.ErrAlreadyClaimed):
			writeError(w, http.StatusConflict, "position already claimed")
		default:
			h.logger.ErrorContext(r.Context(), "handler: claim failed",
				slog.String("market_id", req.MarketID),
				slog.String("user", req.User),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to claim")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": req.MarketID,
		"user":      req.User,
		"payout":    res.Payout,
	})
}
