package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opine-markets/opined/internal/domain"
	"github.com/opine-markets/opined/internal/engine"
	"github.com/opine-markets/opined/internal/metrics"
)

// PositionView is a position joined with its market and, for resolved
// markets, the payout a claim would return right now.
type PositionView struct {
	Position         domain.Position
	Market           domain.Market
	EstimatedWinning int64
}

// PositionService serves position queries and routes claims through the
// engine.
type PositionService struct {
	engine    *engine.Engine
	positions domain.PositionStore
	markets   domain.MarketStore
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewPositionService creates a PositionService with all required
// dependencies.
func NewPositionService(
	eng *engine.Engine,
	positions domain.PositionStore,
	markets domain.MarketStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		engine:    eng,
		positions: positions,
		markets:   markets,
		audit:     audit,
		logger:    logger,
	}
}

// Get returns one position with its market and estimated winnings.
func (s *PositionService) Get(ctx context.Context, marketID, user string) (PositionView, error) {
	pos, err := s.positions.Get(ctx, marketID, user)
	if err != nil {
		return PositionView{}, fmt.Errorf("position_service: get %s/%s: %w", marketID, user, err)
	}
	return s.view(ctx, pos)
}

// ListByUser returns all of a user's positions, each with its market and
// estimated winnings.
func (s *PositionService) ListByUser(ctx context.Context, user string, opts domain.ListOpts) ([]PositionView, error) {
	positions, err := s.positions.ListByUser(ctx, user, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: list by user %s: %w", user, err)
	}
	return s.views(ctx, positions)
}

// ListByMarket returns all positions in one market.
func (s *PositionService) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]PositionView, error) {
	positions, err := s.positions.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: list by market %s: %w", marketID, err)
	}
	return s.views(ctx, positions)
}

func (s *PositionService) views(ctx context.Context, positions []domain.Position) ([]PositionView, error) {
	out := make([]PositionView, 0, len(positions))
	for _, pos := range positions {
		v, err := s.view(ctx, pos)
		if err != nil {
			// A market missing from both engine and store is a data
			// integrity problem; surface the bare position rather than
			// dropping it.
			s.logger.WarnContext(ctx, "position_service: market lookup failed",
				slog.String("market_id", pos.MarketID),
				slog.String("error", err.Error()),
			)
			out = append(out, PositionView{Position: pos})
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *PositionService) view(ctx context.Context, pos domain.Position) (PositionView, error) {
	m, err := s.engine.Snapshot(pos.MarketID)
	if err != nil {
		m, err = s.markets.GetByID(ctx, pos.MarketID)
		if err != nil {
			return PositionView{}, fmt.Errorf("position_service: market %s: %w", pos.MarketID, err)
		}
	}
	return PositionView{
		Position:         pos,
		Market:           m,
		EstimatedWinning: engine.EstimatedPayout(m, pos),
	}, nil
}

// Claim settles the user's position against a resolved market and records
// the payout. The engine flips the claimed flag; the store's guarded
// MarkClaimed keeps the row in sync and rejects double claims that raced
// past a restart.
func (s *PositionService) Claim(ctx context.Context, marketID, user string) (engine.ClaimResult, error) {
	res, err := s.engine.Claim(marketID, user)
	if err != nil {
		return engine.ClaimResult{}, fmt.Errorf("position_service: claim %s/%s: %w", marketID, user, err)
	}

	if err := s.positions.MarkClaimed(ctx, marketID, user); err != nil {
		return res, fmt.Errorf("position_service: persist claim %s/%s: %w", marketID, user, err)
	}

	metrics.RecordClaim(res.Payout)

	if err := s.audit.Log(ctx, "position.claim", map[string]any{
		"market_id": marketID,
		"user":      user,
		"payout":    res.Payout,
	}); err != nil {
		s.logger.WarnContext(ctx, "position_service: audit log failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	return res, nil
}
