// Package service coordinates the in-memory engine with persistence, the
// price cache, the signal bus, and operator notifications. Services own the
// ordering rule: the engine commits first, then stores, then caches; cache
// and notification failures are logged but never roll back a committed trade.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opine-markets/opined/internal/domain"
	"github.com/opine-markets/opined/internal/engine"
	"github.com/opine-markets/opined/internal/metrics"
	"github.com/opine-markets/opined/internal/notify"
)

// resolveLockTTL bounds how long a crashed resolver can block a market's
// resolution before the distributed lock expires.
const resolveLockTTL = 30 * time.Second

// MarketService handles market lifecycle: creation, discovery, and
// resolution.
type MarketService struct {
	engine   *engine.Engine
	markets  domain.MarketStore
	prices   domain.PriceCache
	locks    domain.LockManager
	audit    domain.AuditStore
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
// notifier may be nil when operator notifications are disabled.
func NewMarketService(
	eng *engine.Engine,
	markets domain.MarketStore,
	prices domain.PriceCache,
	locks domain.LockManager,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		engine:   eng,
		markets:  markets,
		prices:   prices,
		locks:    locks,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
	}
}

// Create registers a new market with the engine, persists it, and seeds the
// price cache with the uniform opening prices.
func (s *MarketService) Create(ctx context.Context, question string, outcomes []string, endTime time.Time, liquidity int64, creator string) (domain.Market, error) {
	m, err := s.engine.CreateMarket(question, outcomes, endTime, liquidity, creator)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create: %w", err)
	}

	if err := s.markets.Create(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: persist market %s: %w", m.ID, err)
	}

	metrics.MarketsCreated.Inc()

	if q, err := s.engine.QuoteMarket(m.ID); err == nil {
		if cacheErr := s.prices.SetPrices(ctx, m.ID, q.PricesBps, m.CreatedAt); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: price cache seed failed",
				slog.String("market_id", m.ID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	if err := s.audit.Log(ctx, "market.create", map[string]any{
		"market_id": m.ID,
		"question":  m.Question,
		"outcomes":  len(m.Outcomes),
		"liquidity": m.Liquidity,
		"creator":   m.Creator,
	}); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, notify.EventMarketCreated,
			"Market created",
			fmt.Sprintf("%s (%d outcomes, liquidity %d)", m.Question, len(m.Outcomes), m.Liquidity),
		); err != nil {
			s.logger.WarnContext(ctx, "market_service: notify failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return m, nil
}

// Get retrieves a market by ID. The engine snapshot is authoritative for
// open markets; the store serves markets the engine no longer holds.
func (s *MarketService) Get(ctx context.Context, id string) (domain.Market, error) {
	if m, err := s.engine.Snapshot(id); err == nil {
		return m, nil
	}
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %q: %w", id, err)
	}
	return m, nil
}

// Prices returns the latest per-outcome prices for a market in basis points,
// served from the cache when fresh and recomputed on a miss.
func (s *MarketService) Prices(ctx context.Context, id string) ([]int64, time.Time, error) {
	if bps, ts, err := s.prices.GetPrices(ctx, id); err == nil {
		return bps, ts, nil
	}

	q, err := s.engine.QuoteMarket(id)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("market_service: prices %q: %w", id, err)
	}

	now := time.Now()
	if cacheErr := s.prices.SetPrices(ctx, id, q.PricesBps, now); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: price cache backfill failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return q.PricesBps, now, nil
}

// ListActive returns markets still open for trading.
func (s *MarketService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListActive(ctx, time.Now(), opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list active: %w", err)
	}
	return markets, nil
}

// ListAll returns all markets, including resolved ones.
func (s *MarketService) ListAll(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListAll(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list all: %w", err)
	}
	return markets, nil
}

// Search returns markets whose question matches the query.
func (s *MarketService) Search(ctx context.Context, query string, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.Search(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: search %q: %w", query, err)
	}
	return markets, nil
}

// Stats returns aggregate market counts.
func (s *MarketService) Stats(ctx context.Context) (domain.MarketStats, error) {
	stats, err := s.markets.Stats(ctx)
	if err != nil {
		return domain.MarketStats{}, fmt.Errorf("market_service: stats: %w", err)
	}
	return stats, nil
}

// AddLiquidity deepens a market's subsidy pool and republishes its prices.
func (s *MarketService) AddLiquidity(ctx context.Context, id string, amount int64) (domain.Market, error) {
	q, err := s.engine.AddLiquidity(id, amount)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: add liquidity %s: %w", id, err)
	}
	return s.persistLiquidityChange(ctx, q, "market.liquidity_add", amount)
}

// RemoveLiquidity withdraws part of a market's subsidy pool and
// republishes its prices.
func (s *MarketService) RemoveLiquidity(ctx context.Context, id string, amount int64) (domain.Market, error) {
	q, err := s.engine.RemoveLiquidity(id, amount)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: remove liquidity %s: %w", id, err)
	}
	return s.persistLiquidityChange(ctx, q, "market.liquidity_remove", amount)
}

// persistLiquidityChange writes the adjusted market and refreshes the price
// cache; the engine has already committed the new pool.
func (s *MarketService) persistLiquidityChange(ctx context.Context, q engine.Quote, event string, amount int64) (domain.Market, error) {
	if err := s.markets.Update(ctx, q.Market); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: persist liquidity %s: %w", q.Market.ID, err)
	}

	if err := s.prices.SetPrices(ctx, q.Market.ID, q.PricesBps, q.Market.UpdatedAt); err != nil {
		s.logger.WarnContext(ctx, "market_service: price cache update failed",
			slog.String("market_id", q.Market.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.audit.Log(ctx, event, map[string]any{
		"market_id": q.Market.ID,
		"amount":    amount,
		"liquidity": q.Market.Liquidity,
	}); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("market_id", q.Market.ID),
			slog.String("error", err.Error()),
		)
	}

	return q.Market, nil
}

// Resolve settles a market on the winning outcome. A distributed lock
// guards against two replicas resolving the same market concurrently; the
// engine's own ErrAlreadyResolved check makes a lost race harmless.
func (s *MarketService) Resolve(ctx context.Context, id string, winningOutcome int) (domain.Market, error) {
	unlock, err := s.locks.Acquire(ctx, "resolve:"+id, resolveLockTTL)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: resolve %s: %w", id, err)
	}
	defer unlock()

	m, err := s.engine.Resolve(id, winningOutcome)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: resolve %s: %w", id, err)
	}

	if err := s.markets.Update(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: persist resolution %s: %w", id, err)
	}

	metrics.MarketsResolved.Inc()

	if err := s.prices.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "market_service: price cache invalidate failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}

	if err := s.audit.Log(ctx, "market.resolve", map[string]any{
		"market_id":       id,
		"winning_outcome": winningOutcome,
	}); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}

	if s.notifier != nil {
		outcome := ""
		if winningOutcome >= 0 && winningOutcome < len(m.Outcomes) {
			outcome = m.Outcomes[winningOutcome]
		}
		if err := s.notifier.Notify(ctx, notify.EventMarketResolved,
			"Market resolved",
			fmt.Sprintf("%s -> %s", m.Question, outcome),
		); err != nil {
			s.logger.WarnContext(ctx, "market_service: notify failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return m, nil
}
