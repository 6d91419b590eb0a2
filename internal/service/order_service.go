package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opine-markets/opined/internal/domain"
	"github.com/opine-markets/opined/internal/engine"
	"github.com/opine-markets/opined/internal/metrics"
)

// OrderService routes trade submissions through the engine and persists the
// resulting orders, positions, and market snapshots. Every submission ends
// in a persisted order row, including rejected ones.
type OrderService struct {
	engine    *engine.Engine
	orders    domain.OrderStore
	positions domain.PositionStore
	markets   domain.MarketStore
	prices    domain.PriceCache
	limiter   domain.RateLimiter
	logger    *slog.Logger

	rateLimit  int
	rateWindow time.Duration
}

// NewOrderService creates an OrderService. limiter may be nil to disable
// per-user rate limiting; rateLimit is the number of submissions allowed per
// rateWindow.
func NewOrderService(
	eng *engine.Engine,
	orders domain.OrderStore,
	positions domain.PositionStore,
	markets domain.MarketStore,
	prices domain.PriceCache,
	limiter domain.RateLimiter,
	rateLimit int,
	rateWindow time.Duration,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		engine:     eng,
		orders:     orders,
		positions:  positions,
		markets:    markets,
		prices:     prices,
		limiter:    limiter,
		logger:     logger,
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
	}
}

// SubmitBuy spends up to maxCost on shares of the given outcome. It returns
// the finalized order even when the trade is rejected, alongside the
// rejection error.
func (s *OrderService) SubmitBuy(ctx context.Context, marketID, user string, outcome int, maxCost, minShares int64) (engine.TradeResult, error) {
	if err := s.allow(ctx, user); err != nil {
		return engine.TradeResult{}, err
	}

	start := time.Now()
	res, execErr := s.engine.SubmitBuy(marketID, user, outcome, maxCost, minShares)
	metrics.RecordOrder("buy", time.Since(start), res.Order.InputAmount, res.Order.Fee, execErr)

	return s.persistTrade(ctx, res, execErr)
}

// SubmitSell liquidates shares of the given outcome. It returns the
// finalized order even when the trade is rejected, alongside the rejection
// error.
func (s *OrderService) SubmitSell(ctx context.Context, marketID, user string, outcome int, sharesToSell, minPayout int64) (engine.TradeResult, error) {
	if err := s.allow(ctx, user); err != nil {
		return engine.TradeResult{}, err
	}

	start := time.Now()
	res, execErr := s.engine.SubmitSell(marketID, user, outcome, sharesToSell, minPayout)
	metrics.RecordOrder("sell", time.Since(start), res.Order.ActualAmount, res.Order.Fee, execErr)

	return s.persistTrade(ctx, res, execErr)
}

// allow applies the per-user submission rate limit.
func (s *OrderService) allow(ctx context.Context, user string) error {
	if s.limiter == nil || s.rateLimit <= 0 || user == "" {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "orders:"+user, s.rateLimit, s.rateWindow)
	if err != nil {
		// Fail open: a broken limiter must not halt trading.
		s.logger.WarnContext(ctx, "order_service: rate limiter unavailable",
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !ok {
		return fmt.Errorf("order_service: user %s: %w", user, domain.ErrRateLimited)
	}
	return nil
}

// persistTrade writes the order row and, for executed trades, the updated
// market, position, and price cache entry. The engine has already committed;
// persistence errors are returned but the in-memory state stands.
func (s *OrderService) persistTrade(ctx context.Context, res engine.TradeResult, execErr error) (engine.TradeResult, error) {
	if res.Order.ID != "" {
		if err := s.orders.Create(ctx, res.Order); err != nil {
			s.logger.ErrorContext(ctx, "order_service: persist order failed",
				slog.String("order_id", res.Order.ID),
				slog.String("error", err.Error()),
			)
			if execErr == nil {
				return res, fmt.Errorf("order_service: persist order %s: %w", res.Order.ID, err)
			}
		}
	}
	if execErr != nil {
		return res, execErr
	}

	if err := s.markets.Update(ctx, res.Market); err != nil {
		return res, fmt.Errorf("order_service: persist market %s: %w", res.Market.ID, err)
	}
	if err := s.positions.Upsert(ctx, res.Position); err != nil {
		return res, fmt.Errorf("order_service: persist position %s/%s: %w", res.Position.MarketID, res.Position.User, err)
	}

	if err := s.prices.SetPrices(ctx, res.Market.ID, res.PricesBps, res.Market.UpdatedAt); err != nil {
		s.logger.WarnContext(ctx, "order_service: price cache update failed",
			slog.String("market_id", res.Market.ID),
			slog.String("error", err.Error()),
		)
	}

	return res, nil
}

// Cancel transitions a pending order to cancelled. Only the order's owner
// may cancel it; orders already in a terminal state fail with
// ErrInvalidTransition.
func (s *OrderService) Cancel(ctx context.Context, orderID, user string) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: cancel %s: %w", orderID, err)
	}
	if order.User != user {
		return domain.Order{}, fmt.Errorf("order_service: cancel %s: %w", orderID, domain.ErrUnauthorized)
	}

	if err := s.orders.UpdateStatus(ctx, orderID, domain.OrderStatusCancelled); err != nil {
		return domain.Order{}, fmt.Errorf("order_service: cancel %s: %w", orderID, err)
	}

	order.Status = domain.OrderStatusCancelled
	s.logger.InfoContext(ctx, "order_service: order cancelled",
		slog.String("order_id", orderID),
		slog.String("user", user),
	)
	return order, nil
}

// Get retrieves an order by ID.
func (s *OrderService) Get(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: get %s: %w", orderID, err)
	}
	return order, nil
}

// List returns orders matching the filter.
func (s *OrderService) List(ctx context.Context, filter domain.OrderFilter, opts domain.ListOpts) ([]domain.Order, error) {
	orders, err := s.orders.List(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("order_service: list: %w", err)
	}
	return orders, nil
}

// Stats returns aggregate order activity.
func (s *OrderService) Stats(ctx context.Context) (domain.OrderStats, error) {
	stats, err := s.orders.Stats(ctx)
	if err != nil {
		return domain.OrderStats{}, fmt.Errorf("order_service: stats: %w", err)
	}
	return stats, nil
}

// CollectedFees returns the cumulative trading fees the engine has
// collected since startup.
func (s *OrderService) CollectedFees() int64 {
	return s.engine.CollectedFees()
}

// QuoteBuy previews how many shares a budget currently buys, without
// executing anything.
func (s *OrderService) QuoteBuy(ctx context.Context, marketID string, outcome int, maxCost int64) (shares, cost, fee int64, err error) {
	shares, cost, fee, err = s.engine.QuoteBuy(marketID, outcome, maxCost)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("order_service: quote buy: %w", err)
	}
	return shares, cost, fee, nil
}

// QuoteSell previews the payout for selling shares, without executing
// anything.
func (s *OrderService) QuoteSell(ctx context.Context, marketID string, outcome int, shares int64) (payout, fee int64, err error) {
	payout, fee, err = s.engine.QuoteSell(marketID, outcome, shares)
	if err != nil {
		return 0, 0, fmt.Errorf("order_service: quote sell: %w", err)
	}
	return payout, fee, nil
}

// IsRejection reports whether err is a business rejection (slippage, closed
// market, oversell, bad amounts) rather than an infrastructure failure.
// Handlers use it to map rejections to 4xx responses.
func IsRejection(err error) bool {
	return errors.Is(err, domain.ErrSlippageExceeded) ||
		errors.Is(err, domain.ErrMarketClosed) ||
		errors.Is(err, domain.ErrInsufficientShares) ||
		errors.Is(err, domain.ErrOutcomeOutOfRange) ||
		errors.Is(err, domain.ErrInvalidAmount)
}
