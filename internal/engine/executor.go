package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opine-markets/opined/internal/domain"
	"github.com/opine-markets/opined/internal/pricing"
)

// TradeResult is the outcome of one executed trade: the finalized order
// plus post-trade snapshots for persistence and fan-out.
type TradeResult struct {
	Order     domain.Order
	Market    domain.Market
	Position  domain.Position
	PricesBps []int64
}

func (e *Engine) newOrder(marketID, user string, side domain.OrderSide, outcome int, now time.Time) domain.Order {
	return domain.Order{
		ID:           uuid.NewString(),
		MarketID:     marketID,
		User:         user,
		Side:         side,
		OutcomeIndex: outcome,
		Status:       domain.OrderStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// fail finalizes the order as Failed, emits it, and returns the rejection
// wrapped for the caller. Business rejections always travel both ways: a
// Failed order record for observers and a sentinel error for control flow.
func (e *Engine) fail(order domain.Order, err error) (TradeResult, error) {
	order.Status = domain.OrderStatusFailed
	order.ErrorDetail = err.Error()
	order.UpdatedAt = e.now()
	e.sink.OrderFinalized(order)
	return TradeResult{Order: order}, err
}

// SubmitBuy spends up to maxCost on shares of one outcome. The share count
// is the largest affordable within the budget; if it falls below minShares
// the order fails with ErrSlippageExceeded and nothing is mutated. The fee
// is charged on the exact cost, on top of it. The entire
// read-compute-write runs under the market's write lock.
func (e *Engine) SubmitBuy(marketID, user string, outcome int, maxCost, minShares int64) (TradeResult, error) {
	now := e.now()
	order := e.newOrder(marketID, user, domain.OrderSideBuy, outcome, now)
	order.InputAmount = maxCost
	order.ExpectedAmount = minShares

	if user == "" {
		return e.fail(order, fmt.Errorf("engine: buy: empty user: %w", domain.ErrInvalidAmount))
	}
	if maxCost <= 0 || minShares < 0 {
		return e.fail(order, fmt.Errorf("engine: buy: maxCost=%d minShares=%d: %w", maxCost, minShares, domain.ErrInvalidAmount))
	}
	ms, err := e.state(marketID)
	if err != nil {
		return e.fail(order, err)
	}

	ms.mu.Lock()
	res, err := e.executeBuy(ms, order, outcome, maxCost, minShares, now)
	ms.mu.Unlock()
	if err != nil {
		return e.fail(order, err)
	}

	e.collectedFees.Add(res.Order.Fee)
	e.logger.Debug("engine: buy executed",
		slog.String("order_id", res.Order.ID),
		slog.String("market_id", marketID),
		slog.Int("outcome", outcome),
		slog.Int64("shares", res.Order.ActualAmount),
		slog.Int64("fee", res.Order.Fee))
	e.sink.SharesChanged(res.Market, res.PricesBps)
	e.sink.OrderFinalized(res.Order)
	return res, nil
}

// executeBuy runs under ms.mu. All validation and pricing happens against
// the current vector before any mutation; applyDelta swaps the new vector
// in only after it validates, so errors leave the market untouched.
func (e *Engine) executeBuy(ms *marketState, order domain.Order, outcome int, maxCost, minShares int64, now time.Time) (TradeResult, error) {
	m := ms.market
	if !m.Open(now) {
		return TradeResult{}, fmt.Errorf("engine: buy %s: %w", m.ID, domain.ErrMarketClosed)
	}
	if !m.OutcomeValid(outcome) {
		return TradeResult{}, fmt.Errorf("engine: buy %s outcome %d: %w", m.ID, outcome, domain.ErrOutcomeOutOfRange)
	}

	b := e.pricer.B(m.Liquidity)
	shares, err := pricing.SharesForCost(m.TotalShares, outcome, maxCost, b)
	if err != nil {
		return TradeResult{}, fmt.Errorf("engine: buy %s: %w", m.ID, err)
	}
	if shares == 0 || shares < minShares {
		return TradeResult{}, fmt.Errorf("engine: buy %s: %d shares for budget %d, wanted at least %d: %w",
			m.ID, shares, maxCost, minShares, domain.ErrSlippageExceeded)
	}
	cost, err := pricing.BuyCost(m.TotalShares, outcome, shares, b)
	if err != nil {
		return TradeResult{}, fmt.Errorf("engine: buy %s: %w", m.ID, err)
	}
	fee := pricing.FeeAmount(cost, e.cfg.FeeRateBps)

	// Price the post-trade vector before committing anything so a pricing
	// failure cannot leave a half-applied trade behind.
	next := append([]int64(nil), m.TotalShares...)
	next[outcome] += shares
	bps, err := pricing.PricesBps(next, b)
	if err != nil {
		return TradeResult{}, fmt.Errorf("engine: buy %s: %w", m.ID, err)
	}

	if err := ms.applyDelta(outcome, shares); err != nil {
		return TradeResult{}, fmt.Errorf("engine: buy %s: %w", m.ID, err)
	}
	ms.market.UpdatedAt = now

	pos := ms.position(order.User)
	if pos == nil {
		pos = &domain.Position{
			MarketID:  m.ID,
			User:      order.User,
			Shares:    make([]int64, len(m.Outcomes)),
			CreatedAt: now,
		}
		ms.positions[order.User] = pos
	}
	pos.Shares[outcome] += shares
	pos.TotalCost += cost
	pos.TotalFees += fee
	pos.UpdatedAt = now

	order.Status = domain.OrderStatusExecuted
	order.ActualAmount = shares
	// The executed record carries the actual debit; unspent budget never
	// counts as volume.
	order.InputAmount = cost + fee
	order.Fee = fee
	order.UpdatedAt = now

	return TradeResult{Order: order, Market: ms.snapshot(), Position: pos.Clone(), PricesBps: bps}, nil
}

// SubmitSell liquidates shares of one outcome back to the maker. Fails
// with ErrInsufficientShares when the position does not cover sharesToSell
// and with ErrSlippageExceeded when the gross payout falls below
// minPayout; the fee is deducted from the payout afterwards.
func (e *Engine) SubmitSell(marketID, user string, outcome int, sharesToSell, minPayout int64) (TradeResult, error) {
	now := e.now()
	order := e.newOrder(marketID, user, domain.OrderSideSell, outcome, now)
	order.InputAmount = sharesToSell
	order.ExpectedAmount = minPayout

	if user == "" {
		return e.fail(order, fmt.Errorf("engine: sell: empty user: %w", domain.ErrInvalidAmount))
	}
	if sharesToSell <= 0 || minPayout < 0 {
		return e.fail(order, fmt.Errorf("engine: sell: shares=%d minPayout=%d: %w", sharesToSell, minPayout, domain.ErrInvalidAmount))
	}
	ms, err := e.state(marketID)
	if err != nil {
		return e.fail(order, err)
	}

	ms.mu.Lock()
	res, err := e.executeSell(ms, order, outcome, sharesToSell, minPayout, now)
	ms.mu.Unlock()
	if err != nil {
		return e.fail(order, err)
	}

	e.collectedFees.Add(res.Order.Fee)
	e.logger.Debug("engine: sell executed",
		slog.String("order_id", res.Order.ID),
		slog.String("market_id", marketID),
		slog.Int("outcome", outcome),
		slog.Int64("payout", res.Order.ActualAmount),
		slog.Int64("fee", res.Order.Fee))
	e.sink.SharesChanged(res.Market, res.PricesBps)
	e.sink.OrderFinalized(res.Order)
	return res, nil
}

func (e *Engine) executeSell(ms *marketState, order domain.Order, outcome int, sharesToSell, minPayout int64, now time.Time) (TradeResult, error) {
	m := ms.market
	if !m.Open(now) {
		return TradeResult{}, fmt.Errorf("engine: sell %s: %w", m.ID, domain.ErrMarketClosed)
	}
	if !m.OutcomeValid(outcome) {
		return TradeResult{}, fmt.Errorf("engine: sell %s outcome %d: %w", m.ID, outcome, domain.ErrOutcomeOutOfRange)
	}

	pos := ms.position(order.User)
	if pos == nil || pos.Shares[outcome] < sharesToSell {
		return TradeResult{}, fmt.Errorf("engine: sell %s: %w", m.ID, domain.ErrInsufficientShares)
	}

	b := e.pricer.B(m.Liquidity)
	payout, err := pricing.SellPayout(m.TotalShares, outcome, sharesToSell, b)
	if err != nil {
		return TradeResult{}, fmt.Errorf("engine: sell %s: %w", m.ID, err)
	}
	if payout < minPayout {
		return TradeResult{}, fmt.Errorf("engine: sell %s: payout %d below %d: %w",
			m.ID, payout, minPayout, domain.ErrSlippageExceeded)
	}
	fee := pricing.FeeAmount(payout, e.cfg.FeeRateBps)

	next := append([]int64(nil), m.TotalShares...)
	next[outcome] -= sharesToSell
	bps, err := pricing.PricesBps(next, b)
	if err != nil {
		return TradeResult{}, fmt.Errorf("engine: sell %s: %w", m.ID, err)
	}

	if err := ms.applyDelta(outcome, -sharesToSell); err != nil {
		return TradeResult{}, fmt.Errorf("engine: sell %s: %w", m.ID, err)
	}
	ms.market.UpdatedAt = now

	pos.Shares[outcome] -= sharesToSell
	pos.TotalCost -= payout
	if pos.TotalCost < 0 {
		pos.TotalCost = 0
	}
	pos.TotalFees += fee
	pos.UpdatedAt = now

	order.Status = domain.OrderStatusExecuted
	order.ActualAmount = payout - fee
	order.Fee = fee
	order.UpdatedAt = now

	return TradeResult{Order: order, Market: ms.snapshot(), Position: pos.Clone(), PricesBps: bps}, nil
}
