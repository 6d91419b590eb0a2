package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/opine-markets/opined/internal/domain"
	"github.com/opine-markets/opined/internal/pricing"
)

// AddLiquidity deepens the market's subsidy pool by amount. A larger pool
// raises the scale parameter, flattening price response; the repriced
// vector is emitted like a trade.
func (e *Engine) AddLiquidity(marketID string, amount int64) (Quote, error) {
	if amount <= 0 {
		return Quote{}, fmt.Errorf("engine: add liquidity %s: amount %d: %w", marketID, amount, domain.ErrInvalidAmount)
	}
	return e.adjustLiquidity(marketID, amount)
}

// RemoveLiquidity withdraws amount from the market's subsidy pool. The
// configured minimum liquidity is the floor, so settlement always has a
// pool to pay from.
func (e *Engine) RemoveLiquidity(marketID string, amount int64) (Quote, error) {
	if amount <= 0 {
		return Quote{}, fmt.Errorf("engine: remove liquidity %s: amount %d: %w", marketID, amount, domain.ErrInvalidAmount)
	}
	return e.adjustLiquidity(marketID, -amount)
}

func (e *Engine) adjustLiquidity(marketID string, delta int64) (Quote, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return Quote{}, err
	}
	now := e.now()

	ms.mu.Lock()
	snapshot, bps, err := e.applyLiquidityDelta(ms, delta, now)
	ms.mu.Unlock()
	if err != nil {
		return Quote{}, fmt.Errorf("engine: adjust liquidity %s: %w", marketID, err)
	}

	e.logger.Info("engine: liquidity adjusted",
		slog.String("market_id", marketID),
		slog.Int64("delta", delta),
		slog.Int64("liquidity", snapshot.Liquidity))
	e.sink.SharesChanged(snapshot, bps)
	return Quote{Market: snapshot, PricesBps: bps}, nil
}

// applyLiquidityDelta runs under ms.mu. The repriced vector is computed
// against the candidate pool before anything mutates, so a failure leaves
// the market untouched. Liquidity changes are rejected once the market is
// closed: the pool backs settlement payouts from that point on.
func (e *Engine) applyLiquidityDelta(ms *marketState, delta int64, now time.Time) (domain.Market, []int64, error) {
	m := ms.market
	if !m.Open(now) {
		return domain.Market{}, nil, domain.ErrMarketClosed
	}

	next := m.Liquidity + delta
	wrapped := delta > 0 && next < m.Liquidity
	if wrapped || next < e.cfg.MinLiquidity || next > e.cfg.MaxLiquidity {
		return domain.Market{}, nil, fmt.Errorf("liquidity %d outside [%d, %d]: %w",
			next, e.cfg.MinLiquidity, e.cfg.MaxLiquidity, domain.ErrInvalidLiquidity)
	}

	bps, err := pricing.PricesBps(m.TotalShares, e.pricer.B(next))
	if err != nil {
		return domain.Market{}, nil, err
	}

	ms.market.Liquidity = next
	ms.market.UpdatedAt = now
	return ms.snapshot(), bps, nil
}
