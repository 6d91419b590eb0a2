package engine

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/opine-markets/opined/internal/domain"
)

// Resolve flips the market to resolved with the given winning outcome.
// Fails with ErrAlreadyResolved on a second call and ErrOutcomeOutOfRange
// for an invalid index; the first failure leaves the market unchanged.
func (e *Engine) Resolve(marketID string, winningOutcome int) (domain.Market, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return domain.Market{}, err
	}

	ms.mu.Lock()
	err = ms.resolve(winningOutcome)
	if err == nil {
		ms.market.UpdatedAt = e.now()
	}
	snapshot := ms.snapshot()
	ms.mu.Unlock()
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: resolve %s: %w", marketID, err)
	}

	e.logger.Info("engine: market resolved",
		slog.String("market_id", marketID),
		slog.Int("winning_outcome", winningOutcome))
	e.sink.MarketResolved(snapshot, winningOutcome)
	return snapshot, nil
}

// ClaimResult is the settlement outcome for one position.
type ClaimResult struct {
	Payout   int64
	Position domain.Position
	Market   domain.Market
}

// Claim settles a position against a resolved market. The payout is the
// position's pro-rata slice of the liquidity pool on the winning outcome,
// floored; an empty winning pool pays zero. Claiming is terminal: the
// position is marked claimed even on a zero payout and a second call fails
// with ErrAlreadyClaimed.
func (e *Engine) Claim(marketID, user string) (ClaimResult, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return ClaimResult{}, err
	}

	ms.mu.Lock()
	res, err := e.executeClaim(ms, marketID, user)
	ms.mu.Unlock()
	if err != nil {
		return ClaimResult{}, err
	}

	e.logger.Info("engine: position claimed",
		slog.String("market_id", marketID),
		slog.String("user", user),
		slog.Int64("payout", res.Payout))
	e.sink.PositionClaimed(res.Market, res.Position, res.Payout)
	return res, nil
}

func (e *Engine) executeClaim(ms *marketState, marketID, user string) (ClaimResult, error) {
	m := ms.market
	if !m.Resolved || m.WinningOutcome == nil {
		return ClaimResult{}, fmt.Errorf("engine: claim %s: %w", marketID, domain.ErrMarketNotResolved)
	}
	pos := ms.position(user)
	if pos == nil {
		return ClaimResult{}, fmt.Errorf("engine: claim %s/%s: %w", marketID, user, domain.ErrNotFound)
	}
	if pos.Claimed {
		return ClaimResult{}, fmt.Errorf("engine: claim %s/%s: %w", marketID, user, domain.ErrAlreadyClaimed)
	}

	winning := *m.WinningOutcome
	payout := settlementPayout(pos.Shares[winning], m.Liquidity, m.TotalShares[winning])

	pos.Claimed = true
	pos.UpdatedAt = e.now()

	return ClaimResult{Payout: payout, Position: pos.Clone(), Market: ms.snapshot()}, nil
}

// EstimatedPayout returns what Claim would pay for the position right now,
// without mutating anything. Zero for unresolved markets and claimed
// positions.
func EstimatedPayout(m domain.Market, p domain.Position) int64 {
	if !m.Resolved || m.WinningOutcome == nil || p.Claimed {
		return 0
	}
	winning := *m.WinningOutcome
	if winning < 0 || winning >= len(p.Shares) || winning >= len(m.TotalShares) {
		return 0
	}
	return settlementPayout(p.Shares[winning], m.Liquidity, m.TotalShares[winning])
}

// settlementPayout computes floor(shares * liquidity / pool) with a
// 128-bit intermediate. shares never exceeds pool (a position cannot hold
// more shares than the market total), so the quotient is bounded by
// liquidity and the division cannot overflow.
func settlementPayout(shares, liquidity, pool int64) int64 {
	if shares <= 0 || liquidity <= 0 || pool <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(shares), uint64(liquidity))
	if hi == 0 {
		return int64(lo / uint64(pool))
	}
	quo, _ := bits.Div64(hi, lo, uint64(pool))
	return int64(quo)
}
