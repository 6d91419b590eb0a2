package engine

import (
	"sync"

	"github.com/opine-markets/opined/internal/domain"
)

// marketState is the authoritative in-memory record for one market: the
// market itself plus every position held against it, guarded by a single
// RWMutex. Mutating operations hold the write lock for the full
// read-compute-write span; quote reads take the read lock and price
// against cloned snapshots.
type marketState struct {
	mu        sync.RWMutex
	market    domain.Market
	positions map[string]*domain.Position
}

func newMarketState(m domain.Market) *marketState {
	return &marketState{
		market:    m,
		positions: make(map[string]*domain.Position),
	}
}

// snapshot returns a deep copy of the market. Callers must hold at least
// the read lock.
func (s *marketState) snapshot() domain.Market {
	return s.market.Clone()
}

// applyDelta adds signed delta shares to one outcome. The new vector is
// computed into a copy and swapped in only after validation, so a failed
// call leaves the market untouched. Both checks are defensive: the
// executor validates outcome and balance before calling, and a failure
// here means a bug upstream. Callers must hold the write lock.
func (s *marketState) applyDelta(outcome int, delta int64) error {
	if outcome < 0 || outcome >= len(s.market.TotalShares) {
		return domain.ErrOutcomeOutOfRange
	}
	next := append([]int64(nil), s.market.TotalShares...)
	next[outcome] += delta
	if next[outcome] < 0 {
		return domain.ErrNegativeBalance
	}
	s.market.TotalShares = next
	return nil
}

// resolve flips the market to resolved with the given winning outcome.
// Callers must hold the write lock.
func (s *marketState) resolve(winning int) error {
	if s.market.Resolved {
		return domain.ErrAlreadyResolved
	}
	if !s.market.OutcomeValid(winning) {
		return domain.ErrOutcomeOutOfRange
	}
	w := winning
	s.market.Resolved = true
	s.market.WinningOutcome = &w
	return nil
}

// position returns the stored position for user, or nil. Callers must hold
// at least the read lock.
func (s *marketState) position(user string) *domain.Position {
	return s.positions[user]
}
