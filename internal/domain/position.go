package domain

import "time"

// Position is a user's accumulated exposure in one market: one share
// balance per outcome plus cumulative cost and fee totals. Claimed flips
// exactly once when settlement pays the position out.
type Position struct {
	MarketID  string
	User      string
	Shares    []int64
	TotalCost int64
	TotalFees int64
	Claimed   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalShares returns the sum of share balances across all outcomes.
func (p Position) TotalShares() int64 {
	var sum int64
	for _, s := range p.Shares {
		sum += s
	}
	return sum
}

// Clone returns a deep copy with its own Shares backing array.
func (p Position) Clone() Position {
	c := p
	c.Shares = append([]int64(nil), p.Shares...)
	return c
}

// WinningShares returns the balance held in the winning outcome, or 0 when
// the market is unresolved.
func (p Position) WinningShares(m Market) int64 {
	if !m.Resolved || m.WinningOutcome == nil {
		return 0
	}
	idx := *m.WinningOutcome
	if idx < 0 || idx >= len(p.Shares) {
		return 0
	}
	return p.Shares[idx]
}
