package domain

import "time"

// Market creation limits. These mirror the on-chain program's envelope so
// off-chain and on-chain validation cannot drift apart.
const (
	MinOutcomes       = 2
	MaxOutcomes       = 10
	MaxQuestionLen    = 500
	MaxOutcomeLen     = 200
	MinMarketDuration = 24 * time.Hour
	MaxMarketDuration = 365 * 24 * time.Hour
)

// Market is a multi-outcome prediction market priced by the LS-LMSR maker.
// All monetary fields are atomic currency units; TotalShares is indexed by
// outcome and has the same length as Outcomes for the market's lifetime.
type Market struct {
	ID             string
	Question       string
	Outcomes       []string
	EndTime        time.Time
	Liquidity      int64
	TotalShares    []int64
	Resolved       bool
	WinningOutcome *int
	Creator        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Open reports whether the market still accepts trades at the given time.
func (m Market) Open(now time.Time) bool {
	return !m.Resolved && now.Before(m.EndTime)
}

// OutcomeValid reports whether idx addresses one of the market's outcomes.
func (m Market) OutcomeValid(idx int) bool {
	return idx >= 0 && idx < len(m.Outcomes)
}

// Clone returns a deep copy so callers can hand snapshots across goroutines
// without sharing the TotalShares backing array.
func (m Market) Clone() Market {
	c := m
	c.Outcomes = append([]string(nil), m.Outcomes...)
	c.TotalShares = append([]int64(nil), m.TotalShares...)
	if m.WinningOutcome != nil {
		w := *m.WinningOutcome
		c.WinningOutcome = &w
	}
	return c
}

// MarketStats aggregates counts for the stats endpoint.
type MarketStats struct {
	TotalMarkets    int64
	ActiveMarkets   int64
	ResolvedMarkets int64
}
