// Package engine holds the authoritative market and position state and
// serializes all trading, resolution, and settlement against it. State is
// sharded by market: operations on different markets run in parallel,
// operations on one market never interleave. Persistence and event fan-out
// happen outside the per-market critical section, driven by the service
// layer and the EventSink.
package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opine-markets/opined/internal/domain"
	"github.com/opine-markets/opined/internal/pricing"
)

// Config carries the trading parameters the engine applies to every market.
type Config struct {
	Alpha        float64
	FeeRateBps   int64
	MinLiquidity int64
	MaxLiquidity int64
}

// Defaults returns the production trading parameters.
func Defaults() Config {
	return Config{
		Alpha:        pricing.DefaultAlpha,
		FeeRateBps:   200,
		MinLiquidity: 1_000_000,
		MaxLiquidity: 1_000_000_000_000,
	}
}

// Engine is the market-maker core. It owns every open market's share
// vector and every position, prices trades through the LS-LMSR cost
// function, and guarantees per-market serialization of all mutations.
type Engine struct {
	cfg    Config
	pricer *pricing.Engine
	sink   domain.EventSink
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	markets map[string]*marketState

	collectedFees atomic.Int64
}

// New creates an engine with the given trading parameters. A nil sink
// falls back to the no-op sink.
func New(cfg Config, sink domain.EventSink, logger *slog.Logger) (*Engine, error) {
	pricer, err := pricing.New(cfg.Alpha)
	if err != nil {
		return nil, fmt.Errorf("engine: new: %w", err)
	}
	if cfg.FeeRateBps < 0 || cfg.FeeRateBps >= pricing.BpsDenominator {
		return nil, fmt.Errorf("engine: new: fee rate %d bps out of range: %w", cfg.FeeRateBps, domain.ErrInvalidAmount)
	}
	if sink == nil {
		sink = domain.NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		pricer:  pricer,
		sink:    sink,
		logger:  logger,
		now:     time.Now,
		markets: make(map[string]*marketState),
	}, nil
}

// FeeRateBps returns the configured trading fee in basis points.
func (e *Engine) FeeRateBps() int64 { return e.cfg.FeeRateBps }

// CollectedFees returns the cumulative fees collected across all markets
// since startup or the last Restore.
func (e *Engine) CollectedFees() int64 { return e.collectedFees.Load() }

// CreateMarket validates the market envelope, registers a fresh market with
// a zeroed share vector, and emits MarketCreated.
func (e *Engine) CreateMarket(question string, outcomes []string, endTime time.Time, liquidity int64, creator string) (domain.Market, error) {
	now := e.now()
	if err := validateEnvelope(question, outcomes, endTime, now); err != nil {
		return domain.Market{}, err
	}
	if liquidity < e.cfg.MinLiquidity || liquidity > e.cfg.MaxLiquidity {
		return domain.Market{}, fmt.Errorf("engine: liquidity %d outside [%d, %d]: %w",
			liquidity, e.cfg.MinLiquidity, e.cfg.MaxLiquidity, domain.ErrInvalidLiquidity)
	}

	m := domain.Market{
		ID:          uuid.NewString(),
		Question:    question,
		Outcomes:    append([]string(nil), outcomes...),
		EndTime:     endTime,
		Liquidity:   liquidity,
		TotalShares: make([]int64, len(outcomes)),
		Creator:     creator,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	e.mu.Lock()
	e.markets[m.ID] = newMarketState(m.Clone())
	e.mu.Unlock()

	e.logger.Info("engine: market created",
		slog.String("market_id", m.ID),
		slog.Int("outcomes", len(m.Outcomes)),
		slog.Int64("liquidity", m.Liquidity))
	e.sink.MarketCreated(m.Clone())
	return m, nil
}

func validateEnvelope(question string, outcomes []string, endTime, now time.Time) error {
	question = strings.TrimSpace(question)
	if question == "" || len(question) > domain.MaxQuestionLen {
		return fmt.Errorf("engine: question length %d: %w", len(question), domain.ErrInvalidMarket)
	}
	if len(outcomes) < domain.MinOutcomes || len(outcomes) > domain.MaxOutcomes {
		return fmt.Errorf("engine: %d outcomes: %w", len(outcomes), domain.ErrInvalidMarket)
	}
	for i, o := range outcomes {
		if strings.TrimSpace(o) == "" || len(o) > domain.MaxOutcomeLen {
			return fmt.Errorf("engine: outcome %d label length %d: %w", i, len(o), domain.ErrInvalidMarket)
		}
	}
	d := endTime.Sub(now)
	if d < domain.MinMarketDuration || d > domain.MaxMarketDuration {
		return fmt.Errorf("engine: duration %s outside allowed range: %w", d, domain.ErrInvalidMarket)
	}
	return nil
}

// Restore hydrates the engine from persisted state at startup. Positions
// whose market is absent are skipped with a warning; everything else
// replaces the current in-memory state for that market.
func (e *Engine) Restore(markets []domain.Market, positions []domain.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, m := range markets {
		e.markets[m.ID] = newMarketState(m.Clone())
	}
	for _, p := range positions {
		ms, ok := e.markets[p.MarketID]
		if !ok {
			e.logger.Warn("engine: restore: position references unknown market",
				slog.String("market_id", p.MarketID),
				slog.String("user", p.User))
			continue
		}
		c := p.Clone()
		ms.positions[p.User] = &c
	}
	e.logger.Info("engine: state restored",
		slog.Int("markets", len(markets)),
		slog.Int("positions", len(positions)))
}

// state looks up the shard for a market.
func (e *Engine) state(marketID string) (*marketState, error) {
	e.mu.RLock()
	ms, ok := e.markets[marketID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: market %s: %w", marketID, domain.ErrNotFound)
	}
	return ms, nil
}

// Snapshot returns a deep copy of the market's current state.
func (e *Engine) Snapshot(marketID string) (domain.Market, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return domain.Market{}, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.snapshot(), nil
}

// Position returns a deep copy of the user's position in the market.
func (e *Engine) Position(marketID, user string) (domain.Position, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return domain.Position{}, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	p := ms.position(user)
	if p == nil {
		return domain.Position{}, fmt.Errorf("engine: position %s/%s: %w", marketID, user, domain.ErrNotFound)
	}
	return p.Clone(), nil
}

// Quote holds a side-effect-free pricing answer for one market.
type Quote struct {
	Market    domain.Market
	PricesBps []int64
}

// QuoteMarket prices the market's current share vector without mutating
// anything. Quotes run under the read lock only.
func (e *Engine) QuoteMarket(marketID string) (Quote, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return Quote{}, err
	}
	ms.mu.RLock()
	m := ms.snapshot()
	ms.mu.RUnlock()

	bps, err := pricing.PricesBps(m.TotalShares, e.pricer.B(m.Liquidity))
	if err != nil {
		return Quote{}, fmt.Errorf("engine: quote %s: %w", marketID, err)
	}
	return Quote{Market: m, PricesBps: bps}, nil
}

// QuoteBuy reports how many shares the budget would currently buy on the
// given outcome, the exact cost of those shares, and the fee on top. Pure
// read; the answer can be stale by the time an order lands.
func (e *Engine) QuoteBuy(marketID string, outcome int, maxCost int64) (shares, cost, fee int64, err error) {
	ms, err := e.state(marketID)
	if err != nil {
		return 0, 0, 0, err
	}
	ms.mu.RLock()
	m := ms.snapshot()
	ms.mu.RUnlock()

	b := e.pricer.B(m.Liquidity)
	shares, err = pricing.SharesForCost(m.TotalShares, outcome, maxCost, b)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("engine: quote buy %s: %w", marketID, err)
	}
	cost, err = pricing.BuyCost(m.TotalShares, outcome, shares, b)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("engine: quote buy %s: %w", marketID, err)
	}
	return shares, cost, pricing.FeeAmount(cost, e.cfg.FeeRateBps), nil
}

// QuoteSell reports the gross payout for selling shares on the given
// outcome and the fee that would be deducted. Pure read.
func (e *Engine) QuoteSell(marketID string, outcome int, shares int64) (payout, fee int64, err error) {
	ms, err := e.state(marketID)
	if err != nil {
		return 0, 0, err
	}
	ms.mu.RLock()
	m := ms.snapshot()
	ms.mu.RUnlock()

	payout, err = pricing.SellPayout(m.TotalShares, outcome, shares, e.pricer.B(m.Liquidity))
	if err != nil {
		return 0, 0, fmt.Errorf("engine: quote sell %s: %w", marketID, err)
	}
	return payout, pricing.FeeAmount(payout, e.cfg.FeeRateBps), nil
}
