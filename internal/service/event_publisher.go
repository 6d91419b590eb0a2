package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opine-markets/opined/internal/domain"
)

// publishTimeout bounds how long a single bus operation may take before the
// event is dropped with a log line.
const publishTimeout = 5 * time.Second

// BusPublisher implements domain.EventSink by serializing events to JSON
// and fanning them out over the signal bus. Publishing happens on a
// background goroutine per event so a slow or unavailable bus never stalls
// the engine's callers.
type BusPublisher struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewBusPublisher creates a BusPublisher.
func NewBusPublisher(bus domain.SignalBus, logger *slog.Logger) *BusPublisher {
	return &BusPublisher{bus: bus, logger: logger}
}

// marketPayload is the wire shape for market events.
type marketPayload struct {
	Type           string    `json:"type"`
	MarketID       string    `json:"market_id"`
	Question       string    `json:"question"`
	Outcomes       []string  `json:"outcomes"`
	EndTime        time.Time `json:"end_time"`
	Liquidity      int64     `json:"liquidity"`
	TotalShares    []int64   `json:"total_shares"`
	Resolved       bool      `json:"resolved"`
	WinningOutcome *int      `json:"winning_outcome,omitempty"`
	PricesBps      []int64   `json:"prices_bps,omitempty"`
}

// orderPayload is the wire shape for order events.
type orderPayload struct {
	Type         string `json:"type"`
	OrderID      string `json:"order_id"`
	MarketID     string `json:"market_id"`
	User         string `json:"user"`
	Side         string `json:"side"`
	OutcomeIndex int    `json:"outcome_index"`
	InputAmount  int64  `json:"input_amount"`
	ActualAmount int64  `json:"actual_amount"`
	Fee          int64  `json:"fee"`
	Status       string `json:"status"`
	ErrorDetail  string `json:"error_detail,omitempty"`
}

// claimPayload is the wire shape for claim events.
type claimPayload struct {
	Type     string `json:"type"`
	MarketID string `json:"market_id"`
	User     string `json:"user"`
	Payout   int64  `json:"payout"`
}

func newMarketPayload(typ string, m domain.Market, pricesBps []int64) marketPayload {
	return marketPayload{
		Type:           typ,
		MarketID:       m.ID,
		Question:       m.Question,
		Outcomes:       m.Outcomes,
		EndTime:        m.EndTime,
		Liquidity:      m.Liquidity,
		TotalShares:    m.TotalShares,
		Resolved:       m.Resolved,
		WinningOutcome: m.WinningOutcome,
		PricesBps:      pricesBps,
	}
}

// MarketCreated publishes to the markets channel.
func (p *BusPublisher) MarketCreated(m domain.Market) {
	p.emit(domain.ChannelMarkets, newMarketPayload("market_created", m, nil))
}

// SharesChanged publishes the post-trade prices to the prices channel.
func (p *BusPublisher) SharesChanged(m domain.Market, pricesBps []int64) {
	p.emit(domain.ChannelPrices, newMarketPayload("prices_changed", m, pricesBps))
}

// MarketResolved publishes to the markets channel.
func (p *BusPublisher) MarketResolved(m domain.Market, winningOutcome int) {
	p.emit(domain.ChannelMarkets, newMarketPayload("market_resolved", m, nil))
}

// OrderFinalized publishes executed and failed orders to the orders channel.
func (p *BusPublisher) OrderFinalized(o domain.Order) {
	p.emit(domain.ChannelOrders, orderPayload{
		Type:         "order_finalized",
		OrderID:      o.ID,
		MarketID:     o.MarketID,
		User:         o.User,
		Side:         string(o.Side),
		OutcomeIndex: o.OutcomeIndex,
		InputAmount:  o.InputAmount,
		ActualAmount: o.ActualAmount,
		Fee:          o.Fee,
		Status:       string(o.Status),
		ErrorDetail:  o.ErrorDetail,
	})
}

// PositionClaimed publishes to the claims channel.
func (p *BusPublisher) PositionClaimed(m domain.Market, pos domain.Position, payout int64) {
	p.emit(domain.ChannelClaims, claimPayload{
		Type:     "position_claimed",
		MarketID: m.ID,
		User:     pos.User,
		Payout:   payout,
	})
}

// emit serializes the payload and delivers it to the channel and the
// durable stream on a background goroutine. Failures are logged and the
// event is dropped; the bus is a best-effort fan-out, not the system of
// record.
func (p *BusPublisher) emit(channel string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("event_publisher: marshal failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := p.bus.Publish(ctx, channel, data); err != nil {
			p.logger.Warn("event_publisher: publish failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
		if err := p.bus.StreamAppend(ctx, domain.StreamEvents, data); err != nil {
			p.logger.Warn("event_publisher: stream append failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Compile-time interface check.
var _ domain.EventSink = (*BusPublisher)(nil)
