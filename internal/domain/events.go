package domain

// Event channel names used on the signal bus. The WebSocket hub subscribes
// to these and forwards payloads verbatim to connected clients.
const (
	ChannelMarkets = "markets"
	ChannelPrices  = "prices"
	ChannelOrders  = "orders"
	ChannelClaims  = "claims"
)

// StreamEvents is the durable stream every published event is appended to.
// Consumers that miss a pub/sub message replay from here.
const StreamEvents = "events"

// EventSink receives engine notifications. Implementations must not block:
// events are emitted after the per-market critical section has committed,
// and a slow observer must not stall trading.
type EventSink interface {
	MarketCreated(market Market)
	SharesChanged(market Market, pricesBps []int64)
	MarketResolved(market Market, winningOutcome int)
	OrderFinalized(order Order)
	PositionClaimed(market Market, position Position, payout int64)
}

// NopSink discards all events. Used in tests and as a default.
type NopSink struct{}

func (NopSink) MarketCreated(Market)                    {}
func (NopSink) SharesChanged(Market, []int64)           {}
func (NopSink) MarketResolved(Market, int)              {}
func (NopSink) OrderFinalized(Order)                    {}
func (NopSink) PositionClaimed(Market, Position, int64) {}
