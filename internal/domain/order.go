package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the order lifecycle. Orders start Pending and move to
// exactly one terminal state; Executed and Failed are set synchronously by
// the executor, Cancelled only ever replaces Pending.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusExecuted  OrderStatus = "executed"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether the status permits no further transition.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusExecuted || s == OrderStatusFailed || s == OrderStatusCancelled
}

// Order is the immutable record of one trade attempt against a market.
// For buys, InputAmount is the total debited (cost plus fee; rejected buys
// keep the submitted budget) and the amounts count shares; for sells,
// InputAmount counts shares and the amounts are the payout in atomic units
// after fees.
type Order struct {
	ID             string
	MarketID       string
	User           string
	Side           OrderSide
	OutcomeIndex   int
	InputAmount    int64
	ExpectedAmount int64
	ActualAmount   int64
	Fee            int64
	Status         OrderStatus
	TxRef          string
	ErrorDetail    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderStats aggregates executed order activity for the stats endpoint.
type OrderStats struct {
	TotalOrders int64
	UniqueUsers int64
	TotalVolume int64
	TotalFees   int64
	ByStatus    map[OrderStatus]int64
}

// OrderFilter narrows order list queries.
type OrderFilter struct {
	MarketID string
	User     string
	Side     OrderSide
	Status   OrderStatus
}
