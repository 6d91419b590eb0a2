package domain

import "errors"

// Sentinel errors shared across the engine, services, and stores. Business
// rejections (slippage, closed market, oversell) are expected outcomes and
// are surfaced to callers as failed orders; invariant violations
// (ErrNegativeBalance, ErrOutcomeOutOfRange inside a committed state) point
// at a logic bug upstream and abort the operation.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLockHeld           = errors.New("lock already held")
	ErrInvalidMarket      = errors.New("invalid market parameters")
	ErrInvalidLiquidity   = errors.New("liquidity parameter must be positive")
	ErrOutcomeOutOfRange  = errors.New("outcome index out of range")
	ErrNegativeBalance    = errors.New("share balance would go negative")
	ErrMarketClosed       = errors.New("market closed for trading")
	ErrMarketNotResolved  = errors.New("market not resolved")
	ErrAlreadyResolved    = errors.New("market already resolved")
	ErrAlreadyClaimed     = errors.New("position already claimed")
	ErrSlippageExceeded   = errors.New("slippage tolerance exceeded")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrInvalidAmount      = errors.New("invalid amount")
)
