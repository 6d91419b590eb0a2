package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market state.
type MarketStore interface {
	Create(ctx context.Context, market Market) error
	Update(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListActive(ctx context.Context, now time.Time, opts ListOpts) ([]Market, error)
	ListAll(ctx context.Context, opts ListOpts) ([]Market, error)
	Search(ctx context.Context, query string, opts ListOpts) ([]Market, error)
	Stats(ctx context.Context) (MarketStats, error)
}

// OrderStore persists trade attempts.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus) error
	GetByID(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, filter OrderFilter, opts ListOpts) ([]Order, error)
	ListBefore(ctx context.Context, before time.Time) ([]Order, error)
	Stats(ctx context.Context) (OrderStats, error)
}

// PositionStore persists per-(market,user) exposure.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	Get(ctx context.Context, marketID, user string) (Position, error)
	ListByUser(ctx context.Context, user string, opts ListOpts) ([]Position, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Position, error)
	ListAll(ctx context.Context) ([]Position, error)
	MarkClaimed(ctx context.Context, marketID, user string) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
}
