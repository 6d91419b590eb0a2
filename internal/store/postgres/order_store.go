package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opine-markets/opined/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order into the database.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, market_id, user_id, side, outcome_index,
			input_amount, expected_amount, actual_amount, fee,
			status, tx_ref, error_detail, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.MarketID, o.User, string(o.Side), o.OutcomeIndex,
		o.InputAmount, o.ExpectedAmount, o.ActualAmount, o.Fee,
		string(o.Status), o.TxRef, o.ErrorDetail, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus changes the status of an existing order. Transitions are
// only permitted out of the pending state; a terminal order is immutable.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	const query = `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`

	tag, err := s.pool.Exec(ctx, query, string(status), id, string(domain.OrderStatusPending))
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing order from a terminal one.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check order %s: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

const orderSelectCols = `id, market_id, user_id, side, outcome_index,
	input_amount, expected_amount, actual_amount, fee,
	status, tx_ref, error_detail, created_at, updated_at`

func scanOrderFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Order, error) {
	var o domain.Order
	var side, status string

	err := scanner.Scan(
		&o.ID, &o.MarketID, &o.User, &side, &o.OutcomeIndex,
		&o.InputAmount, &o.ExpectedAmount, &o.ActualAmount, &o.Fee,
		&status, &o.TxRef, &o.ErrorDetail, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetByID retrieves a single order by ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// List returns orders matching the filter, newest first.
func (s *OrderStore) List(ctx context.Context, filter domain.OrderFilter, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.MarketID != "" {
		query += fmt.Sprintf(" AND market_id = $%d", argIdx)
		args = append(args, filter.MarketID)
		argIdx++
	}
	if filter.User != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.User)
		argIdx++
	}
	if filter.Side != "" {
		query += fmt.Sprintf(" AND side = $%d", argIdx)
		args = append(args, string(filter.Side))
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"
	query, args = appendPagination(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders: %w", err)
	}
	return orders, nil
}

// ListBefore returns all terminal orders created strictly before the cutoff,
// oldest first. Used by the archiver.
func (s *OrderStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE created_at < $1 AND status <> $2
		 ORDER BY created_at ASC`,
		before, string(domain.OrderStatusPending))
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders before %s: %w", before, err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders before cutoff: %w", err)
	}
	return orders, nil
}

// Stats returns aggregate order activity. Volume and fees only count
// executed orders.
func (s *OrderStore) Stats(ctx context.Context) (domain.OrderStats, error) {
	const totals = `
		SELECT
			COUNT(*),
			COUNT(DISTINCT user_id),
			COALESCE(SUM(input_amount) FILTER (WHERE status = 'executed'), 0),
			COALESCE(SUM(fee) FILTER (WHERE status = 'executed'), 0)
		FROM orders`

	var st domain.OrderStats
	err := s.pool.QueryRow(ctx, totals).Scan(
		&st.TotalOrders, &st.UniqueUsers, &st.TotalVolume, &st.TotalFees)
	if err != nil {
		return domain.OrderStats{}, fmt.Errorf("postgres: order stats: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return domain.OrderStats{}, fmt.Errorf("postgres: order stats by status: %w", err)
	}
	defer rows.Close()

	st.ByStatus = make(map[domain.OrderStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return domain.OrderStats{}, fmt.Errorf("postgres: scan order stats: %w", err)
		}
		st.ByStatus[domain.OrderStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return domain.OrderStats{}, fmt.Errorf("postgres: order stats rows: %w", err)
	}
	return st, nil
}
