package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opine-markets/opined/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Upsert writes the full position row, inserting on first trade for the
// (market, user) pair.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			market_id, user_id, shares, total_cost, total_fees,
			claimed, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, NOW()
		)
		ON CONFLICT (market_id, user_id) DO UPDATE SET
			shares     = EXCLUDED.shares,
			total_cost = EXCLUDED.total_cost,
			total_fees = EXCLUDED.total_fees,
			claimed    = EXCLUDED.claimed,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.MarketID, p.User, p.Shares, p.TotalCost, p.TotalFees,
		p.Claimed, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s/%s: %w", p.MarketID, p.User, err)
	}
	return nil
}

const positionSelectCols = `market_id, user_id, shares, total_cost, total_fees,
	claimed, created_at, updated_at`

func scanPositionFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Position, error) {
	var p domain.Position
	err := scanner.Scan(
		&p.MarketID, &p.User, &p.Shares, &p.TotalCost, &p.TotalFees,
		&p.Claimed, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionFromRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Get retrieves the position for a (market, user) pair.
func (s *PositionStore) Get(ctx context.Context, marketID, user string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE market_id = $1 AND user_id = $2`,
		marketID, user)

	p, err := scanPositionFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s/%s: %w", marketID, user, err)
	}
	return p, nil
}

// ListByUser returns all of a user's positions, most recently touched first.
func (s *PositionStore) ListByUser(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions
		WHERE user_id = $1 ORDER BY updated_at DESC`
	args := []any{user}
	query, args = appendPagination(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for user %s: %w", user, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan user positions: %w", err)
	}
	return positions, nil
}

// ListByMarket returns all positions held against a market.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions
		WHERE market_id = $1 ORDER BY updated_at DESC`
	args := []any{marketID}
	query, args = appendPagination(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for market %s: %w", marketID, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan market positions: %w", err)
	}
	return positions, nil
}

// ListAll returns every position. Used to hydrate the engine at startup.
func (s *PositionStore) ListAll(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions ORDER BY market_id, user_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list all positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan all positions: %w", err)
	}
	return positions, nil
}

// MarkClaimed flips the claimed flag exactly once.
func (s *PositionStore) MarkClaimed(ctx context.Context, marketID, user string) error {
	const query = `
		UPDATE positions SET claimed = TRUE, updated_at = NOW()
		WHERE market_id = $1 AND user_id = $2 AND NOT claimed`

	tag, err := s.pool.Exec(ctx, query, marketID, user)
	if err != nil {
		return fmt.Errorf("postgres: mark position claimed %s/%s: %w", marketID, user, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM positions WHERE market_id = $1 AND user_id = $2)",
			marketID, user,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check position %s/%s: %w", marketID, user, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyClaimed
	}
	return nil
}
