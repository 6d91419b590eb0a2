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

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Create inserts a new market.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, outcomes, end_time, liquidity,
			total_shares, resolved, winning_outcome, creator,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Question, m.Outcomes, m.EndTime, m.Liquidity,
		m.TotalShares, m.Resolved, m.WinningOutcome, m.Creator,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// Update persists the mutable market fields: the share vector and the
// resolution state.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			total_shares    = $1,
			resolved        = $2,
			winning_outcome = $3,
			updated_at      = NOW()
		WHERE id = $4`

	tag, err := s.pool.Exec(ctx, query, m.TotalShares, m.Resolved, m.WinningOutcome, m.ID)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const marketSelectCols = `id, question, outcomes, end_time, liquidity,
	total_shares, resolved, winning_outcome, creator, created_at, updated_at`

func scanMarketFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Market, error) {
	var m domain.Market
	err := scanner.Scan(
		&m.ID, &m.Question, &m.Outcomes, &m.EndTime, &m.Liquidity,
		&m.TotalShares, &m.Resolved, &m.WinningOutcome, &m.Creator,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

func scanMarketRows(rows pgx.Rows) ([]domain.Market, error) {
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarketFromRow(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// GetByID retrieves a single market by ID.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE id = $1`, id)

	m, err := scanMarketFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// ListActive returns unresolved markets whose end time is still ahead of now,
// soonest-ending first.
func (s *MarketStore) ListActive(ctx context.Context, now time.Time, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets
		WHERE NOT resolved AND end_time > $1
		ORDER BY end_time ASC`
	args := []any{now}
	query, args = appendPagination(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	markets, err := scanMarketRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active markets: %w", err)
	}
	return markets, nil
}

// ListAll returns all markets, newest first.
func (s *MarketStore) ListAll(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets ORDER BY created_at DESC`
	args := []any{}
	query, args = appendPagination(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	markets, err := scanMarketRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan markets: %w", err)
	}
	return markets, nil
}

// Search returns markets whose question matches the free-text query,
// newest first.
func (s *MarketStore) Search(ctx context.Context, q string, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets
		WHERE question ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC`
	args := []any{q}
	query, args = appendPagination(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search markets: %w", err)
	}
	defer rows.Close()

	markets, err := scanMarketRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan market search: %w", err)
	}
	return markets, nil
}

// Stats returns aggregate market counts.
func (s *MarketStore) Stats(ctx context.Context) (domain.MarketStats, error) {
	const query = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT resolved AND end_time > NOW()),
			COUNT(*) FILTER (WHERE resolved)
		FROM markets`

	var st domain.MarketStats
	err := s.pool.QueryRow(ctx, query).Scan(&st.TotalMarkets, &st.ActiveMarkets, &st.ResolvedMarkets)
	if err != nil {
		return domain.MarketStats{}, fmt.Errorf("postgres: market stats: %w", err)
	}
	return st, nil
}

// appendPagination adds LIMIT/OFFSET clauses for the given options. The
// query must already have len(args) placeholders.
func appendPagination(query string, args []any, opts domain.ListOpts) (string, []any) {
	argIdx := len(args) + 1
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}
