package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `market_id, title, platform, status, starts_at, ends_at, tags, embedding, created_at, updated_at`

// Upsert inserts or updates a single market. An empty embedding keeps the
// stored vector, so ingestion sources without embeddings never erase one.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO market (market_id, title, platform, status, starts_at, ends_at, tags, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (market_id) DO UPDATE SET
			title      = EXCLUDED.title,
			platform   = EXCLUDED.platform,
			status     = EXCLUDED.status,
			starts_at  = EXCLUDED.starts_at,
			ends_at    = EXCLUDED.ends_at,
			tags       = EXCLUDED.tags,
			embedding  = COALESCE(EXCLUDED.embedding, market.embedding),
			updated_at = NOW()`

	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	var embedding []float64
	if len(m.Embedding) > 0 {
		embedding = m.Embedding
	}
	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Title, m.Platform, string(m.Status), m.StartsAt, m.EndsAt, tags, embedding,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// UpsertOptions inserts or updates option metadata in a single batch.
func (s *MarketStore) UpsertOptions(ctx context.Context, options []domain.Option) error {
	if len(options) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO market_option (option_id, market_id, label)
		VALUES ($1, $2, $3)
		ON CONFLICT (option_id) DO UPDATE SET label = EXCLUDED.label`

	for _, opt := range options {
		batch.Queue(query, opt.ID, opt.MarketID, opt.Label)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range options {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert option batch item %d: %w", i, err)
		}
	}
	return nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	err := row.Scan(
		&m.ID, &m.Title, &m.Platform, &status,
		&m.StartsAt, &m.EndsAt, &m.Tags, &m.Embedding,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM market WHERE market_id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets ordered by close time, soonest first. An empty status
// matches all lifecycle states.
func (s *MarketStore) List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM market`
	args := []any{}
	argIdx := 1

	if status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, string(status))
		argIdx++
	}

	query += " ORDER BY ends_at NULLS LAST"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// ListOptions returns the options of a market, ordered by option id.
func (s *MarketStore) ListOptions(ctx context.Context, marketID string) ([]domain.Option, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT option_id, market_id, label FROM market_option WHERE market_id = $1 ORDER BY option_id`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list options %s: %w", marketID, err)
	}
	defer rows.Close()

	var options []domain.Option
	for rows.Next() {
		var opt domain.Option
		if err := rows.Scan(&opt.ID, &opt.MarketID, &opt.Label); err != nil {
			return nil, fmt.Errorf("postgres: scan option: %w", err)
		}
		options = append(options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list options rows: %w", err)
	}
	return options, nil
}

// SynonymPeers returns the ids of markets sharing a synonym group with the
// given market, excluding the market itself.
func (s *MarketStore) SynonymPeers(ctx context.Context, marketID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT m2.market_id
		FROM synonym_group_member m1
		JOIN synonym_group_member m2 ON m1.group_id = m2.group_id
		WHERE m1.market_id = $1 AND m2.market_id <> $1`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: synonym peers %s: %w", marketID, err)
	}
	defer rows.Close()

	var peers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan synonym peer: %w", err)
		}
		peers = append(peers, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: synonym peers rows: %w", err)
	}
	return peers, nil
}
