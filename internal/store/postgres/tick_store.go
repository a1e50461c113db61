package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// TickStore implements domain.TickStore using PostgreSQL.
type TickStore struct {
	pool *pgxpool.Pool
}

var _ domain.TickStore = (*TickStore)(nil)

// NewTickStore creates a new TickStore backed by the given connection pool.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

const tickCols = `ts, market_id, option_id, price, volume, best_bid, best_ask, liquidity`

// InsertBatch inserts ticks, silently skipping rows whose
// (ts, market_id, option_id) key already exists.
func (s *TickStore) InsertBatch(ctx context.Context, ticks []domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO tick (` + tickCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ts, market_id, option_id) DO NOTHING`

	for _, t := range ticks {
		batch.Queue(query,
			t.TS, t.MarketID, t.OptionID,
			t.Price, t.Volume, t.BestBid, t.BestAsk, t.Liquidity,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range ticks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert tick batch item %d: %w", i, err)
		}
	}
	return nil
}

func scanTick(row pgx.Row) (domain.Tick, error) {
	var t domain.Tick
	err := row.Scan(
		&t.TS, &t.MarketID, &t.OptionID,
		&t.Price, &t.Volume, &t.BestBid, &t.BestAsk, &t.Liquidity,
	)
	return t, err
}

// Latest returns the newest tick per option of a market.
func (s *TickStore) Latest(ctx context.Context, marketID string) (map[string]domain.Tick, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (option_id) `+tickCols+`
		FROM tick
		WHERE market_id = $1
		ORDER BY option_id, ts DESC`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: latest ticks %s: %w", marketID, err)
	}
	defer rows.Close()

	latest := make(map[string]domain.Tick)
	for rows.Next() {
		t, err := scanTick(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan latest tick: %w", err)
		}
		latest[t.OptionID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: latest ticks rows: %w", err)
	}
	return latest, nil
}

// Recent returns ticks of a market within the window, newest first.
func (s *TickStore) Recent(ctx context.Context, marketID string, window time.Duration, limit int) ([]domain.Tick, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := s.pool.Query(ctx, `
		SELECT `+tickCols+`
		FROM tick
		WHERE market_id = $1 AND ts >= $2
		ORDER BY ts DESC
		LIMIT $3`,
		marketID, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent ticks %s: %w", marketID, err)
	}
	defer rows.Close()

	var ticks []domain.Tick
	for rows.Next() {
		t, err := scanTick(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan recent tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: recent ticks rows: %w", err)
	}
	return ticks, nil
}

// LastTS returns the timestamp of the newest tick in the store.
func (s *TickStore) LastTS(ctx context.Context) (time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx, `SELECT ts FROM tick ORDER BY ts DESC LIMIT 1`).Scan(&ts)
	if err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, domain.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("postgres: last tick ts: %w", err)
	}
	return ts, nil
}

// ListBefore returns up to limit ticks older than cutoff, oldest first.
func (s *TickStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Tick, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tickCols+`
		FROM tick
		WHERE ts < $1
		ORDER BY ts
		LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ticks before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var ticks []domain.Tick
	for rows.Next() {
		t, err := scanTick(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan aged tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ticks before rows: %w", err)
	}
	return ticks, nil
}

// DeleteBefore removes ticks older than cutoff and reports how many went away.
func (s *TickStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tick WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete ticks before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
