package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// IntentStore implements domain.IntentStore using PostgreSQL.
type IntentStore struct {
	pool *pgxpool.Pool
}

var _ domain.IntentStore = (*IntentStore)(nil)

// NewIntentStore creates a new IntentStore backed by the given connection pool.
func NewIntentStore(pool *pgxpool.Pool) *IntentStore {
	return &IntentStore{pool: pool}
}

const intentCols = `intent_id, signal_id, market_id, option_id, side, qty, limit_price, ttl_secs, status, policy_id, detail_json, created_at, updated_at`

// Create inserts a new intent and returns it with id and timestamps set.
func (s *IntentStore) Create(ctx context.Context, intent domain.OrderIntent) (domain.OrderIntent, error) {
	detail, err := json.Marshal(orEmpty(intent.Detail))
	if err != nil {
		return domain.OrderIntent{}, fmt.Errorf("postgres: marshal intent detail: %w", err)
	}

	var optionID *string
	if intent.OptionID != "" {
		optionID = &intent.OptionID
	}
	status := intent.Status
	if status == "" {
		status = domain.IntentSuggested
	}

	const query = `
		INSERT INTO order_intent (signal_id, market_id, option_id, side, qty, limit_price, ttl_secs, status, policy_id, detail_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING intent_id, created_at, updated_at`

	err = s.pool.QueryRow(ctx, query,
		intent.SignalID, intent.MarketID, optionID, string(intent.Side),
		intent.Qty, intent.LimitPrice, intent.TTLSecs, string(status),
		intent.PolicyID, detail,
	).Scan(&intent.ID, &intent.CreatedAt, &intent.UpdatedAt)
	if err != nil {
		return domain.OrderIntent{}, fmt.Errorf("postgres: create intent: %w", err)
	}
	intent.Status = status
	return intent, nil
}

// UpdateStatus moves an intent to status, merging in new detail when provided.
func (s *IntentStore) UpdateStatus(ctx context.Context, id int64, status domain.IntentStatus, detail map[string]any) error {
	var detailJSON []byte
	if detail != nil {
		var err error
		detailJSON, err = json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("postgres: marshal intent detail: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE order_intent
		SET status = $2, detail_json = COALESCE($3, detail_json), updated_at = NOW()
		WHERE intent_id = $1`,
		id, string(status), detailJSON)
	if err != nil {
		return fmt.Errorf("postgres: update intent %d: %w", id, err)
	}
	return nil
}

func scanIntent(row pgx.Row) (domain.OrderIntent, error) {
	var intent domain.OrderIntent
	var optionID *string
	var side, status string
	var detail []byte
	err := row.Scan(
		&intent.ID, &intent.SignalID, &intent.MarketID, &optionID,
		&side, &intent.Qty, &intent.LimitPrice, &intent.TTLSecs,
		&status, &intent.PolicyID, &detail,
		&intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		return domain.OrderIntent{}, err
	}
	if optionID != nil {
		intent.OptionID = *optionID
	}
	intent.Side = domain.Side(side)
	intent.Status = domain.IntentStatus(status)
	if len(detail) > 0 {
		if err := json.Unmarshal(detail, &intent.Detail); err != nil {
			return domain.OrderIntent{}, fmt.Errorf("unmarshal detail: %w", err)
		}
	}
	return intent, nil
}

// GetByID retrieves an intent by id.
func (s *IntentStore) GetByID(ctx context.Context, id int64) (domain.OrderIntent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+intentCols+` FROM order_intent WHERE intent_id = $1`, id)
	intent, err := scanIntent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.OrderIntent{}, domain.ErrNotFound
		}
		return domain.OrderIntent{}, fmt.Errorf("postgres: get intent %d: %w", id, err)
	}
	return intent, nil
}

// List returns intents, newest first, optionally filtered by status.
func (s *IntentStore) List(ctx context.Context, status domain.IntentStatus, limit int) ([]domain.OrderIntent, error) {
	query := `SELECT ` + intentCols + ` FROM order_intent`
	args := []any{}
	argIdx := 1

	if status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, string(status))
		argIdx++
	}
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list intents: %w", err)
	}
	defer rows.Close()

	var intents []domain.OrderIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan intent: %w", err)
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list intents rows: %w", err)
	}
	return intents, nil
}

// OpenCount counts intents that still hold capacity.
func (s *IntentStore) OpenCount(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM order_intent WHERE status IN ('suggested', 'confirmed', 'sent')`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: open intent count: %w", err)
	}
	return count, nil
}

// DailyNotional sums qty*limit_price over sent/filled intents created on day.
func (s *IntentStore) DailyNotional(ctx context.Context, day time.Time) (float64, error) {
	var notional float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(qty * limit_price), 0)
		FROM order_intent
		WHERE DATE(created_at) = DATE($1) AND status IN ('sent', 'filled')`,
		day).Scan(&notional)
	if err != nil {
		return 0, fmt.Errorf("postgres: daily notional: %w", err)
	}
	return notional, nil
}

// WithAdvisoryLock runs fn while holding a transaction-scoped advisory lock,
// serializing concurrent limit checks. Lock acquisition is best-effort: when
// the transaction cannot be opened, fn still runs without protection.
func (s *IntentStore) WithAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fn(ctx)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return fn(ctx)
	}
	if err := fn(ctx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: advisory lock commit: %w", err)
	}
	return nil
}
