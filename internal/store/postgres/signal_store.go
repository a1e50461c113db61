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

// SignalStore implements domain.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *pgxpool.Pool
}

var _ domain.SignalStore = (*SignalStore)(nil)

// NewSignalStore creates a new SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

const signalCols = `signal_id, market_id, option_id, rule_id, level, score, payload_json, edge_score, source, confidence, ml_features, reason, created_at`

// Insert appends a signal and returns its id.
func (s *SignalStore) Insert(ctx context.Context, sig domain.Signal) (int64, error) {
	payload, err := json.Marshal(orEmpty(sig.Payload))
	if err != nil {
		return 0, fmt.Errorf("postgres: marshal signal payload: %w", err)
	}
	var features []byte
	if sig.MLFeatures != nil {
		features, err = json.Marshal(sig.MLFeatures)
		if err != nil {
			return 0, fmt.Errorf("postgres: marshal signal features: %w", err)
		}
	}

	var optionID *string
	if sig.OptionID != "" {
		optionID = &sig.OptionID
	}

	const query = `
		INSERT INTO signal (market_id, option_id, rule_id, level, score, payload_json, edge_score, source, confidence, ml_features, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING signal_id`

	var id int64
	err = s.pool.QueryRow(ctx, query,
		sig.MarketID, optionID, sig.RuleID, sig.Level, sig.Score,
		payload, sig.EdgeScore, sig.Source, sig.Confidence, features, sig.Reason,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert signal: %w", err)
	}
	return id, nil
}

func scanSignal(row pgx.Row) (domain.Signal, error) {
	var sig domain.Signal
	var optionID, reason *string
	var score, edge *float64
	var payload, features []byte
	err := row.Scan(
		&sig.ID, &sig.MarketID, &optionID, &sig.RuleID, &sig.Level,
		&score, &payload, &edge, &sig.Source, &sig.Confidence,
		&features, &reason, &sig.CreatedAt,
	)
	if err != nil {
		return domain.Signal{}, err
	}
	if optionID != nil {
		sig.OptionID = *optionID
	}
	if reason != nil {
		sig.Reason = *reason
	}
	if score != nil {
		sig.Score = *score
	}
	if edge != nil {
		sig.EdgeScore = *edge
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &sig.Payload); err != nil {
			return domain.Signal{}, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &sig.MLFeatures); err != nil {
			return domain.Signal{}, fmt.Errorf("unmarshal features: %w", err)
		}
	}
	return sig, nil
}

// GetByID retrieves a signal by id.
func (s *SignalStore) GetByID(ctx context.Context, id int64) (domain.Signal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+signalCols+` FROM signal WHERE signal_id = $1`, id)
	sig, err := scanSignal(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Signal{}, domain.ErrNotFound
		}
		return domain.Signal{}, fmt.Errorf("postgres: get signal %d: %w", id, err)
	}
	return sig, nil
}

// List returns signals matching the filter, newest first.
func (s *SignalStore) List(ctx context.Context, filter domain.SignalFilter) ([]domain.Signal, error) {
	query := `SELECT ` + signalCols + ` FROM signal`
	args := []any{}
	argIdx := 1

	where := ""
	if filter.Level != "" {
		where = fmt.Sprintf(" WHERE level = $%d", argIdx)
		args = append(args, filter.Level)
		argIdx++
	}
	if filter.Since != nil {
		if where == "" {
			where = fmt.Sprintf(" WHERE created_at >= $%d", argIdx)
		} else {
			where += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		}
		args = append(args, *filter.Since)
		argIdx++
	}
	query += where + " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals: %w", err)
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list signals rows: %w", err)
	}
	return signals, nil
}

// ListBefore returns up to limit signals created before cutoff, oldest first.
func (s *SignalStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Signal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+signalCols+`
		FROM signal
		WHERE created_at < $1
		ORDER BY created_at
		LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals before: %w", err)
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan aged signal: %w", err)
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list signals before rows: %w", err)
	}
	return signals, nil
}

// DeleteBefore removes signals created before cutoff.
func (s *SignalStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM signal WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete signals before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
