package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// KPIStore implements domain.KPIStore using PostgreSQL.
type KPIStore struct {
	pool *pgxpool.Pool
}

var _ domain.KPIStore = (*KPIStore)(nil)

// NewKPIStore creates a new KPIStore backed by the given connection pool.
func NewKPIStore(pool *pgxpool.Pool) *KPIStore {
	return &KPIStore{pool: pool}
}

// Record accumulates one emitted signal into today's (day, rule_type) row.
// Gap and edge averages fold the new observation in as a running midpoint.
func (s *KPIStore) Record(ctx context.Context, ruleType, level string, gap, estEdgeBps *float64) error {
	const query = `
		INSERT INTO rule_kpi_daily (day, rule_type, signals, p1_signals, avg_gap, est_edge_bps)
		VALUES ($1, $2, 1, $3, $4, $5)
		ON CONFLICT (day, rule_type) DO UPDATE SET
			signals      = rule_kpi_daily.signals + 1,
			p1_signals   = rule_kpi_daily.p1_signals + EXCLUDED.p1_signals,
			avg_gap      = COALESCE((rule_kpi_daily.avg_gap + EXCLUDED.avg_gap) / 2, rule_kpi_daily.avg_gap, EXCLUDED.avg_gap),
			est_edge_bps = COALESCE((rule_kpi_daily.est_edge_bps + EXCLUDED.est_edge_bps) / 2, rule_kpi_daily.est_edge_bps, EXCLUDED.est_edge_bps)`

	p1 := 0
	if level == domain.LevelP1 {
		p1 = 1
	}
	day := time.Now().UTC().Truncate(24 * time.Hour)
	if _, err := s.pool.Exec(ctx, query, day, ruleType, p1, gap, estEdgeBps); err != nil {
		return fmt.Errorf("postgres: record kpi %s: %w", ruleType, err)
	}
	return nil
}

// ListSince returns KPI rows for days on or after since, newest day first.
func (s *KPIStore) ListSince(ctx context.Context, since time.Time) ([]domain.RuleKPI, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT day, rule_type, signals, p1_signals, avg_gap, est_edge_bps
		FROM rule_kpi_daily
		WHERE day >= $1
		ORDER BY day DESC, rule_type`,
		since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list kpi: %w", err)
	}
	defer rows.Close()

	var kpis []domain.RuleKPI
	for rows.Next() {
		var k domain.RuleKPI
		if err := rows.Scan(&k.Day, &k.RuleType, &k.Signals, &k.P1Signals, &k.AvgGap, &k.EstEdgeBps); err != nil {
			return nil, fmt.Errorf("postgres: scan kpi: %w", err)
		}
		kpis = append(kpis, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list kpi rows: %w", err)
	}
	return kpis, nil
}
