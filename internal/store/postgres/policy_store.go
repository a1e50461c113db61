package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// PolicyStore implements domain.PolicyStore using PostgreSQL.
type PolicyStore struct {
	pool *pgxpool.Pool
}

var _ domain.PolicyStore = (*PolicyStore)(nil)

// NewPolicyStore creates a new PolicyStore backed by the given connection pool.
func NewPolicyStore(pool *pgxpool.Pool) *PolicyStore {
	return &PolicyStore{pool: pool}
}

const policyCols = `policy_id, name, mode, max_notional_per_order, max_concurrent_orders, max_daily_notional, slippage_bps, enabled, updated_at`

// GetEnabled returns the oldest enabled policy, or domain.ErrNotFound when
// none exists.
func (s *PolicyStore) GetEnabled(ctx context.Context) (domain.ExecPolicy, error) {
	var p domain.ExecPolicy
	err := s.pool.QueryRow(ctx,
		`SELECT `+policyCols+` FROM execution_policy WHERE enabled ORDER BY policy_id LIMIT 1`,
	).Scan(&p.ID, &p.Name, &p.Mode, &p.MaxNotionalPerOrder, &p.MaxConcurrentOrders,
		&p.MaxDailyNotional, &p.SlippageBps, &p.Enabled, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ExecPolicy{}, domain.ErrNotFound
		}
		return domain.ExecPolicy{}, fmt.Errorf("postgres: get enabled policy: %w", err)
	}
	return p, nil
}

// Upsert inserts or updates a policy by name and returns its id.
func (s *PolicyStore) Upsert(ctx context.Context, policy domain.ExecPolicy) (int64, error) {
	const query = `
		INSERT INTO execution_policy (name, mode, max_notional_per_order, max_concurrent_orders, max_daily_notional, slippage_bps, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			mode                   = EXCLUDED.mode,
			max_notional_per_order = EXCLUDED.max_notional_per_order,
			max_concurrent_orders  = EXCLUDED.max_concurrent_orders,
			max_daily_notional     = EXCLUDED.max_daily_notional,
			slippage_bps           = EXCLUDED.slippage_bps,
			enabled                = EXCLUDED.enabled,
			updated_at             = NOW()
		RETURNING policy_id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		policy.Name, policy.Mode, policy.MaxNotionalPerOrder, policy.MaxConcurrentOrders,
		policy.MaxDailyNotional, policy.SlippageBps, policy.Enabled,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: upsert policy %s: %w", policy.Name, err)
	}
	return id, nil
}
