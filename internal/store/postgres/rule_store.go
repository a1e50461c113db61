package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// RuleStore implements domain.RuleStore using PostgreSQL.
type RuleStore struct {
	pool *pgxpool.Pool
}

var _ domain.RuleStore = (*RuleStore)(nil)

// NewRuleStore creates a new RuleStore backed by the given connection pool.
func NewRuleStore(pool *pgxpool.Pool) *RuleStore {
	return &RuleStore{pool: pool}
}

// Upsert inserts or updates a rule definition by name. Updates bump the
// stored version. Returns the rule id.
func (s *RuleStore) Upsert(ctx context.Context, cfg domain.RuleConfig, rawYAML string) (int64, error) {
	const query = `
		INSERT INTO rule_def (name, type, dsl_yaml, enabled, version)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (name) DO UPDATE SET
			type       = EXCLUDED.type,
			dsl_yaml   = EXCLUDED.dsl_yaml,
			enabled    = EXCLUDED.enabled,
			version    = rule_def.version + 1,
			updated_at = NOW()
		RETURNING rule_id`

	enabled := cfg.Enabled == nil || *cfg.Enabled
	var id int64
	err := s.pool.QueryRow(ctx, query, cfg.Name, cfg.Type, rawYAML, enabled).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: upsert rule %s: %w", cfg.Name, err)
	}
	return id, nil
}

// List returns all stored rule definitions with their parsed configs.
func (s *RuleStore) List(ctx context.Context) ([]domain.Rule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT rule_id, name, type, dsl_yaml, enabled, version FROM rule_def ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.Rule
	for rows.Next() {
		var r domain.Rule
		var typ string
		if err := rows.Scan(&r.ID, &r.Name, &typ, &r.RawYAML, &r.Enabled, &r.Version); err != nil {
			return nil, fmt.Errorf("postgres: scan rule: %w", err)
		}
		r.Type = domain.RuleType(typ)
		if err := yaml.Unmarshal([]byte(r.RawYAML), &r.Config); err != nil {
			return nil, fmt.Errorf("postgres: parse rule %s yaml: %w", r.Name, err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list rules rows: %w", err)
	}
	return rules, nil
}
