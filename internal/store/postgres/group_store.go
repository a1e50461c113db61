package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// GroupStore implements domain.GroupStore using PostgreSQL.
type GroupStore struct {
	pool *pgxpool.Pool
}

var _ domain.GroupStore = (*GroupStore)(nil)

// NewGroupStore creates a new GroupStore backed by the given connection pool.
func NewGroupStore(pool *pgxpool.Pool) *GroupStore {
	return &GroupStore{pool: pool}
}

// Sync upserts each group by title and replaces its full member set.
func (s *GroupStore) Sync(ctx context.Context, groups []domain.SynonymGroup) error {
	for _, group := range groups {
		var groupID int64
		err := s.pool.QueryRow(ctx,
			`SELECT group_id FROM synonym_group WHERE title = $1`, group.Title,
		).Scan(&groupID)
		switch {
		case err == nil:
			if _, err := s.pool.Exec(ctx,
				`UPDATE synonym_group SET method = $2, updated_at = NOW() WHERE group_id = $1`,
				groupID, group.Method); err != nil {
				return fmt.Errorf("postgres: touch group %s: %w", group.Title, err)
			}
		case err == pgx.ErrNoRows:
			err = s.pool.QueryRow(ctx,
				`INSERT INTO synonym_group (method, title) VALUES ($1, $2) RETURNING group_id`,
				group.Method, group.Title,
			).Scan(&groupID)
			if err != nil {
				return fmt.Errorf("postgres: insert group %s: %w", group.Title, err)
			}
		default:
			return fmt.Errorf("postgres: lookup group %s: %w", group.Title, err)
		}

		if _, err := s.pool.Exec(ctx,
			`DELETE FROM synonym_group_member WHERE group_id = $1`, groupID); err != nil {
			return fmt.Errorf("postgres: clear group members %s: %w", group.Title, err)
		}
		for _, marketID := range group.Members {
			if _, err := s.pool.Exec(ctx,
				`INSERT INTO synonym_group_member (group_id, market_id) VALUES ($1, $2)`,
				groupID, marketID); err != nil {
				return fmt.Errorf("postgres: insert group member %s/%s: %w", group.Title, marketID, err)
			}
		}
	}
	return nil
}

// List returns all synonym groups with their members.
func (s *GroupStore) List(ctx context.Context) ([]domain.SynonymGroup, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT group_id, method, title, updated_at FROM synonym_group ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.SynonymGroup
	for rows.Next() {
		var g domain.SynonymGroup
		if err := rows.Scan(&g.ID, &g.Method, &g.Title, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list groups rows: %w", err)
	}

	for i := range groups {
		memberRows, err := s.pool.Query(ctx,
			`SELECT market_id FROM synonym_group_member WHERE group_id = $1 ORDER BY market_id`,
			groups[i].ID)
		if err != nil {
			return nil, fmt.Errorf("postgres: list group members: %w", err)
		}
		for memberRows.Next() {
			var id string
			if err := memberRows.Scan(&id); err != nil {
				memberRows.Close()
				return nil, fmt.Errorf("postgres: scan group member: %w", err)
			}
			groups[i].Members = append(groups[i].Members, id)
		}
		if err := memberRows.Err(); err != nil {
			memberRows.Close()
			return nil, fmt.Errorf("postgres: list group members rows: %w", err)
		}
		memberRows.Close()
	}
	return groups, nil
}
