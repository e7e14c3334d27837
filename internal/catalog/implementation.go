package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// service implements the Service interface on Postgres.
type service struct {
	db *sql.DB
}

// NewService creates a catalog service backed by the given database.
func NewService(db *sql.DB) Service {
	return &service{db: db}
}

func (s *service) AddItems(ctx context.Context, platform string, externalIDs []string) (int, int, error) {
	ids := cleanIDs(externalIDs)
	if len(ids) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT external_id FROM items
		WHERE platform = $1 AND external_id = ANY($2)
	`, platform, pq.Array(ids))
	if err != nil {
		return 0, 0, fmt.Errorf("query existing items: %w", err)
	}
	existing := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("scan external id: %w", err)
		}
		existing[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterate existing items: %w", err)
	}

	added := 0
	for _, id := range ids {
		if _, ok := existing[id]; ok {
			continue
		}
		// Placeholder title until the first observation fills in real data.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO items (platform, external_id, title)
			VALUES ($1, $2, $3)
			ON CONFLICT (platform, external_id) DO NOTHING
		`, platform, id, "Item "+id)
		if err != nil {
			return 0, 0, fmt.Errorf("insert item %s: %w", id, err)
		}
		existing[id] = struct{}{}
		added++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit: %w", err)
	}
	return added, len(ids) - added, nil
}

func (s *service) RemoveItems(ctx context.Context, platform string, externalIDs []string) (int, error) {
	ids := cleanIDs(externalIDs)
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM items
		WHERE platform = $1 AND external_id = ANY($2)
	`, platform, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (s *service) ExternalIDs(ctx context.Context, platform string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id FROM items
		WHERE platform = $1
		ORDER BY id
	`, platform)
	if err != nil {
		return nil, fmt.Errorf("query external ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan external id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *service) Count(ctx context.Context, platform string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM items WHERE platform = $1
	`, platform).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

func (s *service) TrimToTarget(ctx context.Context, platform string, target int) (int, error) {
	if target < 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM items
		WHERE id IN (
			SELECT id FROM items
			WHERE platform = $1
			ORDER BY id DESC
			OFFSET 0 LIMIT GREATEST(
				(SELECT COUNT(*) FROM items WHERE platform = $1) - $2, 0
			)
		)
	`, platform, target)
	if err != nil {
		return 0, fmt.Errorf("trim items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func cleanIDs(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
