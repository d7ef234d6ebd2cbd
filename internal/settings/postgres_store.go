package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the subset of *pgxpool.Pool the store needs.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	itemExistsQuery = `SELECT 1 FROM wiser_item WHERE id = $1 AND entity_type = $2`
	detailsQuery    = `SELECT d.key, d.value
FROM wiser_itemdetail AS d
JOIN wiser_item AS i ON i.id = d.item_id
WHERE i.id = $1 AND i.entity_type = $2 AND d.key = ANY($3)`
)

// PostgresStore reads item details from the wiser_item / wiser_itemdetail tables.
type PostgresStore struct {
	db querier
}

// NewPostgresStore creates a store on top of a pgx pool or connection.
func NewPostgresStore(db querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// InitSchema creates the tables when they do not exist yet.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS wiser_item (
			id BIGINT PRIMARY KEY,
			entity_type VARCHAR(255) NOT NULL,
			title VARCHAR(255) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS wiser_itemdetail (
			item_id BIGINT NOT NULL REFERENCES wiser_item(id),
			key VARCHAR(255) NOT NULL,
			value TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (item_id, key)
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return fmt.Errorf("settings: init schema: %w", err)
		}
	}
	return nil
}

// GetDetails implements Store.
func (s *PostgresStore) GetDetails(ctx context.Context, itemID uint64, entityType string, keys ...string) (map[string]string, bool, error) {
	var one int
	err := s.db.QueryRow(ctx, itemExistsQuery, int64(itemID), entityType).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("settings: lookup item %d: %w", itemID, err)
	}

	rows, err := s.db.Query(ctx, detailsQuery, int64(itemID), entityType, keys)
	if err != nil {
		return nil, false, fmt.Errorf("settings: query details of item %d: %w", itemID, err)
	}
	defer rows.Close()

	values := make(map[string]string, len(keys))
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, false, fmt.Errorf("settings: scan detail of item %d: %w", itemID, err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("settings: read details of item %d: %w", itemID, err)
	}
	return values, true, nil
}
