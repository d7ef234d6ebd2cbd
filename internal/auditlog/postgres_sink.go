package auditlog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	createTableQuery = `CREATE TABLE IF NOT EXISTS psp_log (
	id             TEXT PRIMARY KEY,
	psp_name       TEXT NOT NULL,
	correlation_id TEXT NOT NULL,
	direction      TEXT NOT NULL,
	request_body   TEXT,
	response_body  TEXT,
	error          TEXT,
	status_code    INTEGER,
	url            TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL
)`
	createIndexQuery = `CREATE INDEX IF NOT EXISTS psp_log_correlation_idx ON psp_log (correlation_id, created_at)`

	insertQuery = `INSERT INTO psp_log
	(id, psp_name, correlation_id, direction, request_body, response_body, error, status_code, url, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	listQuery = `SELECT id, psp_name, correlation_id, direction, request_body, response_body, error, status_code, url, created_at
	FROM psp_log WHERE correlation_id = $1 ORDER BY created_at, id`
)

// PostgresSink stores entries in the psp_log table. A *pgxpool.Pool satisfies
// its querier.
type PostgresSink struct {
	db querier
}

func NewPostgresSink(db querier) *PostgresSink {
	return &PostgresSink{db: db}
}

// InitSchema creates the psp_log table if needed.
func (s *PostgresSink) InitSchema(ctx context.Context) error {
	for _, q := range []string{createTableQuery, createIndexQuery} {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return fmt.Errorf("auditlog: init schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresSink) Write(ctx context.Context, e Entry) error {
	_, err := s.db.Exec(ctx, insertQuery,
		e.ID, e.PSPName, e.CorrelationID, string(e.Direction),
		e.RequestBody, e.ResponseBody, e.Error, e.StatusCode, e.URL, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("auditlog: insert entry %s: %w", e.ID, err)
	}
	return nil
}

func (s *PostgresSink) ListByCorrelation(ctx context.Context, correlationID string) ([]Entry, error) {
	rows, err := s.db.Query(ctx, listQuery, correlationID)
	if err != nil {
		return nil, fmt.Errorf("auditlog: list %q: %w", correlationID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			direction string
		)
		if err := rows.Scan(&e.ID, &e.PSPName, &e.CorrelationID, &direction,
			&e.RequestBody, &e.ResponseBody, &e.Error, &e.StatusCode, &e.URL, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("auditlog: scan entry: %w", err)
		}
		e.Direction = Direction(direction)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auditlog: list %q: %w", correlationID, err)
	}
	return entries, nil
}
