package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// StateTable holds one row per monitor instance.
const StateTable = "oracle_monitor_state"

const createStateTable = `CREATE TABLE IF NOT EXISTS ` + StateTable + ` (
	id         TEXT PRIMARY KEY,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// pgxConn is the subset of *pgxpool.Pool the backend uses.
type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresBackend keeps the document in a single row of StateTable.
type PostgresBackend struct {
	pool pgxConn
	id   string
}

// NewPostgresBackend creates the table if needed. id selects the row, so
// several monitors can share one database.
func NewPostgresBackend(ctx context.Context, pool pgxConn, id string) (*PostgresBackend, error) {
	if _, err := pool.Exec(ctx, createStateTable); err != nil {
		return nil, fmt.Errorf("create %s: %w", StateTable, err)
	}
	return &PostgresBackend{pool: pool, id: id}, nil
}

// Name implements Backend.
func (b *PostgresBackend) Name() string { return "postgres" }

// Read implements Backend.
func (b *PostgresBackend) Read(ctx context.Context) ([]byte, error) {
	var doc []byte
	err := b.pool.QueryRow(ctx,
		`SELECT document::text FROM `+StateTable+` WHERE id = $1`, b.id,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

// Write implements Backend.
func (b *PostgresBackend) Write(ctx context.Context, data []byte) error {
	_, err := b.pool.Exec(ctx,
		`INSERT INTO `+StateTable+` (id, document, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
		b.id, string(data),
	)
	return err
}

// Close implements Backend.
func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
