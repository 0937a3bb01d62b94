package eventstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the PostgreSQL DDL for the alert_events table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS alert_events (
    id            UUID PRIMARY KEY,
    event_at      TIMESTAMPTZ NOT NULL,
    primary_score DOUBLE PRECISION NOT NULL,
    baby_score    DOUBLE PRECISION NOT NULL,
    cat_score     DOUBLE PRECISION NOT NULL,
    clip_path     TEXT NOT NULL DEFAULT '',
    context       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_alert_events_event_at ON alert_events(event_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps db. Call [PostgresStore.Migrate] before use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects a pool to dsn, runs the migration and returns the
// store together with the pool so the caller can close it.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("eventstore: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("eventstore: ping postgres: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// Migrate executes [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("eventstore: migrate: %w", err)
	}
	return nil
}

// Save implements [Store]. Saving an id twice is a no-op.
func (s *PostgresStore) Save(ctx context.Context, e Event) error {
	const query = `
		INSERT INTO alert_events (id, event_at, primary_score, baby_score, cat_score, clip_path, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.db.Exec(ctx, query, e.ID, e.EventAt, e.Primary, e.Baby, e.Cat, e.ClipPath, e.Context)
	if err != nil {
		return fmt.Errorf("eventstore: save event %s: %w", e.ID, err)
	}
	return nil
}

// Recent implements [Store].
func (s *PostgresStore) Recent(ctx context.Context, n int) ([]Event, error) {
	if err := checkLimit(n); err != nil {
		return nil, err
	}
	const query = `
		SELECT id::text, event_at, primary_score, baby_score, cat_score, clip_path, context
		FROM alert_events
		ORDER BY event_at DESC
		LIMIT $1`
	rows, err := s.db.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("eventstore: recent: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventAt, &e.Primary, &e.Baby, &e.Cat, &e.ClipPath, &e.Context); err != nil {
			return nil, fmt.Errorf("eventstore: scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventstore: recent: %w", err)
	}
	return out, nil
}
