package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout has fixed width so that text order is time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS alert_events (
	id            TEXT PRIMARY KEY,
	event_at      TEXT NOT NULL,
	primary_score REAL NOT NULL,
	baby_score    REAL NOT NULL,
	cat_score     REAL NOT NULL,
	clip_path     TEXT NOT NULL DEFAULT '',
	context       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_alert_events_event_at ON alert_events(event_at);
`

// SQLiteStore is a [Store] backed by a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open sqlite: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("eventstore: apply pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventstore: migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save implements [Store]. Saving an id twice is a no-op.
func (s *SQLiteStore) Save(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO alert_events (id, event_at, primary_score, baby_score, cat_score, clip_path, context)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EventAt.UTC().Format(sqliteTimeLayout), e.Primary, e.Baby, e.Cat, e.ClipPath, e.Context)
	if err != nil {
		return fmt.Errorf("eventstore: save event %s: %w", e.ID, err)
	}
	return nil
}

// Recent implements [Store].
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Event, error) {
	if err := checkLimit(n); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_at, primary_score, baby_score, cat_score, clip_path, context
		 FROM alert_events ORDER BY event_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("eventstore: recent: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e     Event
			stamp string
		)
		if err := rows.Scan(&e.ID, &stamp, &e.Primary, &e.Baby, &e.Cat, &e.ClipPath, &e.Context); err != nil {
			return nil, fmt.Errorf("eventstore: scan event: %w", err)
		}
		e.EventAt, err = time.Parse(sqliteTimeLayout, stamp)
		if err != nil {
			return nil, fmt.Errorf("eventstore: event %s has bad timestamp %q: %w", e.ID, stamp, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventstore: recent: %w", err)
	}
	return out, nil
}
