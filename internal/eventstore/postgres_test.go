package eventstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRows implements pgx.Rows over in-memory event rows.
type mockRows struct {
	data   []Event
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	if len(dest) != 7 {
		return fmt.Errorf("scan: expected 7 destinations, got %d", len(dest))
	}
	e := r.data[r.idx-1]
	*dest[0].(*string) = e.ID
	*dest[1].(*time.Time) = e.EventAt
	*dest[2].(*float64) = e.Primary
	*dest[3].(*float64) = e.Baby
	*dest[4].(*float64) = e.Cat
	*dest[5].(*string) = e.ClipPath
	*dest[6].(*string) = e.Context
	return nil
}

// mockDB implements DB for testing.
type mockDB struct {
	execSQL  []string
	execArgs [][]any
	execErr  error
	rows     *mockRows
	queryErr error
	queryArg []any
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execSQL = append(m.execSQL, sql)
	m.execArgs = append(m.execArgs, args)
	return pgconn.CommandTag{}, m.execErr
}

func (m *mockDB) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	m.queryArg = args
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if m.rows == nil {
		return &mockRows{}, nil
	}
	return m.rows, nil
}

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()
	db := &mockDB{}
	s := NewPostgresStore(db)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(db.execSQL) != 1 || db.execSQL[0] != Schema {
		t.Errorf("exec = %v", db.execSQL)
	}

	db.execErr = errors.New("permission denied")
	if err := s.Migrate(context.Background()); err == nil || !strings.Contains(err.Error(), "eventstore: migrate") {
		t.Errorf("err = %v", err)
	}
}

func TestPostgresStore_Save(t *testing.T) {
	t.Parallel()
	db := &mockDB{}
	s := NewPostgresStore(db)
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	e := Event{ID: "0e9b6a3c-8b1c-4a57-9a1b-6f0c7f1d2e3a", EventAt: at, Primary: 0.9, Baby: 0.8, Cat: 0.1, ClipPath: "c.wav", Context: "ctx"}

	if err := s.Save(context.Background(), e); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.Contains(db.execSQL[0], "INSERT INTO alert_events") {
		t.Errorf("sql = %q", db.execSQL[0])
	}
	args := db.execArgs[0]
	if len(args) != 7 || args[0] != e.ID || args[1] != at || args[3] != 0.8 || args[6] != "ctx" {
		t.Errorf("args = %v", args)
	}

	db.execErr = errors.New("conn reset")
	if err := s.Save(context.Background(), e); err == nil {
		t.Error("expected error")
	}
}

func TestPostgresStore_Recent(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	rows := &mockRows{data: []Event{
		{ID: "b", EventAt: at.Add(time.Minute), Baby: 0.7},
		{ID: "a", EventAt: at, Baby: 0.6},
	}}
	db := &mockDB{rows: rows}
	s := NewPostgresStore(db)

	got, err := s.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].Baby != 0.6 {
		t.Errorf("Recent = %+v", got)
	}
	if !rows.closed {
		t.Error("rows must be closed")
	}
	if len(db.queryArg) != 1 || db.queryArg[0] != 2 {
		t.Errorf("query args = %v", db.queryArg)
	}

	if _, err := s.Recent(context.Background(), -1); err == nil {
		t.Error("expected error for negative limit")
	}
	db.queryErr = errors.New("down")
	if _, err := s.Recent(context.Background(), 1); err == nil {
		t.Error("expected query error")
	}
}
