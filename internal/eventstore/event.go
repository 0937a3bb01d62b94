// Package eventstore records emitted alerts.
//
// Every alert that reaches the notifier is persisted as an [Event]. Three
// sinks are provided: [FileStore] writes one JSON document per alert into the
// artifact directory, [PostgresStore] and [SQLiteStore] append rows to a
// database table. [Multi] fans a single Save out to several sinks.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// Event is one emitted alert.
type Event struct {
	ID       string    `json:"id"`
	EventAt  time.Time `json:"event_at"`
	Primary  float64   `json:"primary_score"`
	Baby     float64   `json:"baby_score"`
	Cat      float64   `json:"cat_score"`
	ClipPath string    `json:"clip_path"`
	Context  string    `json:"context"`
}

// NewEvent builds an Event for r with a fresh random id.
func NewEvent(r scorer.DetectionResult, at time.Time, clipPath, label string) Event {
	return Event{
		ID:       uuid.NewString(),
		EventAt:  at,
		Primary:  r.Primary,
		Baby:     r.Baby,
		Cat:      r.Cat,
		ClipPath: clipPath,
		Context:  label,
	}
}

// Result returns the scores of e.
func (e Event) Result() scorer.DetectionResult {
	return scorer.DetectionResult{Primary: e.Primary, Baby: e.Baby, Cat: e.Cat}
}

// Store persists alert events.
type Store interface {
	// Save appends e.
	Save(ctx context.Context, e Event) error

	// Recent returns up to n events, newest first.
	Recent(ctx context.Context, n int) ([]Event, error)
}

// Multi saves to every sink and reads from the first.
type Multi []Store

var _ Store = Multi(nil)

// Save implements [Store]. Every sink is attempted; failures are joined.
func (m Multi) Save(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recent implements [Store].
func (m Multi) Recent(ctx context.Context, n int) ([]Event, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].Recent(ctx, n)
}

func checkLimit(n int) error {
	if n < 0 {
		return fmt.Errorf("eventstore: negative limit %d", n)
	}
	return nil
}
