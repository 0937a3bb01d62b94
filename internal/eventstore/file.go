package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// fileTimeLayout is the event_at format of JSON event documents.
const fileTimeLayout = "2006-01-02T15:04:05"

// FileStore writes event_YYYYmmdd_HHMMSS.json documents into a directory.
// Two alerts within the same second share a file name; the later one wins.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// FileName returns the document name used for an event at t.
func FileName(t time.Time) string {
	return "event_" + t.Format("20060102_150405") + ".json"
}

type fileEvent struct {
	ID       string  `json:"id"`
	EventAt  string  `json:"event_at"`
	Primary  float64 `json:"primary_score"`
	Baby     float64 `json:"baby_score"`
	Cat      float64 `json:"cat_score"`
	ClipPath string  `json:"clip_path"`
	Context  string  `json:"context"`
}

// Save implements [Store].
func (s *FileStore) Save(_ context.Context, e Event) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("eventstore: create dir: %w", err)
	}
	data, err := json.MarshalIndent(fileEvent{
		ID:       e.ID,
		EventAt:  e.EventAt.Format(fileTimeLayout),
		Primary:  e.Primary,
		Baby:     e.Baby,
		Cat:      e.Cat,
		ClipPath: e.ClipPath,
		Context:  e.Context,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("eventstore: encode event: %w", err)
	}
	path := filepath.Join(s.dir, FileName(e.EventAt))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("eventstore: write %s: %w", path, err)
	}
	return nil
}

// Recent implements [Store]. Unreadable documents are skipped.
func (s *FileStore) Recent(_ context.Context, n int) ([]Event, error) {
	if err := checkLimit(n); err != nil {
		return nil, err
	}
	paths, err := filepath.Glob(filepath.Join(s.dir, "event_*.json"))
	if err != nil {
		return nil, fmt.Errorf("eventstore: list events: %w", err)
	}
	// Names embed the timestamp, so lexical order is chronological.
	slices.Sort(paths)
	slices.Reverse(paths)

	out := make([]Event, 0, min(n, len(paths)))
	for _, p := range paths {
		if len(out) == n {
			break
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var fe fileEvent
		if err := json.Unmarshal(data, &fe); err != nil {
			continue
		}
		at, err := time.ParseInLocation(fileTimeLayout, fe.EventAt, time.Local)
		if err != nil {
			continue
		}
		out = append(out, Event{
			ID:       fe.ID,
			EventAt:  at,
			Primary:  fe.Primary,
			Baby:     fe.Baby,
			Cat:      fe.Cat,
			ClipPath: fe.ClipPath,
			Context:  fe.Context,
		})
	}
	return out, nil
}
