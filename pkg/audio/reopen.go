package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// OpenFunc starts a new capture source.
type OpenFunc func(ctx context.Context) (Source, error)

// ReopenSource wraps a capture source that may die (device unplugged, the
// capture program exiting) and restarts it with a fixed backoff. Next only
// returns an error once ctx is done.
type ReopenSource struct {
	open    OpenFunc
	backoff time.Duration

	mu  sync.Mutex
	cur Source
}

var _ Source = (*ReopenSource)(nil)

// NewReopenSource returns a ReopenSource. A non-positive backoff means 2s.
func NewReopenSource(open OpenFunc, backoff time.Duration) *ReopenSource {
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &ReopenSource{open: open, backoff: backoff}
}

// Next implements [Source].
func (s *ReopenSource) Next(ctx context.Context) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return Window{}, err
		}
		if s.cur == nil {
			src, err := s.open(ctx)
			if err != nil {
				slog.Warn("audio: open capture failed", "err", err, "retry_in", s.backoff)
				if !sleepCtx(ctx, s.backoff) {
					return Window{}, ctx.Err()
				}
				continue
			}
			s.cur = src
		}
		w, err := s.cur.Next(ctx)
		if err == nil {
			return w, nil
		}
		if ctx.Err() != nil {
			return Window{}, ctx.Err()
		}
		slog.Warn("audio: capture interrupted, restarting", "err", err)
		_ = s.cur.Close()
		s.cur = nil
		if !sleepCtx(ctx, s.backoff) {
			return Window{}, ctx.Err()
		}
	}
}

// Close implements [Source].
func (s *ReopenSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	err := s.cur.Close()
	s.cur = nil
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
