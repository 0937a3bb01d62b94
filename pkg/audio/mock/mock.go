// Package mock provides an in-memory [audio.Source] for unit tests.
//
// Windows are returned in order; once exhausted, Next returns Err if set,
// otherwise io.EOF. Every call is counted so that tests can assert on how
// many windows a loop consumed.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/cryguard/pkg/audio"
)

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// Windows is the queue of windows returned by Next.
	Windows []audio.Window

	// Err is returned after Windows is exhausted. Defaults to io.EOF.
	Err error

	// NextCalls counts Next invocations.
	NextCalls int

	// Closed is set by Close.
	Closed bool
}

var _ audio.Source = (*Source)(nil)

// Next implements [audio.Source].
func (s *Source) Next(ctx context.Context) (audio.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.NextCalls++
	if err := ctx.Err(); err != nil {
		return audio.Window{}, err
	}
	if len(s.Windows) == 0 {
		if s.Err != nil {
			return audio.Window{}, s.Err
		}
		return audio.Window{}, io.EOF
	}
	w := s.Windows[0]
	s.Windows = s.Windows[1:]
	return w, nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
