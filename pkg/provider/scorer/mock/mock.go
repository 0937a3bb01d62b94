// Package mock provides a test double for the scorer.Provider interface.
//
// Results are returned from Results in order; once exhausted the last entry
// repeats. All calls are recorded for later assertions.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// ScoreCall records a single invocation of Score.
type ScoreCall struct {
	// Samples is the window passed to Score.
	Samples []float32
	// SampleRate is the rate passed to Score.
	SampleRate int
}

// Provider is a mock implementation of scorer.Provider.
type Provider struct {
	mu sync.Mutex

	// Results is the queue of results returned by Score.
	Results []scorer.DetectionResult

	// Err, if non-nil, is returned by every Score call.
	Err error

	// Label is returned by Name. Defaults to "mock".
	Label string

	// Calls records every invocation of Score in order.
	Calls []ScoreCall
}

var _ scorer.Provider = (*Provider)(nil)

// Score implements scorer.Provider.
func (p *Provider) Score(_ context.Context, samples []float32, sampleRate int) (scorer.DetectionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, ScoreCall{Samples: samples, SampleRate: sampleRate})
	if p.Err != nil {
		return scorer.DetectionResult{}, p.Err
	}
	if len(p.Results) == 0 {
		return scorer.DetectionResult{}, nil
	}
	r := p.Results[0]
	if len(p.Results) > 1 {
		p.Results = p.Results[1:]
	}
	return r, nil
}

// Name implements scorer.Provider.
func (p *Provider) Name() string {
	if p.Label == "" {
		return "mock"
	}
	return p.Label
}

// CallCount returns the number of Score calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
