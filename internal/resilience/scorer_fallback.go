package resilience

import (
	"context"

	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// ScorerFallback implements [scorer.Provider] with failover across several
// scoring backends, typically a remote model server backed by the local
// energy heuristic.
type ScorerFallback struct {
	group *FallbackGroup[scorer.Provider]
}

var _ scorer.Provider = (*ScorerFallback)(nil)

// NewScorerFallback creates a [ScorerFallback] with primary as the preferred
// backend.
func NewScorerFallback(primary scorer.Provider, cfg FallbackConfig) *ScorerFallback {
	return &ScorerFallback{group: NewFallbackGroup(primary, primary.Name(), cfg)}
}

// AddFallback registers an additional backend under its own name.
func (f *ScorerFallback) AddFallback(p scorer.Provider) {
	f.group.AddFallback(p.Name(), p)
}

// Score scores the window on the first healthy backend.
func (f *ScorerFallback) Score(ctx context.Context, samples []float32, sampleRate int) (scorer.DetectionResult, error) {
	return ExecuteWithResult(f.group, func(p scorer.Provider) (scorer.DetectionResult, error) {
		return p.Score(ctx, samples, sampleRate)
	})
}

// Name reports the primary's name.
func (f *ScorerFallback) Name() string {
	return f.group.Primary().Name()
}
