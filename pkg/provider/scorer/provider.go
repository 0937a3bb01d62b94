// Package scorer defines the Provider interface for acoustic classification
// backends.
//
// A scorer turns one window of mono float32 samples into a [DetectionResult]:
// a primary-class score, a target (baby cry) score and a confusable (cat)
// score, each in [0, 1]. The gating and verification stages depend on nothing
// else about the underlying model, so any backend (a remote model server, a
// local heuristic, a test double) can be swapped in through configuration.
//
// Implementations must be safe for concurrent use. An empty window must score
// as all zeros without error.
package scorer

import (
	"context"
	"math"
)

// DetectionResult holds the three bounded scores produced by a single
// scoring call. It is treated as an immutable value.
type DetectionResult struct {
	// Primary is the first-pass classifier confidence.
	Primary float64 `json:"primary_score"`

	// Baby is the confidence that the target event (a baby cry) occurred.
	Baby float64 `json:"baby_score"`

	// Cat is the confidence in the confusable class.
	Cat float64 `json:"cat_score"`
}

// Clamp returns r with every score forced into [0, 1]. NaN scores become 0.
func (r DetectionResult) Clamp() DetectionResult {
	return DetectionResult{
		Primary: clamp01(r.Primary),
		Baby:    clamp01(r.Baby),
		Cat:     clamp01(r.Cat),
	}
}

// Round returns r with every score rounded to the given number of decimals.
func (r DetectionResult) Round(places int) DetectionResult {
	p := math.Pow(10, float64(places))
	return DetectionResult{
		Primary: math.Round(r.Primary*p) / p,
		Baby:    math.Round(r.Baby*p) / p,
		Cat:     math.Round(r.Cat*p) / p,
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Provider is the abstraction over any acoustic scoring backend.
type Provider interface {
	// Score classifies samples recorded at sampleRate Hz. A nil or empty
	// window returns the zero DetectionResult and a nil error.
	Score(ctx context.Context, samples []float32, sampleRate int) (DetectionResult, error)

	// Name returns a short runtime label such as "remote(http://host:8000)".
	// It is surfaced to operators as alert context.
	Name() string
}
