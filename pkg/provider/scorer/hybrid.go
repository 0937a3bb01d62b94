package scorer

import (
	"context"
	"fmt"
)

// Hybrid combines a primary and a verifier scorer on every window. The
// primary score always comes from the primary backend; the target and
// confusable scores come from the verifier whenever it reports a positive
// value and fall back to the primary backend otherwise.
type Hybrid struct {
	primary  Provider
	verifier Provider
}

var _ Provider = (*Hybrid)(nil)

// NewHybrid returns a Hybrid scorer. Both providers are required.
func NewHybrid(primary, verifier Provider) (*Hybrid, error) {
	if primary == nil || verifier == nil {
		return nil, fmt.Errorf("scorer: hybrid requires a primary and a verifier")
	}
	return &Hybrid{primary: primary, verifier: verifier}, nil
}

// Score implements [Provider].
func (h *Hybrid) Score(ctx context.Context, samples []float32, sampleRate int) (DetectionResult, error) {
	if len(samples) == 0 {
		return DetectionResult{}, nil
	}
	p, err := h.primary.Score(ctx, samples, sampleRate)
	if err != nil {
		return DetectionResult{}, fmt.Errorf("scorer: hybrid primary: %w", err)
	}
	v, err := h.verifier.Score(ctx, samples, sampleRate)
	if err != nil {
		return DetectionResult{}, fmt.Errorf("scorer: hybrid verifier: %w", err)
	}
	out := p
	if v.Baby > 0 {
		out.Baby = v.Baby
	}
	if v.Cat > 0 {
		out.Cat = v.Cat
	}
	return out, nil
}

// Name implements [Provider].
func (h *Hybrid) Name() string {
	return "hybrid(" + h.primary.Name() + "+" + h.verifier.Name() + ")"
}
