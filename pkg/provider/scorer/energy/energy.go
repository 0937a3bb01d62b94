// Package energy provides a dependency-free scorer based on signal level and
// zero-crossing rate.
//
// It is not a trained classifier. It serves as an offline fallback when the
// model server is unreachable and as a deterministic backend for dry runs:
// loud windows whose dominant pitch falls in the infant-cry band score high on
// the target class, loud windows in the higher meow band score high on the
// confusable class.
package energy

import (
	"context"
	"math"

	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// Band is an inclusive frequency range in Hz.
type Band struct {
	Low, High float64
}

// Provider scores windows from RMS level and zero-crossing pitch estimate.
type Provider struct {
	fullScaleRMS float64
	floorRMS     float64
	cryBand      Band
	catBand      Band
}

var _ scorer.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithLevels sets the RMS level treated as silence and as full confidence.
func WithLevels(floor, fullScale float64) Option {
	return func(p *Provider) {
		p.floorRMS = floor
		p.fullScaleRMS = fullScale
	}
}

// WithBands overrides the cry and confusable pitch bands.
func WithBands(cry, cat Band) Option {
	return func(p *Provider) {
		p.cryBand = cry
		p.catBand = cat
	}
}

// New returns an energy scorer with defaults tuned for 16 kHz input.
func New(opts ...Option) *Provider {
	p := &Provider{
		floorRMS:     0.008,
		fullScaleRMS: 0.15,
		cryBand:      Band{Low: 250, High: 650},
		catBand:      Band{Low: 650, High: 1500},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Score implements [scorer.Provider].
func (p *Provider) Score(_ context.Context, samples []float32, sampleRate int) (scorer.DetectionResult, error) {
	if len(samples) == 0 || sampleRate <= 0 {
		return scorer.DetectionResult{}, nil
	}
	level := p.loudness(rms(samples))
	if level == 0 {
		return scorer.DetectionResult{}, nil
	}
	pitch := zeroCrossingPitch(samples, sampleRate)
	return scorer.DetectionResult{
		Primary: level,
		Baby:    level * bandWeight(pitch, p.cryBand),
		Cat:     level * bandWeight(pitch, p.catBand),
	}.Clamp(), nil
}

// Name implements [scorer.Provider].
func (p *Provider) Name() string { return "energy" }

func (p *Provider) loudness(r float64) float64 {
	if r <= p.floorRMS {
		return 0
	}
	span := p.fullScaleRMS - p.floorRMS
	if span <= 0 {
		return 1
	}
	return math.Min(1, (r-p.floorRMS)/span)
}

func rms(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// zeroCrossingPitch estimates the dominant frequency as half the number of
// sign changes per second.
func zeroCrossingPitch(samples []float32, rate int) float64 {
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	seconds := float64(len(samples)) / float64(rate)
	return float64(crossings) / 2 / seconds
}

// bandWeight is 1 inside b and decays linearly to 0 at half an octave outside.
func bandWeight(f float64, b Band) float64 {
	switch {
	case f >= b.Low && f <= b.High:
		return 1
	case f < b.Low:
		edge := b.Low / math.Sqrt2
		if f <= edge {
			return 0
		}
		return (f - edge) / (b.Low - edge)
	default:
		edge := b.High * math.Sqrt2
		if f >= edge {
			return 0
		}
		return (edge - f) / (edge - b.High)
	}
}
