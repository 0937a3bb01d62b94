package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrWong99/cryguard/internal/decision"
	"github.com/MrWong99/cryguard/pkg/audio"
	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// Debug loop pacing.
const (
	DebugWindowSeconds = 5.0
	DebugInterval      = 15 * time.Second
)

// DebugLoop scores long windows with a single classifier and logs whether
// each would pass the verifier thresholds. It never gates or alerts.
type DebugLoop struct {
	Scorer     scorer.Provider
	Label      string
	Thresholds decision.Thresholds
	SampleRate int
	Interval   time.Duration

	// Log receives one line per window. Defaults to slog.Info.
	Log func(msg string, args ...any)
}

// NewDebugLoop picks the verifier when present, else the primary scorer.
func NewDebugLoop(primary, verifier scorer.Provider, t decision.Thresholds, sampleRate int) *DebugLoop {
	d := &DebugLoop{Scorer: primary, Label: "primary", Thresholds: t, SampleRate: sampleRate, Interval: DebugInterval}
	if verifier != nil {
		d.Scorer, d.Label = verifier, "verifier"
	}
	return d
}

// Run reads windows from src and logs a verdict for each until ctx ends,
// the source is exhausted or maxWindows is reached. The source is expected
// to yield DebugWindowSeconds windows; the loop sleeps so that consecutive
// windows start Interval apart.
func (d *DebugLoop) Run(ctx context.Context, src audio.Source, maxWindows int) error {
	logf := d.Log
	if logf == nil {
		logf = slog.Info
	}
	logf("monitor: classifier-only debug mode enabled",
		"backend", d.Label, "clip_seconds", DebugWindowSeconds, "interval", d.Interval)

	window := time.Duration(DebugWindowSeconds * float64(time.Second))
	for n := 1; ; n++ {
		w, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("monitor: read debug window: %w", err)
		}
		started := time.Now()
		rate := w.SampleRate
		if rate <= 0 {
			rate = d.SampleRate
		}
		r, err := d.Scorer.Score(ctx, w.Samples, rate)
		if err != nil {
			logf("monitor: classifier-only debug score failed", "backend", d.Label, "err", err)
		} else {
			pass := "no"
			if decision.Passes(r, d.Thresholds) {
				pass = "yes"
			}
			logf("monitor: classifier-only debug result",
				"pass", pass, "primary", r.Primary, "baby", r.Baby, "cat", r.Cat, "backend", d.Label)
		}
		if maxWindows > 0 && n >= maxWindows {
			return nil
		}

		wait := d.Interval - window - time.Since(started)
		if wait > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
		}
	}
}
