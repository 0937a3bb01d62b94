package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MrWong99/cryguard/pkg/audio"
)

func (l *Loop) logger() *slog.Logger { return slog.Default() }

// Run processes windows from src until ctx is cancelled, src is exhausted or
// maxWindows windows have been processed (0 means no limit). Only a source
// failure is returned.
func (l *Loop) Run(ctx context.Context, src audio.Source, maxWindows int) error {
	l.logger().Info("monitor: starting live loop",
		"sample_rate", l.settings.SampleRate, "verifier", l.verifier != nil, "validator", l.validator != nil)
	for n := 1; ; n++ {
		w, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("monitor: read window: %w", err)
		}
		l.Cycle(ctx, w)
		if maxWindows > 0 && n >= maxWindows {
			return nil
		}
	}
}

// DryRun scores one silent window with the primary scorer and, if the gate
// fires, emits an alert carrying clipPath. It reports whether an alert was
// sent.
func (l *Loop) DryRun(ctx context.Context, clipPath string, windowSeconds float64) (bool, error) {
	if _, err := os.Stat(clipPath); err != nil {
		return false, fmt.Errorf("monitor: dry-run clip not found: %s", clipPath)
	}
	silence := make([]float32, audio.SamplesFor(windowSeconds, l.settings.SampleRate))
	r, err := l.primary.Score(ctx, silence, l.settings.SampleRate)
	if err != nil {
		return false, fmt.Errorf("monitor: dry-run score: %w", err)
	}
	r = r.Clamp()
	if !l.engine.Evaluate(r).Ready {
		return false, nil
	}
	l.emit(ctx, r, clipPath, VerifierOff, l.now())
	return true, nil
}
