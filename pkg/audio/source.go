package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// Source produces consecutive fixed-length windows. Next blocks until a full
// window is available. It returns io.EOF once the input is exhausted.
type Source interface {
	Next(ctx context.Context) (Window, error)
	Close() error
}

// ── Sample-slice source ─────────────────────────────────────────────────────

// SliceSource replays an in-memory recording window by window. It is used for
// WAV file replay and dry runs.
type SliceSource struct {
	mu      sync.Mutex
	samples []float32
	rate    int
	size    int
	pos     int
	loop    bool
	now     func() time.Time
}

// NewSliceSource splits samples into windows of windowSeconds. When loop is
// true the recording restarts instead of returning io.EOF.
func NewSliceSource(samples []float32, rate int, windowSeconds float64, loop bool) *SliceSource {
	return &SliceSource{
		samples: samples,
		rate:    rate,
		size:    SamplesFor(windowSeconds, rate),
		loop:    loop,
		now:     time.Now,
	}
}

// NewWAVSource loads path and resamples it to rate before windowing.
func NewWAVSource(path string, rate int, windowSeconds float64, loop bool) (*SliceSource, error) {
	samples, srcRate, err := LoadWAV(path)
	if err != nil {
		return nil, err
	}
	samples = Resample(samples, srcRate, rate)
	return NewSliceSource(samples, rate, windowSeconds, loop), nil
}

// Next implements [Source]. The last partial window is zero-padded.
func (s *SliceSource) Next(ctx context.Context) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.samples) {
		if !s.loop || len(s.samples) == 0 {
			return Window{}, io.EOF
		}
		s.pos = 0
	}
	out := make([]float32, s.size)
	n := copy(out, s.samples[s.pos:])
	s.pos += n
	return Window{Samples: out, SampleRate: s.rate, CapturedAt: s.now()}, nil
}

// Close implements [Source].
func (s *SliceSource) Close() error { return nil }

// ── Command source ──────────────────────────────────────────────────────────

// CommandSource reads raw s16le mono PCM from the stdout of an external
// capture program such as ffmpeg, arecord or parec.
type CommandSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	rate   int
	size   int
	gainDB float64

	closeOnce sync.Once
	closeErr  error
}

// CaptureArgs returns an ffmpeg invocation that captures device through
// PulseAudio and writes s16le mono PCM at rate Hz to stdout.
func CaptureArgs(device string, rate int) []string {
	if device == "" {
		device = "default"
	}
	return []string{
		"ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "pulse", "-i", device,
		"-ac", "1", "-ar", strconv.Itoa(rate),
		"-f", "s16le", "-",
	}
}

// StartCommandSource launches argv and returns a source reading windows of
// windowSeconds from its stdout. gainDB is applied to every window.
func StartCommandSource(ctx context.Context, argv []string, rate int, windowSeconds, gainDB float64) (*CommandSource, error) {
	if len(argv) == 0 {
		return nil, errors.New("audio: capture command is empty")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("audio: capture stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: start capture %q: %w", argv[0], err)
	}
	return &CommandSource{
		cmd:    cmd,
		stdout: stdout,
		reader: bufio.NewReaderSize(stdout, 64*1024),
		rate:   rate,
		size:   SamplesFor(windowSeconds, rate),
		gainDB: ClampGainDB(gainDB),
	}, nil
}

// Next implements [Source].
func (s *CommandSource) Next(ctx context.Context) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}
	buf := make([]byte, s.size*2)
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return Window{}, err
	}
	samples := PCM16ToFloat32(buf)
	ApplyGain(samples, s.gainDB)
	return Window{Samples: samples, SampleRate: s.rate, CapturedAt: time.Now()}, nil
}

// Close stops the capture program. It is safe to call more than once.
func (s *CommandSource) Close() error {
	s.closeOnce.Do(func() {
		_ = s.stdout.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		if err := s.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

// ── Helpers ─────────────────────────────────────────────────────────────────

// Capture reads windows from src until at least seconds of audio have been
// collected and returns them concatenated.
func Capture(ctx context.Context, src Source, seconds float64, rate int) ([]float32, error) {
	want := SamplesFor(seconds, rate)
	out := make([]float32, 0, want)
	for len(out) < want {
		w, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) && len(out) > 0 {
				break
			}
			return nil, err
		}
		out = append(out, w.Samples...)
	}
	if len(out) > want {
		out = out[:want]
	}
	return out, nil
}
