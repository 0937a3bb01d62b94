// Package operator implements the replies behind the remote command table:
// calibration start/set/params/status/stop, the service status check and
// the microphone test sample. Every method returns (ok, detail); the poller
// prefixes the detail with the command label.
package operator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/cryguard/internal/calibration"
	"github.com/MrWong99/cryguard/internal/hostcheck"
	"github.com/MrWong99/cryguard/internal/poller"
	"github.com/MrWong99/cryguard/pkg/audio"
	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// TestCaption captions the microphone test clip.
const TestCaption = "Microphone test sample"

const inactiveDetail = "calibration inactive. Use /cal_start phase1|phase2 [interval_sec]."

// CaptureFunc records seconds of audio and names the capture mode used.
type CaptureFunc func(ctx context.Context, seconds float64) (samples []float32, mode string, err error)

// ClipSender delivers a clip to one chat.
type ClipSender interface {
	SendClip(ctx context.Context, chatID, path, caption string) error
}

// Config holds the operator settings.
type Config struct {
	SampleRate    int
	WindowSeconds float64
	TestSeconds   float64
	ArtifactDir   string
	Device        string
}

// Operator answers operator commands. It is safe for concurrent use.
type Operator struct {
	cfg      Config
	store    *calibration.Store
	primary  scorer.Provider
	verifier scorer.Provider
	clips    ClipSender
	capture  CaptureFunc
	host     *hostcheck.Checker
	now      func() time.Time
}

// Option is a functional option for [New].
type Option func(*Operator)

// WithVerifier includes the verifier in status checks.
func WithVerifier(p scorer.Provider) Option {
	return func(o *Operator) { o.verifier = p }
}

// WithTestSample enables /test with the given capture function and clip
// sender.
func WithTestSample(capture CaptureFunc, clips ClipSender) Option {
	return func(o *Operator) { o.capture, o.clips = capture, clips }
}

// WithHostCheck replaces the host checks.
func WithHostCheck(p *hostcheck.Checker) Option {
	return func(o *Operator) { o.host = p }
}

// WithClock replaces time.Now for test clip names.
func WithClock(now func() time.Time) Option {
	return func(o *Operator) { o.now = now }
}

// New creates an Operator.
func New(cfg Config, store *calibration.Store, primary scorer.Provider, opts ...Option) *Operator {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 0.96
	}
	if cfg.TestSeconds <= 0 {
		cfg.TestSeconds = 3
	}
	o := &Operator{cfg: cfg, store: store, primary: primary, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.host == nil {
		o.host = hostcheck.Default()
	}
	return o
}

// Handlers returns the poller callbacks backed by o. register handles /start.
func (o *Operator) Handlers(register func(ctx context.Context, chatID string) bool) poller.Handlers {
	h := poller.Handlers{
		Register:      register,
		Status:        o.Status,
		CalStart:      o.CalStart,
		CalSet:        o.CalSet,
		CalParams:     o.CalParams,
		CalStatus:     o.CalStatus,
		CalStop:       o.CalStop,
		WatchInterval: o.WatchInterval,
		HelpText:      calibration.HelpText,
	}
	if o.capture != nil && o.clips != nil {
		h.Test = o.Test
	}
	return h
}

// ── Calibration ─────────────────────────────────────────────────────────────

// CalStart handles /cal_start. A nil interval uses the default.
func (o *Operator) CalStart(_ context.Context, phase string, interval *int) (bool, string) {
	n := calibration.DefaultInterval
	if interval != nil {
		n = *interval
	}
	c, err := o.store.Start(phase, n)
	if err != nil {
		return false, err.Error()
	}
	return true, fmt.Sprintf("active phase=%s interval=%ds alerts=disabled allowed_params=%s",
		c.Phase, c.IntervalSeconds, strings.Join(c.Phase.AllowedNames(), ", "))
}

// CalSet handles /cal_set.
func (o *Operator) CalSet(_ context.Context, param, value string) (bool, string) {
	c, key, v, err := o.store.SetOverride(param, value)
	if err != nil {
		return false, err.Error()
	}
	return true, fmt.Sprintf("phase=%s set %s=%s", c.Phase, key, calibration.FormatValue(v))
}

// CalStatus handles /cal_status and the periodic watch push.
func (o *Operator) CalStatus(context.Context) (bool, string) {
	c := o.store.Load()
	if !c.Active {
		return false, inactiveDetail
	}
	st, ok := o.store.ReadStatus()
	if !ok {
		return true, fmt.Sprintf("phase=%s active interval=%ds waiting_for_live_status", c.Phase, c.IntervalSeconds)
	}
	return true, FormatStatus(c, st)
}

// FormatStatus renders a live status line for c.
func FormatStatus(c calibration.Control, st calibration.Status) string {
	updated := st.UpdatedAt
	if updated == "" {
		updated = "unknown"
	}
	blocked := st.BlockedBy
	if blocked == "" {
		blocked = calibration.BlockedByNone
	}
	return fmt.Sprintf("phase=%s interval=%ds updated=%s primary=%.2f baby=%.2f cat=%.2f "+
		"candidate=%t confirmed=%t suppressed=%t verifier_passed=%t "+
		"would_alert=%t alert_blocked_by=%s context=%s params=%s",
		c.Phase, c.IntervalSeconds, updated, st.PrimaryScore, st.BabyScore, st.CatScore,
		st.Candidate, st.Confirmed, st.Suppressed, st.VerifierPassed,
		st.WouldAlert, blocked, st.Context, calibration.FormatOverrides(st.EffectiveParams))
}

// CalParams handles /cal_params. Effective parameters come from the live
// status when present, else from the overrides.
func (o *Operator) CalParams(context.Context) (bool, string) {
	c := o.store.Load()
	if !c.Active {
		return false, inactiveDetail
	}
	effective := c.Overrides
	if st, ok := o.store.ReadStatus(); ok && len(st.EffectiveParams) > 0 {
		effective = st.EffectiveParams
	}
	return true, fmt.Sprintf("phase=%s interval=%ds overrides=%s effective_params=%s",
		c.Phase, c.IntervalSeconds, calibration.FormatOverrides(c.Overrides), calibration.FormatOverrides(effective))
}

// CalStop handles /cal_stop.
func (o *Operator) CalStop(context.Context) (bool, string) {
	previous, _, err := o.store.Stop()
	if err != nil {
		return false, err.Error()
	}
	return true, calibration.StopSummary(previous)
}

// WatchInterval returns the control interval, the default watch cadence.
func (o *Operator) WatchInterval() int {
	if n := o.store.Load().IntervalSeconds; n > 0 {
		return n
	}
	return calibration.DefaultInterval
}

// ── Service checks ──────────────────────────────────────────────────────────

// Status handles /status: it scores a silent window with each scorer and
// checks the GPU and microphone.
func (o *Operator) Status(ctx context.Context) (bool, string) {
	silence := make([]float32, audio.SamplesFor(o.cfg.WindowSeconds, o.cfg.SampleRate))
	primary, err := o.primary.Score(ctx, silence, o.cfg.SampleRate)
	if err != nil {
		return false, fmt.Sprintf("classifier check failed: %v", err)
	}
	baby, cat := primary.Baby, primary.Cat
	verifier := "off"
	if o.verifier != nil {
		v, err := o.verifier.Score(ctx, silence, o.cfg.SampleRate)
		if err != nil {
			return false, fmt.Sprintf("classifier check failed: %v", err)
		}
		baby, cat = v.Baby, v.Cat
		verifier = "on"
	}

	gpuOK, gpuDetail := o.host.GPU(ctx)
	micOK, micDetail := o.host.Microphone(o.cfg.Device)
	gpu := state("gpu", gpuOK, gpuDetail)
	mic := state("mic", micOK, micDetail)
	return true, fmt.Sprintf("api=up classifier_cpu=ready primary=%.2f baby=%.2f cat=%.2f verifier=%s %s %s",
		primary.Primary, baby, cat, verifier, gpu, mic)
}

func state(name string, ok bool, detail string) string {
	if ok {
		return fmt.Sprintf("%s=ready(%s)", name, detail)
	}
	return fmt.Sprintf("%s=unavailable(%s)", name, detail)
}

// Test handles /test: it records a short sample and sends it to chatID.
func (o *Operator) Test(ctx context.Context, chatID string) (bool, string) {
	if o.capture == nil || o.clips == nil {
		return false, "failed to capture/send sample: test capture is not configured"
	}
	samples, mode, err := o.capture(ctx, o.cfg.TestSeconds)
	if err != nil {
		return false, fmt.Sprintf("failed to capture/send sample: %v", err)
	}
	name := fmt.Sprintf("trigger_%s.wav", o.now().Format("20060102_150405"))
	path := filepath.Join(o.cfg.ArtifactDir, name)
	if err := audio.SaveWAV(path, samples, o.cfg.SampleRate); err != nil {
		return false, fmt.Sprintf("failed to capture/send sample: %v", err)
	}
	if err := o.clips.SendClip(ctx, chatID, path, TestCaption); err != nil {
		return false, fmt.Sprintf("failed to capture/send sample: %v", err)
	}
	return true, fmt.Sprintf("sent %s via %s", name, mode)
}

// CommandCapture returns a [CaptureFunc] that runs argv (an external capture
// program writing s16le mono PCM) for the requested duration.
func CommandCapture(argv []string, rate int, gainDB float64, mode string) CaptureFunc {
	return func(ctx context.Context, seconds float64) ([]float32, string, error) {
		ctx, cancel := context.WithTimeout(ctx, time.Duration(seconds*float64(time.Second))+10*time.Second)
		defer cancel()
		src, err := audio.StartCommandSource(ctx, argv, rate, seconds, gainDB)
		if err != nil {
			return nil, "", err
		}
		defer src.Close()
		samples, err := audio.Capture(ctx, src, seconds, rate)
		if err != nil {
			return nil, "", err
		}
		return samples, mode, nil
	}
}
