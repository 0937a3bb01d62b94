// Package monitor runs the detection cycle: capture a window, score it, gate
// it, optionally verify and validate it, then alert.
//
// A [Loop] owns the gating engine and the rolling clip buffer and is driven
// by a single goroutine. The calibration control file is re-read at the
// start of every cycle so operator overrides apply without a restart, and a
// live status snapshot is written back while calibration is active.
package monitor

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrWong99/cryguard/internal/calibration"
	"github.com/MrWong99/cryguard/internal/decision"
	"github.com/MrWong99/cryguard/internal/eventstore"
	"github.com/MrWong99/cryguard/internal/gating"
	"github.com/MrWong99/cryguard/internal/notify"
	"github.com/MrWong99/cryguard/internal/observe"
	"github.com/MrWong99/cryguard/internal/validator"
	"github.com/MrWong99/cryguard/pkg/audio"
	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// VerifierOff is the alert context used when no verifier is configured.
const VerifierOff = "verifier=off"

// ControlStore is the calibration surface the loop needs: it reads control
// and writes status.
type ControlStore interface {
	Load() calibration.Control
	WriteStatus(st calibration.Status) error
}

// Validator vetoes gate-ready alerts.
type Validator interface {
	Validate(ctx context.Context, r scorer.DetectionResult) (validator.Verdict, error)
}

// Alerter delivers an alert.
type Alerter interface {
	SendAlert(ctx context.Context, r scorer.DetectionResult, clipPath, label string) (notify.AlertReceipt, error)
}

// Settings is the non-tunable part of the loop configuration.
type Settings struct {
	// SampleRate of incoming windows in Hz.
	SampleRate int

	// ClipSeconds is the length of the rolling trigger clip.
	ClipSeconds float64

	// ArtifactDir receives trigger clips.
	ArtifactDir string

	// ValidatorFailOpen lets alerts through when the validator errors.
	ValidatorFailOpen bool
}

// CycleResult describes what one [Loop.Cycle] did.
type CycleResult struct {
	// Result is the final score set: the primary scores, with target and
	// confusable taken from the verifier when it ran.
	Result scorer.DetectionResult

	Decision       gating.Decision
	VerifierPassed bool
	BlockedBy      calibration.BlockReason
	Context        string

	// Alerted is true when the alert was handed to the alerter.
	Alerted  bool
	ClipPath string

	// Err is the primary scorer error, if the cycle was skipped.
	Err error
}

// Option is a functional option for [New].
type Option func(*Loop)

// WithVerifier enables the second-stage verifier.
func WithVerifier(p scorer.Provider) Option {
	return func(l *Loop) { l.verifier = p }
}

// WithValidator enables the semantic validator.
func WithValidator(v Validator) Option {
	return func(l *Loop) { l.validator = v }
}

// WithEvents sets the alert event sink.
func WithEvents(s eventstore.Store) Option {
	return func(l *Loop) { l.events = s }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithClock replaces time.Now for cooldowns, file names and status pacing.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithStatusSink receives every status snapshot written. Used by the live
// calibration stream.
func WithStatusSink(fn func(calibration.Status)) Option {
	return func(l *Loop) { l.statusSink = fn }
}

// Loop is the processing loop. Cycle, Run and DryRun must be called from one
// goroutine; SetDefaults may be called from any.
type Loop struct {
	settings  Settings
	primary   scorer.Provider
	verifier  scorer.Provider
	validator Validator
	alerter   Alerter
	events    eventstore.Store
	control   ControlStore
	metrics   *observe.Metrics
	now       func() time.Time

	statusSink func(calibration.Status)

	engine       *gating.Engine
	buffer       *audio.RollingBuffer
	statusNextAt time.Time

	mu       sync.Mutex
	defaults gating.Params
}

// New creates a Loop. defaults are the configured parameters used when
// calibration does not override them.
func New(settings Settings, defaults gating.Params, primary scorer.Provider, alerter Alerter, control ControlStore, opts ...Option) *Loop {
	if settings.SampleRate <= 0 {
		settings.SampleRate = 16000
	}
	if settings.ClipSeconds <= 0 {
		settings.ClipSeconds = 8
	}
	l := &Loop{
		settings: settings,
		primary:  primary,
		alerter:  alerter,
		control:  control,
		defaults: defaults,
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	l.engine = gating.New(defaults, gating.WithClock(l.now))
	l.buffer = audio.NewRollingBuffer(settings.ClipSeconds, settings.SampleRate)
	return l
}

// SetDefaults replaces the configured parameters. They take effect on the
// next cycle.
func (l *Loop) SetDefaults(p gating.Params) {
	l.mu.Lock()
	l.defaults = p
	l.mu.Unlock()
}

// Defaults returns the configured parameters.
func (l *Loop) Defaults() gating.Params {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.defaults
}

// Engine exposes the gating engine for inspection by tests and status.
func (l *Loop) Engine() *gating.Engine { return l.engine }

// Context returns the alert context label.
func (l *Loop) Context() string {
	if l.verifier == nil {
		return VerifierOff
	}
	return l.verifier.Name()
}

// applyControl pushes phase1 overrides (or the defaults) into the gating
// engine and returns the verifier thresholds with phase2 overrides applied.
func (l *Loop) applyControl(ctrl calibration.Control) decision.Thresholds {
	def := l.Defaults()

	primary := overrideFloat(ctrl, calibration.Phase1, calibration.ParamPrimaryCryThreshold, def.Primary)
	confirmN := overrideInt(ctrl, calibration.Phase1, calibration.ParamConfirmN, def.ConfirmN, gating.MaxConfirmWindow)
	confirmM := overrideInt(ctrl, calibration.Phase1, calibration.ParamConfirmM, def.ConfirmM, gating.MaxConfirmWindow)
	cooldown := def.Cooldown
	if _, ok := ctrl.Override(calibration.Phase1, calibration.ParamAlertCooldownSeconds); ok {
		secs := overrideInt(ctrl, calibration.Phase1, calibration.ParamAlertCooldownSeconds, 0, int(gating.MaxCooldown/time.Second))
		cooldown = time.Duration(secs) * time.Second
	}
	l.engine.UpdateRuntime(gating.Runtime{
		Primary:  &primary,
		ConfirmN: &confirmN,
		ConfirmM: &confirmM,
		Cooldown: &cooldown,
	})
	l.engine.SetThresholds(decision.Thresholds{
		Baby:        def.Baby,
		CatWeight:   def.CatWeight,
		Margin:      def.Margin,
		CatSuppress: def.CatSuppress,
	})

	return decision.Thresholds{
		Baby:        overrideFloat(ctrl, calibration.Phase2, calibration.ParamCryThreshold, def.Baby),
		CatSuppress: overrideFloat(ctrl, calibration.Phase2, calibration.ParamCatThreshold, def.CatSuppress),
		CatWeight:   overrideFloat(ctrl, calibration.Phase2, calibration.ParamCatWeight, def.CatWeight),
		Margin:      overrideFloat(ctrl, calibration.Phase2, calibration.ParamMarginThreshold, def.Margin),
	}
}

func overrideFloat(ctrl calibration.Control, phase calibration.Phase, name string, def float64) float64 {
	if v, ok := ctrl.Override(phase, name); ok {
		return v.Float()
	}
	return def
}

// overrideInt returns the override clamped to [0, hi] before any conversion
// so hand-edited control files cannot overflow.
func overrideInt(ctrl calibration.Control, phase calibration.Phase, name string, def, hi int) int {
	v, ok := ctrl.Override(phase, name)
	if !ok {
		return def
	}
	f := v.Float()
	if math.IsNaN(f) {
		return def
	}
	return int(min(max(f, 0), float64(hi)))
}

// Cycle processes one window. It never returns an error: scorer, verifier,
// validator and delivery failures are logged and folded into the result.
func (l *Loop) Cycle(ctx context.Context, w audio.Window) CycleResult {
	ctx, span := observe.StartSpan(ctx, "monitor.cycle")
	defer span.End()
	log := observe.Logger(ctx)

	l.buffer.Append(w.Samples)
	ctrl := l.control.Load()
	verify := l.applyControl(ctrl)

	res := CycleResult{VerifierPassed: true, BlockedBy: calibration.BlockedByNone, Context: l.Context()}

	start := time.Now()
	r, err := l.primary.Score(ctx, w.Samples, l.rate(w))
	l.metrics.RecordScore(ctx, l.primary.Name(), "primary", time.Since(start), err)
	if err != nil {
		log.Warn("monitor: primary scorer failed, skipping window", "provider", l.primary.Name(), "err", err)
		res.Err = err
		return res
	}
	r = r.Clamp()
	res.Result = r

	d := l.engine.Evaluate(r)
	res.Decision = d
	l.metrics.RecordWindow(ctx, d.Candidate, d.Confirmed, d.Suppressed, d.Ready)

	if d.Ready {
		l.handleReady(ctx, ctrl, verify, &res)
	}

	if ctrl.Active {
		l.maybeWriteStatus(ctrl, verify, res)
	}
	return res
}

func (l *Loop) handleReady(ctx context.Context, ctrl calibration.Control, verify decision.Thresholds, res *CycleResult) {
	log := observe.Logger(ctx)
	clip := l.buffer.Snapshot()

	if l.verifier != nil {
		start := time.Now()
		vr, err := l.verifier.Score(ctx, clip, l.settings.SampleRate)
		l.metrics.RecordScore(ctx, l.verifier.Name(), "verifier", time.Since(start), err)
		switch {
		case err != nil:
			log.Warn("monitor: verifier failed, alert blocked", "provider", l.verifier.Name(), "err", err)
			res.VerifierPassed = false
			res.BlockedBy = calibration.BlockedByVerifier
		default:
			vr = vr.Clamp()
			res.Result = scorer.DetectionResult{Primary: res.Result.Primary, Baby: vr.Baby, Cat: vr.Cat}
			res.VerifierPassed = decision.Passes(vr, verify)
			if !res.VerifierPassed {
				log.Info("monitor: second-stage verifier suppressed alert", "baby", vr.Baby, "cat", vr.Cat)
				res.BlockedBy = calibration.BlockedByVerifier
			}
		}
	}

	if l.validator != nil && res.BlockedBy == calibration.BlockedByNone {
		verdict, err := l.validator.Validate(ctx, res.Result)
		switch {
		case err != nil && l.settings.ValidatorFailOpen:
			log.Error("monitor: validator failed, continuing without it", "err", err)
		case err != nil:
			log.Error("monitor: validator failed, alert blocked", "err", err)
			res.BlockedBy = calibration.BlockedByValidator
		case !verdict.Allow:
			log.Info("monitor: validator blocked alert", "reason", verdict.Reason)
			res.BlockedBy = calibration.BlockedByValidator
		}
	}

	if res.BlockedBy == calibration.BlockedByNone && ctrl.Active {
		log.Info("monitor: calibration active, alert suppressed",
			"phase", ctrl.Phase,
			"primary", res.Result.Primary, "baby", res.Result.Baby, "cat", res.Result.Cat)
		res.BlockedBy = calibration.BlockedByCalibration
	}

	if res.BlockedBy != calibration.BlockedByNone {
		l.metrics.RecordBlocked(ctx, string(res.BlockedBy))
		return
	}

	at := l.now()
	path := filepath.Join(l.settings.ArtifactDir, TriggerClipName(at))
	if err := audio.SaveWAV(path, clip, l.settings.SampleRate); err != nil {
		log.Error("monitor: save trigger clip failed", "err", err)
		path = ""
	}
	res.ClipPath = path
	l.emit(ctx, res.Result, path, res.Context, at)
	res.Alerted = true
}

// emit records the event and hands the alert to the alerter.
func (l *Loop) emit(ctx context.Context, r scorer.DetectionResult, clipPath, label string, at time.Time) {
	log := observe.Logger(ctx)
	if l.events != nil {
		if err := l.events.Save(ctx, eventstore.NewEvent(r, at, clipPath, label)); err != nil {
			log.Error("monitor: save event failed", "err", err)
		}
	}
	if _, err := l.alerter.SendAlert(ctx, r, clipPath, label); err != nil {
		l.metrics.RecordAlert(ctx, "failed")
		log.Error("monitor: alert delivery failed", "err", err)
		return
	}
	l.metrics.RecordAlert(ctx, "sent")
	log.Info("monitor: alert sent", "primary", r.Primary, "baby", r.Baby, "cat", r.Cat)
}

func (l *Loop) rate(w audio.Window) int {
	if w.SampleRate > 0 {
		return w.SampleRate
	}
	return l.settings.SampleRate
}

// TriggerClipName returns the file name of a trigger clip saved at t.
func TriggerClipName(t time.Time) string {
	return fmt.Sprintf("trigger_%s.wav", t.Format("20060102_150405"))
}
