// Package gating turns noisy per-window scores into alert decisions.
//
// An [Engine] applies a single-window candidate check, confusable
// suppression, an N-of-M debounce over recent windows, and a cooldown between
// alerts. The engine is owned by the processing loop; it is not safe for
// concurrent use and must never be touched from the control plane.
package gating

import (
	"time"

	"github.com/MrWong99/cryguard/internal/decision"
	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// Upper bounds applied to debounce parameters wherever they come from.
const (
	MaxConfirmWindow = 1000
	MaxCooldown      = 24 * time.Hour
)

// Params is the full tunable parameter set of an [Engine].
type Params struct {
	Primary     float64
	Baby        float64
	CatWeight   float64
	Margin      float64
	CatSuppress float64
	ConfirmN    int
	ConfirmM    int
	Cooldown    time.Duration
}

// Decision is the outcome of one [Engine.Evaluate] call.
type Decision struct {
	Candidate  bool `json:"candidate"`
	Confirmed  bool `json:"confirmed"`
	Suppressed bool `json:"suppressed_by_cat"`
	Ready      bool `json:"gate_ready"`
}

// Runtime carries the hot-swappable subset of [Params] applied once per
// cycle from calibration overrides. Nil fields are left unchanged.
type Runtime struct {
	Primary  *float64
	ConfirmN *int
	ConfirmM *int
	Cooldown *time.Duration
}

// Option is a functional option for [New].
type Option func(*Engine)

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the debounce and cooldown state machine.
type Engine struct {
	params    Params
	win       *window
	lastAlert time.Time
	hasAlert  bool
	now       func() time.Time
}

// New returns an Engine using p after clamping.
func New(p Params, opts ...Option) *Engine {
	p = clampParams(p)
	e := &Engine{
		params: p,
		win:    newWindow(p.ConfirmM),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func clampParams(p Params) Params {
	p.ConfirmN = clampWindow(p.ConfirmN)
	p.ConfirmM = clampWindow(p.ConfirmM)
	p.Cooldown = clampCooldown(p.Cooldown)
	return p
}

func clampWindow(n int) int { return min(max(1, n), MaxConfirmWindow) }

func clampCooldown(d time.Duration) time.Duration {
	return min(max(0, d), MaxCooldown)
}

// Params returns the parameter set currently in force.
func (e *Engine) Params() Params { return e.params }

// Thresholds returns the decision thresholds used for suppression.
func (e *Engine) Thresholds() decision.Thresholds {
	return decision.Thresholds{
		Baby:        e.params.Baby,
		CatWeight:   e.params.CatWeight,
		Margin:      e.params.Margin,
		CatSuppress: e.params.CatSuppress,
	}
}

// Evaluate scores one window. When the result is ready for alert the
// cooldown timer restarts at the current time.
func (e *Engine) Evaluate(r scorer.DetectionResult) Decision {
	p := e.params
	candidate := r.Primary >= p.Primary &&
		r.Baby >= p.Baby &&
		decision.Margin(r, p.CatWeight) >= p.Margin
	suppressed := decision.Dominated(r, p.Baby, p.CatSuppress)

	e.win.push(candidate && !suppressed)
	confirmed := e.win.count() >= p.ConfirmN

	now := e.now()
	cooldownReady := !e.hasAlert || now.Sub(e.lastAlert) >= p.Cooldown

	ready := confirmed && !suppressed && cooldownReady
	if ready {
		e.lastAlert = now
		e.hasAlert = true
	}
	return Decision{
		Candidate:  candidate,
		Confirmed:  confirmed,
		Suppressed: suppressed,
		Ready:      ready,
	}
}

// UpdateRuntime hot-swaps the debounce parameters. Changing ConfirmM keeps
// the most recent min(old, new) window entries.
func (e *Engine) UpdateRuntime(rt Runtime) {
	if rt.Primary != nil {
		e.params.Primary = *rt.Primary
	}
	if rt.ConfirmN != nil {
		e.params.ConfirmN = clampWindow(*rt.ConfirmN)
	}
	if rt.ConfirmM != nil {
		e.params.ConfirmM = clampWindow(*rt.ConfirmM)
		e.win.resize(e.params.ConfirmM)
	}
	if rt.Cooldown != nil {
		e.params.Cooldown = clampCooldown(*rt.Cooldown)
	}
}

// SetThresholds replaces the per-window score thresholds. Used when the
// configuration file is reloaded.
func (e *Engine) SetThresholds(t decision.Thresholds) {
	e.params.Baby = t.Baby
	e.params.CatWeight = t.CatWeight
	e.params.Margin = t.Margin
	e.params.CatSuppress = t.CatSuppress
}

// History returns the debounce window oldest first.
func (e *Engine) History() []bool { return e.win.entries() }

// LastAlert returns the time of the last ready decision and whether one has
// occurred.
func (e *Engine) LastAlert() (time.Time, bool) { return e.lastAlert, e.hasAlert }
