// Package validator asks a language model to confirm or veto an alert that
// already passed the acoustic gates.
//
// The model sees only the three scores and must answer with a JSON object
// {"decision": "allow"|"block", "reason": "..."}. Anything other than an
// explicit "allow" is a block. Calls run behind a circuit breaker so a dead
// model server costs one fast rejection per alert instead of a timeout.
package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/cryguard/internal/observe"
	"github.com/MrWong99/cryguard/internal/resilience"
	"github.com/MrWong99/cryguard/pkg/provider/llm"
	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// Defaults applied by [New].
const (
	DefaultTimeout = 10 * time.Second
	DefaultReason  = "no reason"
)

// Verdict is the model's answer.
type Verdict struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

// Validator judges alert candidates. Safe for concurrent use.
type Validator struct {
	provider llm.Provider
	breaker  *resilience.CircuitBreaker
	timeout  time.Duration
	metrics  *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Validator)

// WithTimeout bounds each Validate call. Default 10s.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) { v.timeout = d }
}

// WithBreaker replaces the default circuit breaker configuration.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(v *Validator) { v.breaker = resilience.NewCircuitBreaker(cfg) }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(v *Validator) { v.metrics = m }
}

// New creates a Validator backed by p.
func New(p llm.Provider, opts ...Option) *Validator {
	v := &Validator{provider: p, timeout: DefaultTimeout}
	for _, o := range opts {
		o(v)
	}
	if v.breaker == nil {
		v.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "validator/" + p.Name(),
			MaxFailures:  3,
			ResetTimeout: time.Minute,
			HalfOpenMax:  1,
		})
	}
	if v.metrics == nil {
		v.metrics = observe.DefaultMetrics()
	}
	return v
}

// Name returns the backend name.
func (v *Validator) Name() string { return v.provider.Name() }

// BuildPrompt renders the judging prompt for r.
func BuildPrompt(r scorer.DetectionResult) string {
	return fmt.Sprintf("You validate baby-cry alert decisions. Input metrics:\n"+
		"primary_score=%.3f\nbaby_score=%.3f\ncat_score=%.3f\n"+
		"Return strict JSON only with keys decision and reason. decision must be 'allow' or 'block'.",
		r.Primary, r.Baby, r.Cat)
}

// Validate asks the model about r. A transport failure, an open breaker or an
// unparsable answer returns an error; the caller decides whether that blocks.
func (v *Validator) Validate(ctx context.Context, r scorer.DetectionResult) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	req := llm.UserPrompt(BuildPrompt(r))
	req.JSON = true

	var verdict Verdict
	err := v.breaker.Execute(func() error {
		resp, err := v.provider.Complete(ctx, req)
		if err != nil {
			return err
		}
		verdict, err = ParseVerdict(resp.Content)
		return err
	})
	if err != nil {
		v.metrics.RecordValidation(ctx, time.Since(start), "error")
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			v.metrics.RecordProviderError(ctx, v.provider.Name(), "validator")
		}
		return Verdict{}, fmt.Errorf("validator: %w", err)
	}

	label := "block"
	if verdict.Allow {
		label = "allow"
	}
	v.metrics.RecordValidation(ctx, time.Since(start), label)
	return verdict, nil
}

// ParseVerdict decodes the model's JSON answer. Blank output counts as an
// empty object. A missing decision means block; a missing reason becomes
// [DefaultReason].
func ParseVerdict(raw string) (Verdict, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	if obj == nil {
		return Verdict{}, errors.New("decode verdict: not a JSON object")
	}

	decision := "block"
	if d, ok := obj["decision"]; ok && d != nil {
		decision = fmt.Sprint(d)
	}
	reason := DefaultReason
	if s, ok := obj["reason"]; ok && s != nil {
		reason = fmt.Sprint(s)
	}
	return Verdict{
		Allow:  strings.ToLower(strings.TrimSpace(decision)) == "allow",
		Reason: reason,
	}, nil
}
