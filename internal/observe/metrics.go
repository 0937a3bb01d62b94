// Package observe provides application-wide observability primitives for
// cryguard: OpenTelemetry metrics, tracing helpers, structured logging and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus via [InitProvider]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all cryguard metrics.
const meterName = "github.com/MrWong99/cryguard"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// ScoreDuration tracks scorer latency. Attributes: provider, stage.
	ScoreDuration metric.Float64Histogram

	// ValidatorDuration tracks semantic validator latency. Attribute: verdict.
	ValidatorDuration metric.Float64Histogram

	// --- Detection pipeline counters ---

	// Windows counts processed audio windows.
	Windows metric.Int64Counter

	// GateOutcomes counts gate flags per window. Attribute: outcome
	// (candidate, confirmed, suppressed, ready).
	GateOutcomes metric.Int64Counter

	// Alerts counts alert dispatches. Attribute: status (sent, failed).
	Alerts metric.Int64Counter

	// AlertsBlocked counts gate-ready windows that did not alert.
	// Attribute: reason.
	AlertsBlocked metric.Int64Counter

	// ProviderErrors counts scorer and validator failures. Attributes:
	// provider, kind.
	ProviderErrors metric.Int64Counter

	// --- Control plane ---

	// Polls counts update feed polls. Attribute: status (ok, error).
	Polls metric.Int64Counter

	// Commands counts dispatched operator commands. Attribute: command.
	Commands metric.Int64Counter

	// WatchPushes counts periodic status pushes. Attribute: status.
	WatchPushes metric.Int64Counter

	// ActiveWatches tracks the number of chats with a status watch.
	ActiveWatches metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, route, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// classifier and LLM round-trips.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ScoreDuration, err = m.Float64Histogram("cryguard.score.duration",
		metric.WithDescription("Latency of acoustic scoring calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ValidatorDuration, err = m.Float64Histogram("cryguard.validator.duration",
		metric.WithDescription("Latency of semantic alert validation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Windows, err = m.Int64Counter("cryguard.windows",
		metric.WithDescription("Total audio windows processed."),
	); err != nil {
		return nil, err
	}
	if met.GateOutcomes, err = m.Int64Counter("cryguard.gate.outcomes",
		metric.WithDescription("Gate flags raised per window by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Alerts, err = m.Int64Counter("cryguard.alerts",
		metric.WithDescription("Total alert dispatches by status."),
	); err != nil {
		return nil, err
	}
	if met.AlertsBlocked, err = m.Int64Counter("cryguard.alerts.blocked",
		metric.WithDescription("Gate-ready windows that did not alert, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("cryguard.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.Polls, err = m.Int64Counter("cryguard.poller.polls",
		metric.WithDescription("Total update feed polls by status."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("cryguard.poller.commands",
		metric.WithDescription("Total operator commands dispatched by command."),
	); err != nil {
		return nil, err
	}
	if met.WatchPushes, err = m.Int64Counter("cryguard.poller.watch_pushes",
		metric.WithDescription("Total periodic calibration status pushes by status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveWatches, err = m.Int64UpDownCounter("cryguard.poller.active_watches",
		metric.WithDescription("Number of chats with an active calibration watch."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("cryguard.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func statusOf(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// RecordScore records one scorer call. A non-nil err also increments
// [Metrics.ProviderErrors].
func (m *Metrics) RecordScore(ctx context.Context, provider, stage string, d time.Duration, err error) {
	m.ScoreDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("stage", stage),
	))
	if err != nil {
		m.RecordProviderError(ctx, provider, "scorer")
	}
}

// RecordValidation records one validator call with its verdict (allow,
// block or error).
func (m *Metrics) RecordValidation(ctx context.Context, d time.Duration, verdict string) {
	m.ValidatorDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("verdict", verdict),
	))
}

// RecordWindow increments the processed window counter and the gate outcome
// counter for every flag that is set.
func (m *Metrics) RecordWindow(ctx context.Context, candidate, confirmed, suppressed, ready bool) {
	m.Windows.Add(ctx, 1)
	for outcome, set := range map[string]bool{
		"candidate":  candidate,
		"confirmed":  confirmed,
		"suppressed": suppressed,
		"ready":      ready,
	} {
		if set {
			m.GateOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}
}

// RecordAlert records an alert dispatch with status "sent" or "failed".
func (m *Metrics) RecordAlert(ctx context.Context, status string) {
	m.Alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordBlocked records a gate-ready window blocked for reason.
func (m *Metrics) RecordBlocked(ctx context.Context, reason string) {
	m.AlertsBlocked.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// RecordPoll records one update feed poll.
func (m *Metrics) RecordPoll(ctx context.Context, err error) {
	m.Polls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", statusOf(err == nil))))
}

// RecordCommand records one dispatched operator command.
func (m *Metrics) RecordCommand(ctx context.Context, command string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

// RecordWatchPush records one periodic status push.
func (m *Metrics) RecordWatchPush(ctx context.Context, ok bool) {
	m.WatchPushes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", statusOf(ok))))
}
