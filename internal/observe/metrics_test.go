package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumByAttr returns the int64 sum data point whose attribute key equals
// value, or -1 when absent.
func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	return -1
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordScore(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordScore(ctx, "remote", "primary", 20*time.Millisecond, nil)
	m.RecordScore(ctx, "remote", "primary", 30*time.Millisecond, errors.New("timeout"))

	rm := collect(t, reader)
	met := findMetric(rm, "cryguard.score.duration")
	if met == nil {
		t.Fatal("score histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 2 {
		t.Errorf("histogram data points = %+v, want one point with count 2", hist.DataPoints)
	}
	if got := sumByAttr(t, rm, "cryguard.provider.errors", "provider", "remote"); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
}

func TestRecordWindow(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordWindow(ctx, true, true, false, true)
	m.RecordWindow(ctx, true, false, false, false)
	m.RecordWindow(ctx, false, false, true, false)

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "cryguard.windows", "", ""); got != 3 {
		t.Errorf("windows = %d, want 3", got)
	}
	tests := map[string]int64{"candidate": 2, "confirmed": 1, "suppressed": 1, "ready": 1}
	for outcome, want := range tests {
		if got := sumByAttr(t, rm, "cryguard.gate.outcomes", "outcome", outcome); got != want {
			t.Errorf("outcome %s = %d, want %d", outcome, got, want)
		}
	}
}

func TestAlertCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAlert(ctx, "sent")
	m.RecordAlert(ctx, "sent")
	m.RecordBlocked(ctx, "verifier")
	m.RecordValidation(ctx, time.Second, "block")

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "cryguard.alerts", "status", "sent"); got != 2 {
		t.Errorf("alerts sent = %d, want 2", got)
	}
	if got := sumByAttr(t, rm, "cryguard.alerts.blocked", "reason", "verifier"); got != 1 {
		t.Errorf("blocked by verifier = %d, want 1", got)
	}
	if findMetric(rm, "cryguard.validator.duration") == nil {
		t.Error("validator histogram not found")
	}
}

func TestControlPlaneCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPoll(ctx, nil)
	m.RecordPoll(ctx, errors.New("502"))
	m.RecordPoll(ctx, errors.New("502"))
	m.RecordCommand(ctx, "/cal_status")
	m.RecordWatchPush(ctx, true)
	m.ActiveWatches.Add(ctx, 2)
	m.ActiveWatches.Add(ctx, -1)

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "cryguard.poller.polls", "status", "error"); got != 2 {
		t.Errorf("poll errors = %d, want 2", got)
	}
	if got := sumByAttr(t, rm, "cryguard.poller.commands", "command", "/cal_status"); got != 1 {
		t.Errorf("commands = %d, want 1", got)
	}
	if got := sumByAttr(t, rm, "cryguard.poller.watch_pushes", "status", "ok"); got != 1 {
		t.Errorf("watch pushes = %d, want 1", got)
	}
	if got := sumByAttr(t, rm, "cryguard.poller.active_watches", "", ""); got != 1 {
		t.Errorf("active watches = %d, want 1", got)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics should return the same instance")
	}
}
