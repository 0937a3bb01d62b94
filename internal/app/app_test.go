package app_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/cryguard/internal/app"
	"github.com/MrWong99/cryguard/internal/config"
	notifymock "github.com/MrWong99/cryguard/internal/notify/mock"
	"github.com/MrWong99/cryguard/pkg/audio"
	"github.com/MrWong99/cryguard/pkg/provider/scorer"
	scorermock "github.com/MrWong99/cryguard/pkg/provider/scorer/mock"
)

// testConfig returns a config that alerts on the first qualifying window and
// starts neither the poller nor the HTTP listener.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.ListenAddr = ""
	cfg.Monitor.ArtifactDir = dir
	cfg.Telegram.ChatID = "42"
	cfg.Telegram.EnablePoller = false
	cfg.Telegram.RecipientStorePath = filepath.Join(dir, config.RecipientsFileName)
	cfg.Gating.ConfirmN = 1
	cfg.Gating.ConfirmM = 1
	cfg.Gating.AlertCooldownSeconds = 0
	return cfg
}

func cryScorer() *scorermock.Provider {
	return &scorermock.Provider{Results: []scorer.DetectionResult{{Primary: 0.9, Baby: 0.9, Cat: 0.05}}}
}

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_RequiresScorer(t *testing.T) {
	t.Parallel()
	if _, err := app.New(context.Background(), testConfig(t), &app.Providers{}); err == nil {
		t.Fatal("expected error without a primary scorer")
	}
}

func TestNew_InstanceLock(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	tr := &notifymock.Transport{}

	first, err := app.New(context.Background(), cfg, &app.Providers{Scorer: cryScorer()}, app.WithTransport(tr))
	if err != nil {
		t.Fatalf("first New: %v", err)
	}

	_, err = app.New(context.Background(), cfg, &app.Providers{Scorer: cryScorer()}, app.WithTransport(tr))
	if !errors.Is(err, app.ErrAlreadyRunning) {
		t.Fatalf("second New error = %v, want ErrAlreadyRunning", err)
	}

	if err := first.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	third, err := app.New(context.Background(), cfg, &app.Providers{Scorer: cryScorer()}, app.WithTransport(tr))
	if err != nil {
		t.Fatalf("New after Shutdown: %v", err)
	}
	_ = third.Shutdown(context.Background())
}

func TestNew_PollerNeedsFeed(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Telegram.EnablePoller = true

	_, err := app.New(context.Background(), cfg, &app.Providers{Scorer: cryScorer()},
		app.WithTransport(&notifymock.Transport{}))
	if err == nil || !strings.Contains(err.Error(), "poller") {
		t.Fatalf("error = %v, want poller error", err)
	}
}

func TestRun_AlertsAndRecordsEvent(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	tr := &notifymock.Transport{}
	rate := cfg.Audio.SampleRate
	src := audio.NewSliceSource(make([]float32, 2*audio.SamplesFor(cfg.Audio.WindowSeconds, rate)), rate, cfg.Audio.WindowSeconds, false)

	a := newApp(t, cfg, &app.Providers{Scorer: cryScorer()},
		app.WithTransport(tr),
		app.WithSource(src),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(tr.Texts) == 0 {
		t.Fatal("no alert text was sent")
	}
	if got := tr.Texts[0]; got.ChatID != "42" || !strings.HasPrefix(got.Text, "[Baby Monitor] Cry detected") {
		t.Errorf("first text = %+v", got)
	}
	events, _ := filepath.Glob(filepath.Join(cfg.Monitor.ArtifactDir, "event_*.json"))
	if len(events) == 0 {
		t.Error("no event file was written")
	}
}

func TestRun_MaxWindows(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	primary := &scorermock.Provider{}
	rate := cfg.Audio.SampleRate
	src := audio.NewSliceSource(make([]float32, audio.SamplesFor(cfg.Audio.WindowSeconds, rate)), rate, cfg.Audio.WindowSeconds, true)

	a := newApp(t, cfg, &app.Providers{Scorer: primary},
		app.WithTransport(&notifymock.Transport{}),
		app.WithSource(src),
		app.WithMaxWindows(3),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if primary.CallCount() != 3 {
		t.Errorf("scorer calls = %d, want 3", primary.CallCount())
	}
}

func TestHandler_Health(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(t), &app.Providers{Scorer: cryScorer()},
		app.WithTransport(&notifymock.Transport{}),
		app.WithSource(audio.NewSliceSource(nil, 16000, 0.96, false)),
	)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d", rec.Code)
	}
}

func TestDryRun(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	tr := &notifymock.Transport{}
	a := newApp(t, cfg, &app.Providers{Scorer: cryScorer()}, app.WithTransport(tr))

	clip := filepath.Join(cfg.Monitor.ArtifactDir, "clip.wav")
	if err := audio.SaveWAV(clip, make([]float32, 1600), 16000); err != nil {
		t.Fatal(err)
	}
	sent, err := a.DryRun(context.Background(), clip)
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	if !sent {
		t.Error("DryRun should alert for a qualifying score")
	}
	if _, err := a.DryRun(context.Background(), filepath.Join(cfg.Monitor.ArtifactDir, "missing.wav")); err == nil {
		t.Error("DryRun with a missing clip should fail")
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	}
	for in, want := range tests {
		if got := app.SlogLevel(in); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
