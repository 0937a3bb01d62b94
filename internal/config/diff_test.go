package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/cryguard/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	a, b := config.Default(), config.Default()
	d := config.Diff(a, b)
	if d.Changed() {
		t.Errorf("identical configs reported a change: %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	a, b := config.Default(), config.Default()
	b.Server.LogLevel = config.LogDebug

	d := config.Diff(a, b)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level alone should not require restart, got %v", d.RestartRequired)
	}
}

func TestDiff_Gating(t *testing.T) {
	t.Parallel()
	a, b := config.Default(), config.Default()
	b.Gating.CryThreshold = 0.7
	b.Gating.ConfirmN = 2

	d := config.Diff(a, b)
	if !d.GatingChanged {
		t.Fatal("gating change not detected")
	}
	if d.NewGating.CryThreshold != 0.7 || d.NewGating.ConfirmN != 2 {
		t.Errorf("NewGating = %+v", d.NewGating)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	a, b := config.Default(), config.Default()
	b.Server.ListenAddr = ":9090"
	b.Audio.CaptureCommand = []string{"arecord"}
	b.Providers.Verifier = config.ProviderEntry{Name: "energy"}
	b.Providers.Hybrid = true
	b.Telegram.BotToken = "new"
	b.Discord.ChannelIDs = []string{"1"}
	b.EventStore.Kinds = []config.EventStoreKind{config.EventStoreSQLite}

	d := config.Diff(a, b)
	want := []string{"server", "audio", "providers", "telegram", "discord", "eventstore"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.GatingChanged || d.LogLevelChanged {
		t.Errorf("unexpected hot changes: %+v", d)
	}
}

func TestDiff_TLS(t *testing.T) {
	t.Parallel()
	a, b := config.Default(), config.Default()
	a.Server.TLS = &config.TLSConfig{CertFile: "c", KeyFile: "k"}
	b.Server.TLS = &config.TLSConfig{CertFile: "c", KeyFile: "k"}
	if d := config.Diff(a, b); d.Changed() {
		t.Errorf("equal TLS blocks reported a change: %+v", d)
	}
	b.Server.TLS.KeyFile = "k2"
	if d := config.Diff(a, b); !slices.Contains(d.RestartRequired, "server") {
		t.Errorf("TLS change not detected: %+v", d)
	}
}
