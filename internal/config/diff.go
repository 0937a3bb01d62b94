package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only the log level and gating defaults are applied without a restart;
// every other section is reported in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	GatingChanged bool
	NewGating     GatingConfig

	// RestartRequired names the top-level sections that changed but are
	// only read at startup.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.GatingChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Gating != new.Gating {
		d.GatingChanged = true
		d.NewGating = new.Gating
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !serverEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Monitor != new.Monitor {
		d.RestartRequired = append(d.RestartRequired, "monitor")
	}
	if !audioEqual(old.Audio, new.Audio) {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Validator != new.Validator {
		d.RestartRequired = append(d.RestartRequired, "validator")
	}
	if old.Telegram != new.Telegram {
		d.RestartRequired = append(d.RestartRequired, "telegram")
	}
	if old.Discord.Token != new.Discord.Token || !slices.Equal(old.Discord.ChannelIDs, new.Discord.ChannelIDs) {
		d.RestartRequired = append(d.RestartRequired, "discord")
	}
	if !eventStoreEqual(old.EventStore, new.EventStore) {
		d.RestartRequired = append(d.RestartRequired, "eventstore")
	}

	return d
}

func serverEqual(a, b ServerConfig) bool {
	if a.ListenAddr != b.ListenAddr || a.EnableManualRegistration != b.EnableManualRegistration {
		return false
	}
	if (a.TLS == nil) != (b.TLS == nil) {
		return false
	}
	return a.TLS == nil || *a.TLS == *b.TLS
}

func audioEqual(a, b AudioConfig) bool {
	return a.SampleRate == b.SampleRate &&
		a.Device == b.Device &&
		a.MicGainDB == b.MicGainDB &&
		a.WindowSeconds == b.WindowSeconds &&
		a.ClipSeconds == b.ClipSeconds &&
		a.ReplayPath == b.ReplayPath &&
		a.ReopenBackoff == b.ReopenBackoff &&
		slices.Equal(a.CaptureCommand, b.CaptureCommand)
}

func providersEqual(a, b ProvidersConfig) bool {
	return a.Hybrid == b.Hybrid &&
		entryEqual(a.Scorer, b.Scorer) &&
		entryEqual(a.Verifier, b.Verifier) &&
		entryEqual(a.LLM, b.LLM) &&
		slices.EqualFunc(a.ScorerFallbacks, b.ScorerFallbacks, entryEqual) &&
		slices.EqualFunc(a.LLMFallbacks, b.LLMFallbacks, entryEqual)
}

// entryEqual ignores Options; option-only edits are not detected.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}

func eventStoreEqual(a, b EventStoreConfig) bool {
	return a.SQLitePath == b.SQLitePath &&
		a.PostgresDSN == b.PostgresDSN &&
		slices.Equal(a.Kinds, b.Kinds)
}
