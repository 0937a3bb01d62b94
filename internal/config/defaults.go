package config

import (
	"path/filepath"
	"time"
)

// Default values applied before a config file is decoded. Fields present in
// the file override them.
const (
	DefaultListenAddr       = ":8080"
	DefaultArtifactDir      = "/app/artifacts"
	DefaultSampleRate       = 16000
	DefaultWindowSeconds    = 0.96
	DefaultClipSeconds      = 8
	DefaultReopenBackoff    = 2 * time.Second
	DefaultValidatorURL     = "http://host.docker.internal:11434"
	DefaultValidatorModel   = "llama3.2"
	DefaultValidatorTimeout = 10
	DefaultTestSeconds      = 3

	// RecipientsFileName is the recipient store inside the artifact directory
	// when telegram.recipient_store_path is unset.
	RecipientsFileName = "telegram_recipients.json"

	// EventsDBFileName is the SQLite event database inside the artifact
	// directory when eventstore.sqlite_path is unset.
	EventsDBFileName = "events.db"
)

// Default returns a config populated with every default value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: DefaultListenAddr,
			LogLevel:   LogInfo,
		},
		Monitor: MonitorConfig{
			ArtifactDir: DefaultArtifactDir,
		},
		Audio: AudioConfig{
			SampleRate:    DefaultSampleRate,
			WindowSeconds: DefaultWindowSeconds,
			ClipSeconds:   DefaultClipSeconds,
			ReopenBackoff: DefaultReopenBackoff,
		},
		Gating: GatingConfig{
			PrimaryThreshold:     0.5,
			CryThreshold:         0.45,
			CatThreshold:         0.45,
			CatWeight:            1.0,
			MarginThreshold:      0.15,
			ConfirmN:             3,
			ConfirmM:             5,
			AlertCooldownSeconds: 60,
		},
		Providers: ProvidersConfig{
			Scorer: ProviderEntry{Name: "energy"},
			LLM: ProviderEntry{
				Name:    "ollama",
				BaseURL: DefaultValidatorURL,
				Model:   DefaultValidatorModel,
			},
		},
		Validator: ValidatorConfig{
			TimeoutSeconds: DefaultValidatorTimeout,
		},
		Telegram: TelegramConfig{
			EnablePoller: true,
			TestSeconds:  DefaultTestSeconds,
		},
		EventStore: EventStoreConfig{
			Kinds: []EventStoreKind{EventStoreFile},
		},
	}
}

// fillDerived resolves paths that default relative to the artifact directory.
func fillDerived(cfg *Config) {
	if cfg.Telegram.RecipientStorePath == "" {
		cfg.Telegram.RecipientStorePath = filepath.Join(cfg.Monitor.ArtifactDir, RecipientsFileName)
	}
	if cfg.EventStore.SQLitePath == "" {
		cfg.EventStore.SQLitePath = filepath.Join(cfg.Monitor.ArtifactDir, EventsDBFileName)
	}
}
