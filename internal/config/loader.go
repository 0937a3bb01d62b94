package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Scorer names are enforced by [Validate]; unknown LLM names only warn.
var ValidProviderNames = map[string][]string{
	"scorer": {"remote", "energy"},
	"llm":    {"ollama", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// LookupFunc resolves an environment variable. [os.LookupEnv] satisfies it.
type LookupFunc func(key string) (string, bool)

// Load reads the YAML configuration file at path and returns a validated [Config].
//
// A .env file in the working directory is applied to the process environment
// first (existing variables win). ${VAR} references in the file are expanded
// and the well-known environment variables override file values. An empty
// path configures from the defaults and the environment alone.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config: failed to load .env", "err", err)
	}

	var data []byte
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
	}

	cfg, err := Parse(data, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// Parse expands environment references in data, decodes it, applies the
// environment overlay from lookup and validates the result.
func Parse(data []byte, lookup LookupFunc) (*Config, error) {
	expanded := os.Expand(string(data), func(key string) string {
		v, _ := lookup(key)
		return v
	})
	cfg, err := decode(strings.NewReader(expanded))
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	fillDerived(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. The environment is not consulted. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	fillDerived(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// ── Environment overlay ───────────────────────────────────────────────────────

// envBinding maps one or more variable names (first match wins) onto a field.
type envBinding struct {
	names []string
	set   func(raw string) error
}

func bindings(cfg *Config) []envBinding {
	return []envBinding{
		{[]string{"TELEGRAM_BOT_TOKEN"}, setString(&cfg.Telegram.BotToken)},
		{[]string{"TELEGRAM_CHAT_ID"}, setString(&cfg.Telegram.ChatID)},
		{[]string{"ACCEPT_NEW_USERS"}, setBool(&cfg.Telegram.AcceptNewUsers)},
		{[]string{"RECIPIENT_STORE_PATH"}, setString(&cfg.Telegram.RecipientStorePath)},
		{[]string{"ENABLE_TELEGRAM_POLLER"}, setBool(&cfg.Telegram.EnablePoller)},
		{[]string{"ENABLE_TELEGRAM_TEST_COMMAND"}, setBool(&cfg.Telegram.EnableTestCommand)},
		{[]string{"TELEGRAM_TEST_SECONDS"}, setInt(&cfg.Telegram.TestSeconds)},
		{[]string{"ENABLE_MANUAL_REGISTRATION"}, setBool(&cfg.Server.EnableManualRegistration)},
		{[]string{"ENABLE_OLLAMA_VALIDATOR"}, setBool(&cfg.Validator.Enabled)},
		{[]string{"OLLAMA_BASE_URL"}, setString(&cfg.Providers.LLM.BaseURL)},
		{[]string{"OLLAMA_MODEL"}, setString(&cfg.Providers.LLM.Model)},
		{[]string{"OLLAMA_TIMEOUT_SECONDS"}, setInt(&cfg.Validator.TimeoutSeconds)},
		{[]string{"SAMPLE_RATE"}, setInt(&cfg.Audio.SampleRate)},
		{[]string{"AUDIO_DEVICE"}, setString(&cfg.Audio.Device)},
		{[]string{"MIC_GAIN_DB"}, setFloat(&cfg.Audio.MicGainDB)},
		{[]string{"WINDOW_SECONDS"}, setFloat(&cfg.Audio.WindowSeconds)},
		{[]string{"EVENT_CLIP_SECONDS"}, setFloat(&cfg.Audio.ClipSeconds)},
		{[]string{"PRIMARY_CRY_THRESHOLD"}, setFloat(&cfg.Gating.PrimaryThreshold)},
		{[]string{"CRY_THRESHOLD", "BABY_THRESHOLD"}, setFloat(&cfg.Gating.CryThreshold)},
		{[]string{"CAT_THRESHOLD", "CAT_SUPPRESS_THRESHOLD"}, setFloat(&cfg.Gating.CatThreshold)},
		{[]string{"CAT_WEIGHT"}, setFloat(&cfg.Gating.CatWeight)},
		{[]string{"MARGIN_THRESHOLD"}, setFloat(&cfg.Gating.MarginThreshold)},
		{[]string{"CONFIRM_N"}, setInt(&cfg.Gating.ConfirmN)},
		{[]string{"CONFIRM_M"}, setInt(&cfg.Gating.ConfirmM)},
		{[]string{"ALERT_COOLDOWN_SECONDS"}, setInt(&cfg.Gating.AlertCooldownSeconds)},
		{[]string{"DEBUG_CLASSIFIER_ONLY_MODE"}, setBool(&cfg.Monitor.DebugClassifierOnly)},
		{[]string{"ARTIFACT_DIR"}, setString(&cfg.Monitor.ArtifactDir)},
		{[]string{"LOG_LEVEL"}, func(raw string) error {
			cfg.Server.LogLevel = LogLevel(strings.ToLower(raw))
			return nil
		}},
	}
}

// ApplyEnv overrides cfg fields from the well-known environment variables.
// Unparsable values are reported together.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	var errs []error
	for _, b := range bindings(cfg) {
		for _, name := range b.names {
			raw, ok := lookup(name)
			if !ok {
				continue
			}
			if err := b.set(strings.TrimSpace(raw)); err != nil {
				errs = append(errs, fmt.Errorf("config: env %s: %w", name, err))
			}
			break
		}
	}
	return errors.Join(errs...)
}

func setString(dst *string) func(string) error {
	return func(raw string) error {
		*dst = raw
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setFloat(dst *float64) func(string) error {
	return func(raw string) error {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(raw string) error {
		switch strings.ToLower(raw) {
		case "1", "true", "yes", "on":
			*dst = true
		default:
			*dst = false
		}
		return nil
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Monitor + audio
	if cfg.Monitor.ArtifactDir == "" {
		errs = append(errs, errors.New("monitor.artifact_dir is required"))
	}
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.WindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.window_seconds %.2f must be positive", cfg.Audio.WindowSeconds))
	}
	if cfg.Audio.ClipSeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.event_clip_seconds %.2f must be positive", cfg.Audio.ClipSeconds))
	}

	// Gating
	g := cfg.Gating
	for _, th := range []struct {
		name string
		v    float64
	}{
		{"primary_cry_threshold", g.PrimaryThreshold},
		{"cry_threshold", g.CryThreshold},
		{"cat_threshold", g.CatThreshold},
		{"margin_threshold", g.MarginThreshold},
	} {
		if th.v < 0 || th.v > 1 {
			errs = append(errs, fmt.Errorf("gating.%s %.2f is out of range [0, 1]", th.name, th.v))
		}
	}
	if g.CatWeight < 0 {
		errs = append(errs, fmt.Errorf("gating.cat_weight %.2f must not be negative", g.CatWeight))
	}
	if g.ConfirmN < 1 || g.ConfirmM < 1 {
		errs = append(errs, fmt.Errorf("gating.confirm_n and gating.confirm_m must be at least 1 (got %d, %d)", g.ConfirmN, g.ConfirmM))
	} else if g.ConfirmN > g.ConfirmM {
		errs = append(errs, fmt.Errorf("gating.confirm_n %d must not exceed gating.confirm_m %d", g.ConfirmN, g.ConfirmM))
	}
	if g.AlertCooldownSeconds < 0 {
		errs = append(errs, fmt.Errorf("gating.alert_cooldown_seconds %d must not be negative", g.AlertCooldownSeconds))
	}

	// Providers
	if cfg.Providers.Scorer.Name == "" {
		errs = append(errs, errors.New("providers.scorer.name is required"))
	} else {
		errs = append(errs, validateScorer("providers.scorer", cfg.Providers.Scorer))
	}
	for i, fb := range cfg.Providers.ScorerFallbacks {
		errs = append(errs, validateScorer(fmt.Sprintf("providers.scorer_fallbacks[%d]", i), fb))
	}
	if cfg.Providers.Verifier.Name != "" {
		errs = append(errs, validateScorer("providers.verifier", cfg.Providers.Verifier))
	} else if cfg.Providers.Hybrid {
		errs = append(errs, errors.New("providers.hybrid requires providers.verifier"))
	}

	// Validator
	if cfg.Validator.Enabled {
		if cfg.Providers.LLM.Name == "" {
			errs = append(errs, errors.New("validator.enabled requires providers.llm"))
		}
		if cfg.Validator.TimeoutSeconds <= 0 {
			errs = append(errs, fmt.Errorf("validator.timeout_seconds %d must be positive", cfg.Validator.TimeoutSeconds))
		}
		validateProviderName("llm", cfg.Providers.LLM.Name)
		for _, fb := range cfg.Providers.LLMFallbacks {
			validateProviderName("llm", fb.Name)
		}
	}

	// Telegram
	if cfg.Telegram.BotToken == "" && (cfg.Telegram.EnablePoller || !cfg.Discord.Enabled()) {
		errs = append(errs, errors.New("telegram.bot_token is required (set TELEGRAM_BOT_TOKEN)"))
	}
	if cfg.Telegram.EnableTestCommand && cfg.Telegram.TestSeconds <= 0 {
		errs = append(errs, fmt.Errorf("telegram.test_seconds %d must be positive", cfg.Telegram.TestSeconds))
	}

	// Discord
	if cfg.Discord.Token != "" && len(cfg.Discord.ChannelIDs) == 0 {
		slog.Warn("discord.token is set but discord.channel_ids is empty; Discord fan-out disabled")
	}

	// Event store
	seen := make(map[EventStoreKind]bool, len(cfg.EventStore.Kinds))
	for i, k := range cfg.EventStore.Kinds {
		if !k.IsValid() {
			errs = append(errs, fmt.Errorf("eventstore.kinds[%d] %q is invalid; valid values: file, sqlite, postgres", i, k))
			continue
		}
		if seen[k] {
			errs = append(errs, fmt.Errorf("eventstore.kinds[%d] %q is a duplicate", i, k))
		}
		seen[k] = true
	}
	if seen[EventStorePostgres] && cfg.EventStore.PostgresDSN == "" {
		errs = append(errs, errors.New("eventstore.postgres_dsn is required when the postgres sink is enabled"))
	}

	return errors.Join(errs...)
}

func validateScorer(field string, e ProviderEntry) error {
	if !slices.Contains(ValidProviderNames["scorer"], e.Name) {
		return fmt.Errorf("%s.name %q is invalid; valid values: %s", field, e.Name, strings.Join(ValidProviderNames["scorer"], ", "))
	}
	if e.Name == "remote" && e.BaseURL == "" {
		return fmt.Errorf("%s.base_url is required for the remote scorer", field)
	}
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
