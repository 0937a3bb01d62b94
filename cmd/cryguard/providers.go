package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/cryguard/internal/app"
	"github.com/MrWong99/cryguard/internal/config"
	"github.com/MrWong99/cryguard/internal/observe"
	"github.com/MrWong99/cryguard/internal/resilience"
	"github.com/MrWong99/cryguard/pkg/provider/llm"
	"github.com/MrWong99/cryguard/pkg/provider/llm/anyllm"
	"github.com/MrWong99/cryguard/pkg/provider/llm/ollama"
	"github.com/MrWong99/cryguard/pkg/provider/llm/openai"
	"github.com/MrWong99/cryguard/pkg/provider/scorer"
	"github.com/MrWong99/cryguard/pkg/provider/scorer/energy"
	"github.com/MrWong99/cryguard/pkg/provider/scorer/remote"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Scorers ───────────────────────────────────────────────────────────────

	reg.RegisterScorer("remote", func(entry config.ProviderEntry) (scorer.Provider, error) {
		var opts []remote.Option
		if d := optSeconds(entry.Options, "timeout_seconds"); d > 0 {
			opts = append(opts, remote.WithTimeout(d))
		}
		if path := optString(entry.Options, "path"); path != "" {
			opts = append(opts, remote.WithPath(path))
		}
		if label := optString(entry.Options, "label"); label != "" {
			opts = append(opts, remote.WithLabel(label))
		}
		return remote.New(entry.BaseURL, opts...)
	})

	reg.RegisterScorer("energy", func(entry config.ProviderEntry) (scorer.Provider, error) {
		var opts []energy.Option
		floor, okFloor := optFloat(entry.Options, "floor")
		full, okFull := optFloat(entry.Options, "full_scale")
		if okFloor || okFull {
			if !okFloor || !okFull {
				return nil, errors.New("energy: options floor and full_scale must be set together")
			}
			opts = append(opts, energy.WithLevels(floor, full))
		}
		return energy.New(opts...), nil
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	// ollama talks to the local server directly so it can request JSON mode.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []ollama.Option
		if d := optSeconds(entry.Options, "timeout_seconds"); d > 0 {
			opts = append(opts, ollama.WithTimeout(d))
		}
		return ollama.New(entry.BaseURL, entry.Model, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining backends share the same pattern: optional APIKey +
	// optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	for _, kind := range []string{"scorer", "llm"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. Fallback entries are wrapped behind circuit breakers.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	pc := cfg.Providers

	primary, err := reg.CreateScorer(pc.Scorer)
	if err != nil {
		return nil, fmt.Errorf("create scorer %q: %w", pc.Scorer.Name, err)
	}
	slog.Info("provider created", "kind", "scorer", "name", primary.Name())
	ps.Scorer = primary
	if len(pc.ScorerFallbacks) > 0 {
		fb := resilience.NewScorerFallback(primary, breakerConfig())
		for _, entry := range pc.ScorerFallbacks {
			p, err := reg.CreateScorer(entry)
			if err != nil {
				return nil, fmt.Errorf("create scorer fallback %q: %w", entry.Name, err)
			}
			fb.AddFallback(p)
			slog.Info("provider created", "kind", "scorer-fallback", "name", p.Name())
		}
		ps.Scorer = fb
	}

	if pc.Verifier.Name != "" {
		v, err := reg.CreateScorer(pc.Verifier)
		if err != nil {
			return nil, fmt.Errorf("create verifier %q: %w", pc.Verifier.Name, err)
		}
		slog.Info("provider created", "kind", "verifier", "name", v.Name())
		ps.Verifier = v
		if pc.Hybrid {
			h, err := scorer.NewHybrid(ps.Scorer, v)
			if err != nil {
				return nil, err
			}
			ps.Scorer = h
			slog.Info("hybrid scoring enabled", "name", h.Name())
		}
	}

	if !cfg.Validator.Enabled || pc.LLM.Name == "" {
		return ps, nil
	}
	model, err := reg.CreateLLM(pc.LLM)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("llm provider not available, validator disabled", "name", pc.LLM.Name)
		return ps, nil
	} else if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", pc.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", pc.LLM.Name, "model", pc.LLM.Model)
	ps.LLM = model
	if len(pc.LLMFallbacks) > 0 {
		fb := resilience.NewLLMFallback(model, pc.LLM.Name, breakerConfig())
		for _, entry := range pc.LLMFallbacks {
			p, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
			}
			fb.AddFallback(entry.Name, p)
			slog.Info("provider created", "kind", "llm-fallback", "name", entry.Name)
		}
		ps.LLM = fb
	}
	return ps, nil
}

// breakerConfig counts every breaker that opens as a provider error.
func breakerConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				if to == resilience.StateOpen {
					observe.DefaultMetrics().RecordProviderError(context.Background(), name, "circuit_open")
				}
			},
		},
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optFloat extracts a numeric option. YAML decodes whole numbers as int.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// optSeconds reads a duration given in seconds.
func optSeconds(opts map[string]any, key string) time.Duration {
	f, ok := optFloat(opts, key)
	if !ok || f <= 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
