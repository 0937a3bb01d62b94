// Package app wires all cryguard subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture loop alongside the control-plane
// poller, the HTTP server and the config watcher, and Shutdown tears
// everything down in reverse order.
//
// For testing, inject doubles via functional options (WithTransport,
// WithFeed, WithSource, ...). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/cryguard/internal/calibration"
	"github.com/MrWong99/cryguard/internal/config"
	"github.com/MrWong99/cryguard/internal/eventstore"
	"github.com/MrWong99/cryguard/internal/health"
	"github.com/MrWong99/cryguard/internal/hostcheck"
	"github.com/MrWong99/cryguard/internal/httpapi"
	"github.com/MrWong99/cryguard/internal/monitor"
	"github.com/MrWong99/cryguard/internal/notify"
	"github.com/MrWong99/cryguard/internal/notify/discord"
	"github.com/MrWong99/cryguard/internal/notify/telegram"
	"github.com/MrWong99/cryguard/internal/observe"
	"github.com/MrWong99/cryguard/internal/operator"
	"github.com/MrWong99/cryguard/internal/poller"
	"github.com/MrWong99/cryguard/internal/validator"
	"github.com/MrWong99/cryguard/pkg/audio"
	"github.com/MrWong99/cryguard/pkg/provider/llm"
	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// LockFileName is the instance lock created in the artifact directory.
const LockFileName = "cryguard.lock"

// ErrAlreadyRunning is returned by New when another process holds the
// instance lock for the same artifact directory.
var ErrAlreadyRunning = errors.New("app: another cryguard instance is using this artifact directory")

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	// Scorer is the primary per-window scorer. Required.
	Scorer scorer.Provider

	// Verifier is the optional second-stage scorer.
	Verifier scorer.Provider

	// LLM backs the semantic validator when it is enabled.
	LLM llm.Provider
}

// App owns all subsystem lifetimes and orchestrates the monitor.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	lock      *flock.Flock
	metrics   *observe.Metrics
	store     *calibration.Store
	transport notify.Transport
	notifier  *notify.Notifier
	events    eventstore.Store
	validator *validator.Validator
	monitor   *monitor.Loop
	operator  *operator.Operator
	feed      poller.Feed
	poller    *poller.Poller
	health    *health.Handler
	api       *httpapi.Server

	source     audio.Source
	configPath string
	logLevel   *slog.LevelVar
	maxWindows int

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithTransport injects the chat transport instead of creating a Telegram
// client from config.
func WithTransport(t notify.Transport) Option {
	return func(a *App) { a.transport = t }
}

// WithFeed injects the operator update feed used by the poller.
func WithFeed(f poller.Feed) Option {
	return func(a *App) { a.feed = f }
}

// WithSource injects the audio source instead of opening the configured
// capture command or replay file.
func WithSource(s audio.Source) Option {
	return func(a *App) { a.source = s }
}

// WithEventStore injects the alert event sink instead of the configured ones.
func WithEventStore(s eventstore.Store) Option {
	return func(a *App) { a.events = s }
}

// WithMetrics replaces the default metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigWatch reloads path while running. Log level and gating defaults
// are applied live; other changes are logged as needing a restart.
func WithConfigWatch(path string, level *slog.LevelVar) Option {
	return func(a *App) { a.configPath, a.logLevel = path, level }
}

// WithMaxWindows stops Run after n processed windows. Zero means no limit.
func WithMaxWindows(n int) Option {
	return func(a *App) { a.maxWindows = n }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Scorer == nil {
		return nil, errors.New("app: a primary scorer is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Artifact directory + instance lock ────────────────────────────
	if err := a.initLock(); err != nil {
		return nil, err
	}

	// ── 2. Calibration store ─────────────────────────────────────────────
	a.store = calibration.NewStore(cfg.Monitor.ArtifactDir)

	// ── 3. Notifier ──────────────────────────────────────────────────────
	if err := a.initNotifier(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init notifier: %w", err)
	}

	// ── 4. Event sinks ───────────────────────────────────────────────────
	if err := a.initEvents(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init event store: %w", err)
	}

	// ── 5. Validator ─────────────────────────────────────────────────────
	if cfg.Validator.Enabled && providers.LLM != nil {
		a.validator = validator.New(providers.LLM,
			validator.WithTimeout(cfg.Validator.Timeout()),
			validator.WithMetrics(a.metrics),
		)
	}

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	a.initHTTP()

	// ── 7. Monitor loop ──────────────────────────────────────────────────
	a.initMonitor()

	// ── 8. Operator + poller ─────────────────────────────────────────────
	a.initOperator()
	if err := a.initPoller(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init poller: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initLock creates the artifact directory and takes the instance lock.
func (a *App) initLock() error {
	dir := a.cfg.Monitor.ArtifactDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("app: create artifact dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("app: acquire instance lock: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}
	a.lock = lock
	a.closers = append(a.closers, lock.Unlock)
	return nil
}

// initNotifier builds the Telegram transport, recipient store and the
// optional Discord broadcaster.
func (a *App) initNotifier() error {
	tg := a.cfg.Telegram
	if a.transport == nil {
		if tg.BotToken == "" {
			a.transport = disabledTransport{}
		} else {
			opts := []telegram.Option{telegram.WithClipConverter(notify.FFmpegMP3)}
			if tg.BaseURL != "" {
				opts = append(opts, telegram.WithBaseURL(tg.BaseURL))
			}
			client, err := telegram.New(tg.BotToken, opts...)
			if err != nil {
				return err
			}
			a.transport = client
			if a.feed == nil {
				a.feed = telegramFeed{client: client}
			}
		}
	}

	nopts := []notify.Option{notify.WithStaticChatID(tg.ChatID)}
	if a.cfg.Discord.Enabled() {
		b, err := discord.New(discord.Config{Token: a.cfg.Discord.Token, ChannelIDs: a.cfg.Discord.ChannelIDs})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, b.Close)
		nopts = append(nopts, notify.WithBroadcaster(b))
		slog.Info("discord broadcaster connected", "channels", len(a.cfg.Discord.ChannelIDs))
	}
	a.notifier = notify.New(a.transport, notify.NewRecipientStore(tg.RecipientStorePath), nopts...)
	return nil
}

// initEvents opens every configured event sink.
func (a *App) initEvents(ctx context.Context) error {
	if a.events != nil {
		return nil
	}
	sinks, closers, err := OpenEvents(ctx, a.cfg)
	a.closers = append(a.closers, closers...)
	if err != nil {
		return err
	}
	if len(sinks) > 0 {
		a.events = sinks
	}
	return nil
}

// OpenEvents opens the sinks listed in cfg.EventStore in order. The returned
// closers must be run even when err is non-nil.
func OpenEvents(ctx context.Context, cfg *config.Config) (eventstore.Multi, []func() error, error) {
	es := cfg.EventStore
	var (
		sinks   eventstore.Multi
		closers []func() error
	)
	for _, kind := range es.Kinds {
		switch kind {
		case config.EventStoreFile:
			sinks = append(sinks, eventstore.NewFileStore(cfg.Monitor.ArtifactDir))
		case config.EventStoreSQLite:
			s, err := eventstore.OpenSQLite(es.SQLitePath)
			if err != nil {
				return nil, closers, err
			}
			closers = append(closers, s.Close)
			sinks = append(sinks, s)
		case config.EventStorePostgres:
			s, pool, err := eventstore.OpenPostgres(ctx, es.PostgresDSN)
			if err != nil {
				return nil, closers, err
			}
			closers = append(closers, func() error {
				pool.Close()
				return nil
			})
			sinks = append(sinks, s)
		default:
			return nil, closers, fmt.Errorf("unknown event store kind %q", kind)
		}
		slog.Debug("event sink opened", "kind", kind)
	}
	return sinks, closers, nil
}

// initHTTP builds the health checks and the HTTP API.
func (a *App) initHTTP() {
	cfg := a.cfg
	p := a.providers
	checks := []health.Checker{
		health.ScorerCheck("scorer", p.Scorer, cfg.Audio.SampleRate),
		health.DirWritableCheck("artifacts", cfg.Monitor.ArtifactDir),
	}
	if p.Verifier != nil {
		checks = append(checks, health.ScorerCheck("verifier", p.Verifier, cfg.Audio.SampleRate))
	}
	if a.source == nil && cfg.Audio.ReplayPath == "" {
		device := cfg.Audio.Device
		checks = append(checks, health.FuncCheck("microphone", true, func(context.Context) (bool, string) {
			return hostcheck.Microphone(device)
		}))
	}
	a.health = health.New(checks...)

	opts := []httpapi.Option{
		httpapi.WithHealth(a.health),
		httpapi.WithMetrics(a.metrics),
		httpapi.WithControl(a.store),
	}
	if p.Verifier != nil {
		opts = append(opts, httpapi.WithVerifier(p.Verifier))
	}
	a.api = httpapi.New(httpapi.Config{
		SampleRate:         cfg.Audio.SampleRate,
		Thresholds:         cfg.Gating.Thresholds(),
		AcceptNewUsers:     cfg.Telegram.AcceptNewUsers,
		ManualRegistration: cfg.Server.EnableManualRegistration,
	}, p.Scorer, a.notifier, opts...)
}

// initMonitor builds the processing loop. Its status snapshots feed the
// HTTP stream.
func (a *App) initMonitor() {
	cfg := a.cfg
	opts := []monitor.Option{
		monitor.WithMetrics(a.metrics),
		monitor.WithStatusSink(a.api.Publish),
	}
	if a.providers.Verifier != nil {
		opts = append(opts, monitor.WithVerifier(a.providers.Verifier))
	}
	if a.validator != nil {
		opts = append(opts, monitor.WithValidator(a.validator))
	}
	if a.events != nil {
		opts = append(opts, monitor.WithEvents(a.events))
	}
	a.monitor = monitor.New(monitor.Settings{
		SampleRate:        cfg.Audio.SampleRate,
		ClipSeconds:       cfg.Audio.ClipSeconds,
		ArtifactDir:       cfg.Monitor.ArtifactDir,
		ValidatorFailOpen: cfg.Validator.FailOpen,
	}, cfg.Gating.Params(), a.providers.Scorer, a.notifier, a.store, opts...)
}

// initOperator builds the command handlers behind the poller.
func (a *App) initOperator() {
	cfg := a.cfg
	var opts []operator.Option
	if a.providers.Verifier != nil {
		opts = append(opts, operator.WithVerifier(a.providers.Verifier))
	}
	if cfg.Telegram.EnableTestCommand {
		argv := captureArgv(cfg.Audio)
		capture := operator.CommandCapture(argv, cfg.Audio.SampleRate, cfg.Audio.MicGainDB, filepath.Base(argv[0]))
		opts = append(opts, operator.WithTestSample(capture, a.notifier))
	}
	a.operator = operator.New(operator.Config{
		SampleRate:    cfg.Audio.SampleRate,
		WindowSeconds: cfg.Audio.WindowSeconds,
		TestSeconds:   float64(cfg.Telegram.TestSeconds),
		ArtifactDir:   cfg.Monitor.ArtifactDir,
		Device:        cfg.Audio.Device,
	}, a.store, a.providers.Scorer, opts...)
}

// initPoller builds the control-plane poller when enabled.
func (a *App) initPoller() error {
	if !a.cfg.Telegram.EnablePoller {
		return nil
	}
	if a.feed == nil {
		return errors.New("poller enabled but no telegram bot token configured")
	}
	acceptNew := a.cfg.Telegram.AcceptNewUsers
	register := func(ctx context.Context, chatID string) bool {
		return a.notifier.Register(ctx, chatID, acceptNew)
	}
	a.poller = poller.New(a.feed, a.notifier, a.operator.Handlers(register),
		poller.WithTestCommand(a.cfg.Telegram.EnableTestCommand),
		poller.WithMetrics(a.metrics),
	)
	return nil
}

// captureArgv returns the configured capture command, or the default
// ffmpeg invocation for the configured device.
func captureArgv(ac config.AudioConfig) []string {
	if len(ac.CaptureCommand) > 0 {
		return ac.CaptureCommand
	}
	return audio.CaptureArgs(ac.Device, ac.SampleRate)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler tree.
func (a *App) Handler() http.Handler { return a.api.Handler() }

// Monitor returns the processing loop.
func (a *App) Monitor() *monitor.Loop { return a.monitor }

// Notifier returns the alert notifier.
func (a *App) Notifier() *notify.Notifier { return a.notifier }

// Store returns the calibration store.
func (a *App) Store() *calibration.Store { return a.store }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the processing loop, the poller, the HTTP server and the config
// watcher, and blocks until ctx is cancelled or the loop ends. The loop ends
// on its own when the source is exhausted or the window limit is reached;
// everything else is then stopped.
func (a *App) Run(ctx context.Context) error {
	src, err := a.openSource()
	if err != nil {
		return err
	}
	a.closers = append(a.closers, src.Close)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	// ── Processing loop ──────────────────────────────────────────────────
	g.Go(func() error {
		defer cancel()
		if a.cfg.Monitor.DebugClassifierOnly {
			d := monitor.NewDebugLoop(a.providers.Scorer, a.providers.Verifier, a.cfg.Gating.Thresholds(), a.cfg.Audio.SampleRate)
			return d.Run(gctx, src, a.maxWindows)
		}
		return a.monitor.Run(gctx, src, a.maxWindows)
	})

	// ── Control-plane poller ─────────────────────────────────────────────
	if a.poller != nil {
		a.poller.Start(gctx)
		g.Go(func() error {
			<-gctx.Done()
			return a.poller.Stop()
		})
	}

	// ── HTTP server ──────────────────────────────────────────────────────
	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http server listening", "addr", addr, "tls", a.cfg.Server.TLS != nil)
			var err error
			if tls := a.cfg.Server.TLS; tls != nil {
				err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			} else {
				err = srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: http server: %w", err)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// ── Config watcher ───────────────────────────────────────────────────
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.applyReload)
		if err != nil {
			slog.Warn("config watcher disabled", "path", a.configPath, "err", err)
		} else {
			g.Go(func() error {
				<-gctx.Done()
				w.Stop()
				return nil
			})
		}
	}

	slog.Info("app running",
		"scorer", a.providers.Scorer.Name(),
		"verifier", a.providers.Verifier != nil,
		"validator", a.validator != nil,
		"poller", a.poller != nil,
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// DryRun scores one silent window and alerts with clipPath if the gate
// fires. See [monitor.Loop.DryRun].
func (a *App) DryRun(ctx context.Context, clipPath string) (bool, error) {
	return a.monitor.DryRun(ctx, clipPath, a.cfg.Audio.WindowSeconds)
}

// openSource returns the injected source, a replay of the configured WAV
// file or the live capture command wrapped to restart after failures.
func (a *App) openSource() (audio.Source, error) {
	if a.source != nil {
		return a.source, nil
	}
	ac := a.cfg.Audio
	window := ac.WindowSeconds
	if a.cfg.Monitor.DebugClassifierOnly {
		window = monitor.DebugWindowSeconds
	}
	if ac.ReplayPath != "" {
		src, err := audio.NewWAVSource(ac.ReplayPath, ac.SampleRate, window, false)
		if err != nil {
			return nil, fmt.Errorf("app: open replay: %w", err)
		}
		return src, nil
	}
	argv := captureArgv(ac)
	open := func(ctx context.Context) (audio.Source, error) {
		return audio.StartCommandSource(ctx, argv, ac.SampleRate, window, ac.MicGainDB)
	}
	return audio.NewReopenSource(open, ac.ReopenBackoff), nil
}

// applyReload is the config watcher callback.
func (a *App) applyReload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("config reload: log level changed", "level", d.NewLogLevel)
	}
	if d.GatingChanged {
		a.monitor.SetDefaults(d.NewGating.Params())
		slog.Info("config reload: gating defaults applied", "gating", d.NewGating)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config reload: restart required for some sections", "sections", d.RestartRequired)
	}
}

// SlogLevel maps a config log level to its slog equivalent.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases whatever New acquired before failing.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
