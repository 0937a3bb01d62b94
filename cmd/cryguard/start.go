package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/cryguard/internal/app"
	"github.com/MrWong99/cryguard/internal/config"
	"github.com/MrWong99/cryguard/internal/observe"
)

// shutdownTimeout bounds the graceful stop after the run loop returns.
const shutdownTimeout = 15 * time.Second

func newStartCommand(ctx *commandContext) *cobra.Command {
	var (
		dryRun     bool
		clipPath   string
		maxWindows int
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the monitor until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if dryRun && clipPath == "" {
				return errors.New("--dry-run requires --clip-path")
			}

			slog.Info("cryguard starting",
				"config", ctx.configPath,
				"listen_addr", cfg.Server.ListenAddr,
				"log_level", cfg.Server.LogLevel,
			)

			// ── Provider registry ─────────────────────────────────────────────
			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			providers, err := buildProviders(cfg, reg)
			if err != nil {
				return err
			}

			// ── Signal context ────────────────────────────────────────────────
			runCtx, stop := signal.NotifyContext(commandCtx(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownOTel, err := observe.InitProvider(runCtx, observe.ProviderConfig{ServiceName: "cryguard"})
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer func() {
				if err := shutdownOTel(context.Background()); err != nil {
					slog.Warn("telemetry shutdown error", "err", err)
				}
			}()

			var opts []app.Option
			if ctx.configPath != "" && !dryRun {
				opts = append(opts, app.WithConfigWatch(ctx.configPath, ctx.level))
			}
			if maxWindows > 0 {
				opts = append(opts, app.WithMaxWindows(maxWindows))
			}
			application, err := app.New(runCtx, cfg, providers, opts...)
			if err != nil {
				return fmt.Errorf("initialise application: %w", err)
			}
			defer shutdownApp(application)

			if dryRun {
				sent, err := application.DryRun(runCtx, clipPath)
				if err != nil {
					return err
				}
				if sent {
					fmt.Fprintln(cmd.OutOrStdout(), "alert_sent")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "no_alert")
				}
				return nil
			}

			printStartupSummary(cmd.OutOrStdout(), cfg)
			slog.Info("monitor ready, press Ctrl+C to shut down")

			if err := application.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run: %w", err)
			}
			slog.Info("shutdown signal received, stopping…")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Send one alert for --clip-path and exit")
	cmd.Flags().StringVar(&clipPath, "clip-path", "", "WAV clip attached to the dry-run alert")
	cmd.Flags().IntVar(&maxWindows, "max-windows", 0, "Stop after this many windows (0 runs forever)")
	return cmd
}

func shutdownApp(application *app.App) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return
	}
	slog.Info("goodbye")
}

// commandCtx returns the command's context, which is nil when Execute was
// called without one.
func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        CryGuard - startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "Scorer", cfg.Providers.Scorer.Name, cfg.Providers.Scorer.Model)
	printProvider(w, "Verifier", cfg.Providers.Verifier.Name, cfg.Providers.Verifier.Model)
	if cfg.Validator.Enabled {
		printProvider(w, "Validator", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	} else {
		printProvider(w, "Validator", "", "")
	}
	source := "live"
	if cfg.Audio.ReplayPath != "" {
		source = "replay"
	}
	fmt.Fprintf(w, "║  Audio           : %-19s ║\n", fmt.Sprintf("%s @ %d Hz", source, cfg.Audio.SampleRate))
	fmt.Fprintf(w, "║  Confirm         : %-19s ║\n", fmt.Sprintf("%d of %d", cfg.Gating.ConfirmN, cfg.Gating.ConfirmM))
	if cfg.Telegram.BotToken != "" {
		fmt.Fprintf(w, "║  Telegram        : %-19s ║\n", "enabled")
	} else {
		fmt.Fprintf(w, "║  Telegram        : %-19s ║\n", "(disabled)")
	}
	if cfg.Discord.Enabled() {
		fmt.Fprintf(w, "║  Discord         : %-19d ║\n", len(cfg.Discord.ChannelIDs))
	} else {
		fmt.Fprintf(w, "║  Discord         : %-19s ║\n", "(disabled)")
	}
	if cfg.Monitor.DebugClassifierOnly {
		fmt.Fprintf(w, "║  Mode            : %-19s ║\n", "classifier debug")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, value)
}
