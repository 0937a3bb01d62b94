package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/MrWong99/cryguard/internal/app"
	"github.com/MrWong99/cryguard/internal/config"
)

// defaultConfigPath is read when --config is not given and the file exists.
const defaultConfigPath = "config.yaml"

// commandContext lazily loads the configuration shared by subcommands.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	// level is shared with the config watcher so reloads can change it.
	level *slog.LevelVar
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, level: new(slog.LevelVar)}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(*c.configFlag)
		if path == "" {
			if _, err := os.Stat(defaultConfigPath); err == nil {
				path = defaultConfigPath
			}
		}
		cfg, err := config.Load(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				err = fmt.Errorf("config file %q not found: %w", path, err)
			}
			c.configErr = err
			return
		}
		c.config, c.configPath = cfg, path
	})
	return c.config, c.configErr
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "cryguard",
		Short:         "Baby-cry monitor with Telegram alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				slog.SetDefault(newLogger(cmd.ErrOrStderr(), ctx.level))
				return nil
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ctx.level.Set(app.SlogLevel(cfg.Server.LogLevel))
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), ctx.level))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default ./config.yaml when present, else environment only)")

	rootCmd.AddCommand(newStartCommand(ctx))
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newGPUCheckCommand())
	rootCmd.AddCommand(newCalibrationCommand(ctx))
	rootCmd.AddCommand(newClassifyCommand(ctx))
	rootCmd.AddCommand(newEventsCommand(ctx))

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger writes text records to terminals and JSON records elsewhere.
func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if isTerminal(w) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
