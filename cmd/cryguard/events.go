package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MrWong99/cryguard/internal/app"
	"github.com/MrWong99/cryguard/internal/eventstore"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the most recent alert events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			sinks, closers, err := app.OpenEvents(commandCtx(cmd), cfg)
			defer func() {
				for _, c := range closers {
					if err := c(); err != nil {
						slog.Warn("close event sink", "err", err)
					}
				}
			}()
			if err != nil {
				return err
			}
			events, err := sinks.Recent(commandCtx(cmd), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No alert events recorded.")
				return nil
			}
			fmt.Fprintln(out, renderEvents(events))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of events to show")
	return cmd
}

func renderEvents(events []eventstore.Event) string {
	score := func(f float64) string { return strconv.FormatFloat(f, 'f', 3, 64) }
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		clip := "-"
		if e.ClipPath != "" {
			clip = filepath.Base(e.ClipPath)
		}
		rows = append(rows, []string{
			e.EventAt.Local().Format("2006-01-02 15:04:05"),
			score(e.Primary),
			score(e.Baby),
			score(e.Cat),
			e.Context,
			clip,
		})
	}
	return renderTable(
		[]string{"Time", "Primary", "Baby", "Cat", "Context", "Clip"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
	)
}
