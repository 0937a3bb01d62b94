package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MrWong99/cryguard/internal/calibration"
)

func newCalibrationCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibration",
		Aliases: []string{"cal"},
		Short:   "Inspect or change the live calibration state",
	}
	cmd.AddCommand(newCalibrationShowCommand(ctx))
	cmd.AddCommand(newCalibrationStartCommand(ctx))
	cmd.AddCommand(newCalibrationSetCommand(ctx))
	cmd.AddCommand(newCalibrationStopCommand(ctx))
	return cmd
}

func calibrationStore(ctx *commandContext) (*calibration.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return calibration.NewStore(cfg.Monitor.ArtifactDir), nil
}

func newCalibrationShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the control state and the latest live status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := calibrationStore(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderControl(store.Load()))
			st, ok := store.ReadStatus()
			if !ok {
				fmt.Fprintln(out, "No live status recorded.")
				return nil
			}
			fmt.Fprintln(out, renderStatus(st))
			return nil
		},
	}
}

func newCalibrationStartCommand(ctx *commandContext) *cobra.Command {
	var interval int
	cmd := &cobra.Command{
		Use:   "start <phase1|phase2>",
		Short: "Activate calibration for a phase, clearing overrides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := calibrationStore(ctx)
			if err != nil {
				return err
			}
			c, err := store.Start(args[0], interval)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderControl(c))
			return nil
		},
	}
	cmd.Flags().IntVar(&interval, "interval", calibration.DefaultInterval, "Seconds between live status updates")
	return cmd
}

func newCalibrationSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <param> <value>",
		Short: "Override one parameter of the active phase",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := calibrationStore(ctx)
			if err != nil {
				return err
			}
			_, key, val, err := store.SetOverride(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", key, val)
			return nil
		},
	}
}

func newCalibrationStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Deactivate calibration and restore configured defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := calibrationStore(ctx)
			if err != nil {
				return err
			}
			previous, _, err := store.Stop()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), calibration.StopSummary(previous))
			return nil
		},
	}
}

// ── Rendering ─────────────────────────────────────────────────────────────────

func renderControl(c calibration.Control) string {
	rows := [][]string{
		{"active", strconv.FormatBool(c.Active)},
		{"phase", string(c.Phase)},
		{"interval", fmt.Sprintf("%ds", c.IntervalSeconds)},
		{"overrides", calibration.FormatOverrides(c.Overrides)},
	}
	return renderTable([]string{"Control", "Value"}, rows, nil)
}

func renderStatus(st calibration.Status) string {
	score := func(f float64) string { return strconv.FormatFloat(f, 'f', 4, 64) }
	rows := [][]string{
		{"updated_at", st.UpdatedAt},
		{"primary_score", score(st.PrimaryScore)},
		{"baby_score", score(st.BabyScore)},
		{"cat_score", score(st.CatScore)},
		{"candidate", strconv.FormatBool(st.Candidate)},
		{"confirmed", strconv.FormatBool(st.Confirmed)},
		{"suppressed_by_cat", strconv.FormatBool(st.Suppressed)},
		{"gate_ready", strconv.FormatBool(st.GateReady)},
		{"verifier_passed", strconv.FormatBool(st.VerifierPassed)},
		{"would_alert", strconv.FormatBool(st.WouldAlert)},
		{"alert_blocked_by", string(st.BlockedBy)},
		{"effective_params", calibration.FormatOverrides(st.EffectiveParams)},
	}
	return renderTable([]string{"Status", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
