package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/cryguard/internal/config"
	"github.com/MrWong99/cryguard/internal/httpapi"
	"github.com/MrWong99/cryguard/pkg/audio"
)

// newClassifyCommand scores a WAV file offline with the configured scorers
// and prints the same JSON document as POST /classify.
func newClassifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <file.wav>",
		Short: "Score one WAV clip and print the verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			samples, rate, err := audio.LoadWAV(args[0])
			if err != nil {
				return err
			}

			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			providers, err := buildProviders(cfg, reg)
			if err != nil {
				return err
			}

			target := cfg.Audio.SampleRate
			samples = audio.Resample(samples, rate, target)
			res, err := httpapi.Classify(commandCtx(cmd), providers.Scorer, providers.Verifier, samples, target, cfg.Gating.Thresholds())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return nil
		},
	}
}
