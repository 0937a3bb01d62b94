package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/cryguard/internal/hostcheck"
)

// newStatusCommand is the container liveness check. It needs no config.
func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "status",
		Short:       "Print monitor_ready",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "monitor_ready")
			return nil
		},
	}
}

func newGPUCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "gpu-check",
		Short:       "Report whether an NVIDIA GPU is visible",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, detail := hostcheck.GPU(commandCtx(cmd))
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "gpu_unavailable:%s\n", detail)
				return errSilentExit
			}
			fmt.Fprintf(cmd.OutOrStdout(), "gpu_ready:%s\n", detail)
			return nil
		},
	}
}
