package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskbridgehq/taskbridge/internal/config"
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe [mode]",
	Short: "Test backend connectivity for a persistence mode",
	Long: `Probe the backends a persistence mode would use, without touching any
task data. Without an argument the currently configured mode is probed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	r := newRouter()
	status, err := r.Initialize(cmd.Context())
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	mode := status.Mode
	if len(args) > 0 {
		mode, err = config.ParseMode(args[0])
		if err != nil {
			return err
		}
	}

	if err := r.TestMode(cmd.Context(), mode); err != nil {
		return fmt.Errorf("mode %q is not usable: %w", mode, err)
	}
	cmd.Printf("Mode %q is reachable.\n", mode)
	return nil
}
