package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persistence mode and backend condition",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	r := newRouter()
	status, err := r.Initialize(cmd.Context())
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if isJSON() {
		return printJSON(status)
	}

	cmd.Printf("Mode:            %s\n", status.Mode)
	cmd.Printf("Project state:   %s\n", status.State)
	cmd.Printf("Auto-sync:       %v\n", status.AutoSync)
	if status.Mode != "local" {
		cmd.Printf("Remote ready:    %v\n", status.RemoteReady)
		cmd.Printf("Fallback active: %v\n", status.FallbackActive)
		if status.Limiter != nil {
			cmd.Printf("Requests today:  %d\n", status.Limiter.DayCount)
		}
	}
	return nil
}
