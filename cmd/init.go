package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/taskbridgehq/taskbridge/internal/project"
)

var (
	initDryRun   bool
	initNoBackup bool
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize or upgrade the project layout",
	Long: `Initialize the project for TaskBridge, or upgrade an older layout in
place. The upgrade is additive: existing tasks are never rewritten, and the
written configuration defaults to local mode with remote integration
disabled, so behavior does not change until you opt in.

Running init on an already configured project is a no-op.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initDryRun, "dry-run", false, "report the changes without writing anything")
	initCmd.Flags().BoolVar(&initNoBackup, "no-backup", false, "skip the timestamped backup of existing files")
}

func runInit(cmd *cobra.Command, args []string) error {
	res, err := project.Migrate(afero.NewOsFs(), projectRoot, project.MigrateOptions{
		DryRun: initDryRun,
		Backup: !initNoBackup,
	})
	if err != nil {
		return fmt.Errorf("initialize project: %w", err)
	}

	if isJSON() {
		return printJSON(res)
	}

	if len(res.Changes) == 0 {
		cmd.Printf("Project already configured (%s).\n", res.State)
		return nil
	}
	if initDryRun {
		cmd.Println("Would apply:")
	} else {
		cmd.Println("Applied:")
	}
	for _, change := range res.Changes {
		cmd.Printf("  - %s\n", change)
	}
	return nil
}
