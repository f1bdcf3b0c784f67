package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/taskbridgehq/taskbridge/internal/project"
)

// projectCmd groups project layout subcommands.
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Inspect and upgrade the project layout",
}

var projectClassifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Report the project's persistence generation",
	Args:  cobra.NoArgs,
	RunE:  runProjectClassify,
}

var projectMigrateDryRun bool

var projectMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade the project layout in place",
	Long: `Upgrade an older project layout. Equivalent to "taskbridge init": the
upgrade is additive and idempotent, and existing files are backed up first.`,
	Args: cobra.NoArgs,
	RunE: runProjectMigrate,
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectClassifyCmd)
	projectCmd.AddCommand(projectMigrateCmd)
	projectMigrateCmd.Flags().BoolVar(&projectMigrateDryRun, "dry-run", false, "report the changes without writing anything")
}

func runProjectClassify(cmd *cobra.Command, args []string) error {
	state, err := project.Classify(afero.NewOsFs(), projectRoot)
	if err != nil {
		return fmt.Errorf("classify project: %w", err)
	}

	if isJSON() {
		return printJSON(map[string]any{"state": state, "configured": state.Configured()})
	}
	cmd.Printf("Project state: %s\n", state)
	if !state.Configured() {
		cmd.Println("Run \"taskbridge init\" to upgrade.")
	}
	return nil
}

func runProjectMigrate(cmd *cobra.Command, args []string) error {
	res, err := project.Migrate(afero.NewOsFs(), projectRoot, project.MigrateOptions{
		DryRun: projectMigrateDryRun,
		Backup: true,
	})
	if err != nil {
		return fmt.Errorf("migrate project: %w", err)
	}

	if isJSON() {
		return printJSON(res)
	}
	if len(res.Changes) == 0 {
		cmd.Printf("Project already configured (%s); nothing to migrate.\n", res.State)
		return nil
	}
	for _, change := range res.Changes {
		cmd.Printf("  - %s\n", change)
	}
	if res.BackupDir != "" {
		cmd.Printf("Backup written to %s\n", res.BackupDir)
	}
	return nil
}
