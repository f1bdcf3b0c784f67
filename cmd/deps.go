package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskbridgehq/taskbridge/internal/depgraph"
	"github.com/taskbridgehq/taskbridge/internal/router"
)

// depsCmd groups the dependency graph subcommands.
var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Validate and repair the task dependency graph",
}

var depsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Report missing references, self-dependencies and cycles",
	Args:  cobra.NoArgs,
	RunE:  runDepsValidate,
}

var depsRepairDryRun bool

var depsRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Deterministically fix all dependency graph problems",
	Long: `Repair the dependency graph: duplicate references are removed, dangling
and self-references are dropped, cycles are broken at the back edge, and a
task whose subtasks are all blocked on each other gets its first subtask
freed. Running repair twice changes nothing the second time.`,
	Args: cobra.NoArgs,
	RunE: runDepsRepair,
}

func init() {
	rootCmd.AddCommand(depsCmd)
	depsCmd.AddCommand(depsValidateCmd)
	depsCmd.AddCommand(depsRepairCmd)
	depsRepairCmd.Flags().BoolVar(&depsRepairDryRun, "dry-run", false, "report what repair would change without writing")
}

func runDepsValidate(cmd *cobra.Command, args []string) error {
	r := newRouter()
	tasks, err := r.GetTasks(cmd.Context(), router.Query{})
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	report := depgraph.Validate(tasks)
	if isJSON() {
		return printJSON(report)
	}
	if report.Valid {
		cmd.Println("Dependency graph is valid.")
		return nil
	}
	cmd.Printf("Found %d problem(s):\n", len(report.Issues))
	for _, iss := range report.Issues {
		cmd.Printf("  [%s] %s\n", iss.Kind, iss.Message)
	}
	return fmt.Errorf("dependency graph is invalid")
}

func runDepsRepair(cmd *cobra.Command, args []string) error {
	r := newRouter()
	tasks, err := r.GetTasks(cmd.Context(), router.Query{})
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	before := depgraph.Validate(tasks)
	repaired := depgraph.Repair(tasks)

	if isJSON() && depsRepairDryRun {
		return printJSON(map[string]any{"issues": before.Issues, "wouldWrite": !before.Valid})
	}
	if before.Valid {
		cmd.Println("Dependency graph is already valid; nothing to repair.")
		return nil
	}
	if depsRepairDryRun {
		cmd.Printf("Repair would fix %d problem(s).\n", len(before.Issues))
		return nil
	}

	if err := r.SaveTasks(cmd.Context(), repaired); err != nil {
		return fmt.Errorf("save repaired tasks: %w", err)
	}
	cmd.Printf("Repaired %d problem(s).\n", len(before.Issues))
	return nil
}
