package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskbridgehq/taskbridge/models"
)

var (
	updateTitle       string
	updateDescription string
	updateStatus      string
	updatePriority    string
	updateDeps        []string
	updateDetails     string
)

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a task or subtask",
	Long: `Apply a partial update to a task or subtask. Only the flagged fields
change. Changing dependencies is rejected if it would introduce a cycle or a
reference to a missing task.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().StringVar(&updateTitle, "title", "", "new title")
	updateCmd.Flags().StringVarP(&updateDescription, "desc", "d", "", "new description")
	updateCmd.Flags().StringVarP(&updateStatus, "status", "s", "", "new status")
	updateCmd.Flags().StringVarP(&updatePriority, "priority", "p", "", "new priority")
	updateCmd.Flags().StringSliceVar(&updateDeps, "deps", nil, "replacement dependency IDs, comma separated")
	updateCmd.Flags().StringVar(&updateDetails, "details", "", "new implementation details")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	id, err := models.ParseTaskID(args[0])
	if err != nil {
		return err
	}

	var patch models.TaskPatch
	if cmd.Flags().Changed("title") {
		patch.Title = &updateTitle
	}
	if cmd.Flags().Changed("desc") {
		patch.Description = &updateDescription
	}
	if cmd.Flags().Changed("status") {
		s := models.TaskStatus(updateStatus)
		patch.Status = &s
	}
	if cmd.Flags().Changed("priority") {
		p := models.TaskPriority(updatePriority)
		patch.Priority = &p
	}
	if cmd.Flags().Changed("deps") {
		deps, err := parseDeps(updateDeps)
		if err != nil {
			return err
		}
		if deps == nil {
			deps = []models.DepRef{}
		}
		patch.Dependencies = &deps
	}
	if cmd.Flags().Changed("details") {
		patch.Details = &updateDetails
	}

	view, err := newRouter().UpdateTask(cmd.Context(), id, patch)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	if isJSON() {
		return printJSON(view)
	}
	cmd.Printf("Updated task %s: %s [%s]\n", view.ID, view.Title, view.Status)
	return nil
}
