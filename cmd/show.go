package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskbridgehq/taskbridge/models"
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task or subtask",
	Long:  `Show a task by ID. Subtasks are addressed with dotted IDs, e.g. "3.2".`,
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := models.ParseTaskID(args[0])
	if err != nil {
		return err
	}

	view, err := newRouter().GetTask(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("show task: %w", err)
	}
	if view == nil {
		return fmt.Errorf("task %s not found", id)
	}

	if isJSON() {
		return printJSON(view)
	}

	cmd.Printf("ID:           %s\n", view.ID)
	cmd.Printf("Title:        %s\n", view.Title)
	cmd.Printf("Status:       %s\n", view.Status)
	if view.Priority != "" {
		cmd.Printf("Priority:     %s\n", view.Priority)
	}
	if view.Description != "" {
		cmd.Printf("Description:  %s\n", view.Description)
	}
	cmd.Printf("Dependencies: %s\n", formatDeps(view.Dependencies))
	if view.Details != "" {
		cmd.Printf("Details:      %s\n", view.Details)
	}
	if view.TestStrategy != "" {
		cmd.Printf("Test:         %s\n", view.TestStrategy)
	}
	if view.Sync.SyncStatus != "" {
		cmd.Printf("Sync:         %s", view.Sync.SyncStatus)
		if view.Sync.SyncError != "" {
			cmd.Printf(" (%s)", view.Sync.SyncError)
		}
		cmd.Println()
	}
	if len(view.Subtasks) > 0 {
		cmd.Println("Subtasks:")
		for _, st := range view.Subtasks {
			cmd.Printf("  %s.%d [%s] %s\n", view.ID, st.ID, st.Status, st.Title)
		}
	}
	return nil
}
