package cmd

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/taskbridgehq/taskbridge/models"
)

var deleteYes bool

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task or subtask",
	Long: `Delete a task by ID, or a subtask with a dotted ID. References to the
deleted task are removed from other tasks' dependency lists.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := models.ParseTaskID(args[0])
	if err != nil {
		return err
	}

	if !deleteYes {
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("Delete task %s", id),
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
				cmd.Println("Deletion cancelled.")
				return nil
			}
			return err
		}
	}

	found, err := newRouter().DeleteTask(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if !found {
		cmd.Printf("Task %s does not exist; nothing to delete.\n", id)
		return nil
	}
	cmd.Printf("Deleted task %s.\n", id)
	return nil
}
