package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taskbridgehq/taskbridge/models"
)

var (
	addDescription string
	addPriority    string
	addDeps        []string
	addDetails     string
)

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task",
	Long: `Add a task to the collection. The next free ID is assigned
automatically. Dependencies accept task IDs ("3") and subtask IDs ("3.2").`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVarP(&addDescription, "desc", "d", "", "task description")
	addCmd.Flags().StringVarP(&addPriority, "priority", "p", "", "priority (low, medium, high, critical)")
	addCmd.Flags().StringSliceVar(&addDeps, "deps", nil, "dependency IDs, comma separated")
	addCmd.Flags().StringVar(&addDetails, "details", "", "implementation details")
}

func runAdd(cmd *cobra.Command, args []string) error {
	deps, err := parseDeps(addDeps)
	if err != nil {
		return err
	}

	draft := models.Task{
		Title:        strings.TrimSpace(args[0]),
		Description:  addDescription,
		Priority:     models.TaskPriority(addPriority),
		Dependencies: deps,
		Details:      addDetails,
	}

	task, err := newRouter().CreateTask(cmd.Context(), draft)
	if err != nil {
		return fmt.Errorf("add task: %w", err)
	}

	if isJSON() {
		return printJSON(task)
	}
	cmd.Printf("Created task %d: %s\n", task.ID, task.Title)
	return nil
}

func parseDeps(raw []string) ([]models.DepRef, error) {
	var deps []models.DepRef
	for _, s := range raw {
		id, err := models.ParseTaskID(s)
		if err != nil {
			return nil, fmt.Errorf("invalid dependency %q: %w", s, err)
		}
		deps = append(deps, models.Dep(id))
	}
	return deps, nil
}
