package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/taskbridgehq/taskbridge/internal/router"
	"github.com/taskbridgehq/taskbridge/models"
)

var (
	listStatus   string
	listPriority string
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List the task collection from the active backend.

Examples:
  taskbridge list
  taskbridge list --status pending
  taskbridge list --priority high --json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "filter by status")
	listCmd.Flags().StringVarP(&listPriority, "priority", "p", "", "filter by priority")
}

func runList(cmd *cobra.Command, args []string) error {
	tasks, err := newRouter().GetTasks(cmd.Context(), router.Query{
		Status:   models.TaskStatus(listStatus),
		Priority: models.TaskPriority(listPriority),
	})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if isJSON() {
		return printJSON(tasks)
	}
	if len(tasks) == 0 {
		cmd.Println("No tasks found.")
		cmd.Println("Add one with: taskbridge add \"Your task here\"")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tSYNC\tTITLE")
	for _, t := range tasks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, syncLabel(t.Sync), t.Title)
		for _, st := range t.Subtasks {
			fmt.Fprintf(w, "%d.%d\t%s\t%s\t\t  %s\n", t.ID, st.ID, st.Status, st.Priority, st.Title)
		}
	}
	return w.Flush()
}

func syncLabel(m models.SyncMeta) string {
	if m.SyncStatus == "" {
		return "-"
	}
	return string(m.SyncStatus)
}

func formatDeps(deps []models.DepRef) string {
	if len(deps) == 0 {
		return "-"
	}
	parts := make([]string, len(deps))
	for i, d := range deps {
		parts[i] = d.String()
	}
	return strings.Join(parts, ", ")
}
