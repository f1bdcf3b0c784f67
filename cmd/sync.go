package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskbridgehq/taskbridge/internal/bridgesync"
	"github.com/taskbridgehq/taskbridge/internal/config"
)

var syncWatch bool

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push unsynced tasks to the remote board",
	Long: `Reconcile the local task document with the remote board: every task
whose sync status is pending or error is pushed, and the outcome is recorded
per task.

With --watch, keep running and reconcile whenever the task document changes.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false, "keep watching the task document for changes")
}

func runSync(cmd *cobra.Command, args []string) error {
	r := newRouter()
	status, err := r.Initialize(cmd.Context())
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	local, remote := r.Backends()
	if remote == nil {
		return fmt.Errorf("sync needs a remote backend; persistence mode is %q", status.Mode)
	}

	sweeper := bridgesync.NewSweeper(local, remote, slog.Default())
	res, err := sweeper.Reconcile(cmd.Context())
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	if isJSON() && !syncWatch {
		return printJSON(res)
	}
	cmd.Printf("Pushed %d, failed %d, already synced %d.\n", res.Pushed, res.Failed, res.Skipped)

	if !syncWatch {
		return nil
	}
	if !status.AutoSync {
		return fmt.Errorf("--watch needs autoSync enabled in %s", config.Path(projectRoot))
	}

	tasksPath := config.TasksPath(projectRoot, r.Config())
	watcher, err := bridgesync.NewWatcher(sweeper, tasksPath, slog.Default())
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	cmd.Printf("Watching %s; press Ctrl+C to stop.\n", tasksPath)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-cmd.Context().Done():
	}
	return nil
}
