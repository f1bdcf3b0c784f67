// Package cmd wires the CLI surface over the persistence router.
package cmd

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskbridgehq/taskbridge/internal/router"
)

var (
	// projectRoot is the directory holding the task project.
	projectRoot string
	// jsonOut switches command output to JSON for scripting.
	jsonOut bool
	// verbose enables debug logging.
	verbose bool
	// version is the application version.
	version = "0.1.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "taskbridge",
	Version: version,
	Short:   "TaskBridge keeps your task list in sync across local files and a remote board.",
	Long: `TaskBridge manages a task collection that can live in a local JSON file,
a remote work-tracking board, or both at once. Writes are routed by the
configured persistence mode and fall back to the local file when the
remote service is unavailable.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVarP(&projectRoot, "root", "r", ".", "project root directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "emit JSON output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func initLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// newRouter builds the router for the flagged project root.
func newRouter() *router.Router {
	return router.New(router.Options{Root: projectRoot, Logger: slog.Default()})
}

func isJSON() bool { return jsonOut }

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
