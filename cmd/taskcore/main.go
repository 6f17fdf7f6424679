package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskcore",
	Short: "Taskcore - async task engine with provider-aware rate limiting",
	Long: `Taskcore runs long AI generation jobs as durable background tasks:
submit returns a task id immediately, execution happens on a worker pool,
progress and terminal results land on a persistent task record, and every
outbound provider call passes through an adaptive per-provider rate limiter.

State lives in a local bbolt database, so a restarted node picks its
backlog back up without losing accepted work.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Taskcore version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
}
