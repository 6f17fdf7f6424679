package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fableworks/taskcore/pkg/config"
	"github.com/fableworks/taskcore/pkg/engine"
	"github.com/fableworks/taskcore/pkg/events"
	"github.com/fableworks/taskcore/pkg/jobs"
	"github.com/fableworks/taskcore/pkg/log"
	"github.com/fableworks/taskcore/pkg/provider"
	"github.com/fableworks/taskcore/pkg/task"
	"github.com/fableworks/taskcore/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <task-type> <params-json>",
	Short: "Submit one task and wait for its terminal state",
	Long: `Run a single task end to end against a local engine: submit, follow
lifecycle events, and print the final record as JSON. Intended for smoke
testing a configuration, not for production submission.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskType := args[0]
		params := json.RawMessage(args[1])

		configPath, _ := cmd.Flags().GetString("config")
		userID, _ := cmd.Flags().GetString("user")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.NodeID == "" {
			hostname, _ := os.Hostname()
			cfg.NodeID = hostname
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
		})
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return err
		}

		eng, err := engine.New(*cfg)
		if err != nil {
			return err
		}
		client := provider.NewThrottled(provider.NewScripted(0), eng.Limiter())
		eng.MustRegister(task.Echo{})
		eng.MustRegister(jobs.NewChapterContinuation(client))
		eng.MustRegister(jobs.NewSummaryBatch())
		eng.MustRegister(jobs.NewChapterSummary(client))

		if err := eng.Start(); err != nil {
			return err
		}
		defer eng.Stop()

		taskID, err := eng.Submit(taskType, userID, params)
		if err != nil {
			return err
		}
		fmt.Printf("Submitted task %s\n", taskID)

		sub := eng.Events().SubscribeTask(taskID)
		defer eng.Events().Unsubscribe(sub)

		// The task may have settled before the subscription landed.
		rec, err := eng.Get(taskID)
		if err != nil {
			return err
		}
		if rec.Status.Terminal() {
			return printRecord(rec)
		}

		deadline := time.After(timeout)
		for {
			select {
			case ev := <-sub:
				fmt.Printf("  %s  %s\n", ev.Timestamp.Format(time.RFC3339), ev.Type)
				if ev.Type == events.EventTaskProgress || !ev.Status.Terminal() {
					continue
				}
				rec, err := eng.Get(taskID)
				if err != nil {
					return err
				}
				return printRecord(rec)
			case <-deadline:
				return fmt.Errorf("task %s did not settle within %s", taskID, timeout)
			}
		}
	},
}

func printRecord(rec *types.TaskRecord) error {
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	runCmd.Flags().String("config", "taskcore.yaml", "Path to configuration file")
	runCmd.Flags().String("user", "local", "User id recorded on the task")
	runCmd.Flags().Duration("timeout", 2*time.Minute, "How long to wait for a terminal state")
}
