package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fableworks/taskcore/pkg/config"
	"github.com/fableworks/taskcore/pkg/engine"
	"github.com/fableworks/taskcore/pkg/jobs"
	"github.com/fableworks/taskcore/pkg/log"
	"github.com/fableworks/taskcore/pkg/metrics"
	"github.com/fableworks/taskcore/pkg/provider"
	"github.com/fableworks/taskcore/pkg/task"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the task engine daemon",
	Long: `Run the task engine with the built-in executables registered:
echo, chapter.continuation, summary.batch and summary.chapter.

The generation executables are wired to a scripted in-memory provider
client; swap in a real client by embedding the engine in your own binary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		nodeID, _ := cmd.Flags().GetString("node-id")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if nodeID != "" {
			cfg.NodeID = nodeID
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

		client := provider.NewThrottled(provider.NewScripted(200*time.Millisecond), eng.Limiter())
		eng.MustRegister(task.Echo{})
		eng.MustRegister(jobs.NewChapterContinuation(client))
		eng.MustRegister(jobs.NewSummaryBatch())
		eng.MustRegister(jobs.NewChapterSummary(client))

		if err := eng.Start(); err != nil {
			return err
		}

		var metricsSrv *http.Server
		if cfg.Metrics.Enabled {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
			go func() {
				log.WithComponent("metrics").Info().Str("addr", cfg.Metrics.Addr).Msg("metrics endpoint listening")
				if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.WithComponent("metrics").Error().Err(err).Msg("metrics server failed")
				}
			}()
		}

		// Wait for shutdown signal
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.WithComponent("main").Info().Str("signal", sig.String()).Msg("shutting down")

		if metricsSrv != nil {
			metricsSrv.Close()
		}
		return eng.Stop()
	},
}

func init() {
	serveCmd.Flags().String("config", "taskcore.yaml", "Path to configuration file")
	serveCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	serveCmd.Flags().String("node-id", "", "Node identifier (defaults to hostname)")
}
