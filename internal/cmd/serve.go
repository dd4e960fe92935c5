package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pdf2zh-server/internal/jobs"
	"pdf2zh-server/internal/logger"
	"pdf2zh-server/internal/metrics"
	"pdf2zh-server/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP translation server",
	Long: `Run the HTTP server used by the reference manager plugin.

Jobs are accepted on /translate, /crop, /crop-compare and /compare and can be
followed on /progress/{id}, /result/{id} and the /events websocket.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	mgr, err := setup()
	if err != nil {
		return err
	}
	cfg := mgr.GetConfig()
	if servePort > 0 {
		cfg.Port = servePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	hub := server.NewHub()
	go hub.Run(ctx)

	var history jobs.HistoryStore
	if cfg.HistoryFile != "" {
		store, err := jobs.NewFileHistoryStore(cfg.HistoryFile)
		if err != nil {
			return err
		}
		history = store
	}
	registry := jobs.NewRegistry(jobs.Options{
		GracePeriod:   mgr.GetGracePeriod(),
		MaxAge:        mgr.GetMaxAge(),
		SweepInterval: mgr.GetSweepInterval(),
		HistoryLimit:  cfg.HistoryLimit,
		History:       history,
		Observer: func(j jobs.Job) {
			collector.ObserveJob(j)
			hub.Publish(j)
		},
	})
	registry.Start(ctx)
	defer registry.Close()

	orchestrator, err := newPipeline(cfg, collector)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		OutputDir:   cfg.DataDir,
		Clip:        cfg.Clip,
		Pipeline:    orchestrator,
		Registry:    registry,
		Hub:         hub,
		Metrics:     collector.Handler(),
		Version:     Version,
		Mode:        runtimeMode(cfg),
		EngineReady: engineReady(cfg),
		JobContext:  ctx,
	})
	logger.Info("starting server",
		logger.Int("port", cfg.Port),
		logger.String("mode", runtimeMode(cfg)),
		logger.String("outputDir", cfg.DataDir))
	return srv.ListenAndServe(ctx)
}
