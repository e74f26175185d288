package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/evidence-rag/internal/bootstrap"
	"github.com/kirillkom/evidence-rag/internal/config"
	"github.com/kirillkom/evidence-rag/internal/observability/logging"
	"github.com/kirillkom/evidence-rag/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, "worker", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	syncMetrics := metrics.NewSyncMetrics("worker")
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           syncMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	runner := app.NewSyncRunner("worker", syncMetrics)
	if _, err := runner.StartScheduler(ctx, cfg.SyncSchedule); err != nil {
		logger.Error("scheduler_error", "error", err)
		os.Exit(1)
	}

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "sources", len(cfg.Sources), "schedule", cfg.SyncSchedule)
	if err := app.Queue.SubscribeSyncRequested(ctx, runner.Handle); err != nil {
		logger.Error("worker_subscribe_error", "error", err)
		os.Exit(1)
	}
}
