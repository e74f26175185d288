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

	httpadapter "github.com/kirillkom/evidence-rag/internal/adapters/http"
	"github.com/kirillkom/evidence-rag/internal/bootstrap"
	"github.com/kirillkom/evidence-rag/internal/config"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/queue/inline"
	"github.com/kirillkom/evidence-rag/internal/observability/logging"
	"github.com/kirillkom/evidence-rag/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, "api", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Without a broker the API process consumes its own sync triggers.
	if _, ok := app.Queue.(*inline.Queue); ok {
		runner := app.NewSyncRunner("api", nil)
		go func() {
			if err := app.Queue.SubscribeSyncRequested(ctx, runner.Handle); err != nil {
				logger.Error("inline_sync_consumer_failed", "error", err)
			}
		}()
		if _, err := runner.StartScheduler(ctx, cfg.SyncSchedule); err != nil {
			logger.Error("scheduler_error", "error", err)
			os.Exit(1)
		}
	}

	router := httpadapter.NewRouter(
		cfg,
		app.QueryUC,
		app.SyncUC,
		app.Queue,
		httpadapter.WithMetrics(metrics.NewHTTPServerMetrics("api")),
		httpadapter.WithLogger(logger),
	).Handler()
	server := &http.Server{
		Addr:        ":" + cfg.APIPort,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// Streaming answers stay open for the whole generation.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_error", "error", err)
	}
}
