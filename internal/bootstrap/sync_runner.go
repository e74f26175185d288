package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kirillkom/evidence-rag/internal/core/usecase"
	"github.com/kirillkom/evidence-rag/internal/observability/metrics"
)

// SyncRunner executes queued and scheduled syncs. Runs for the same source,
// including ones started over HTTP, wait for each other instead of failing
// with ErrSyncInProgress.
type SyncRunner struct {
	service string
	syncUC  *usecase.SyncUseCase
	metrics *metrics.SyncMetrics
	timeout time.Duration
	logger  *slog.Logger
}

func (a *App) NewSyncRunner(service string, m *metrics.SyncMetrics) *SyncRunner {
	return &SyncRunner{
		service: service,
		syncUC:  a.SyncUC,
		metrics: m,
		timeout: a.Config.SyncTimeout,
		logger:  a.Logger,
	}
}

// Handle syncs one source. It has the queue handler signature.
func (r *SyncRunner) Handle(ctx context.Context, sourceID string) error {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if r.metrics != nil {
		r.metrics.StartRun()
	}
	started := time.Now()
	report, err := r.syncUC.SyncSourceWait(runCtx, sourceID)
	if r.metrics != nil {
		r.metrics.FinishRun(r.service, sourceID, report, time.Since(started), err)
	}
	if err != nil {
		return fmt.Errorf("sync %s: %w", sourceID, err)
	}

	if r.metrics != nil {
		if state, err := r.syncUC.SourceStatus(ctx, sourceID); err == nil {
			r.metrics.SetVectors(r.service, sourceID, state.VectorCount())
		}
	}
	return nil
}

// RunAll syncs every configured source in order and keeps going past
// failures.
func (r *SyncRunner) RunAll(ctx context.Context) {
	for _, id := range r.syncUC.SourceIDs() {
		if ctx.Err() != nil {
			return
		}
		if err := r.Handle(ctx, id); err != nil {
			r.logger.Error("scheduled_sync_failed", "source_id", id, "error", err)
		}
	}
}

// StartScheduler runs RunAll on the cron schedule until ctx is done. An
// empty schedule disables periodic syncs.
func (r *SyncRunner) StartScheduler(ctx context.Context, schedule string) (*cron.Cron, error) {
	c := cron.New()
	if schedule == "" {
		return c, nil
	}
	if _, err := c.AddFunc(schedule, func() { r.RunAll(ctx) }); err != nil {
		return nil, fmt.Errorf("parse sync schedule %q: %w", schedule, err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}
