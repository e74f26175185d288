// Package inline is an in-process sync trigger queue for single-binary
// deployments without NATS.
package inline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

const defaultBuffer = 64

type Queue struct {
	requests chan string
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

func New(buffer int, logger *slog.Logger) *Queue {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		requests: make(chan string, buffer),
		logger:   logger,
		pending:  make(map[string]struct{}),
	}
}

// PublishSyncRequested enqueues a trigger. A source that is already waiting
// is not queued twice. A full buffer is reported as a capacity error.
func (q *Queue) PublishSyncRequested(_ context.Context, sourceID string) error {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "inline publish", errors.New("source id is required"))
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[sourceID]; ok {
		return nil
	}
	select {
	case q.requests <- sourceID:
		q.pending[sourceID] = struct{}{}
		return nil
	default:
		return domain.WrapError(domain.ErrCapacity, "inline publish", errors.New("sync queue is full"))
	}
}

// SubscribeSyncRequested runs handler for each trigger, one at a time, until
// ctx is done.
func (q *Queue) SubscribeSyncRequested(ctx context.Context, handler func(context.Context, string) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sourceID := <-q.requests:
			q.mu.Lock()
			delete(q.pending, sourceID)
			q.mu.Unlock()

			if err := handler(ctx, sourceID); err != nil {
				q.logger.Error("sync_request_failed", "source_id", sourceID, "error", err)
			}
		}
	}
}

// Pending returns the number of queued triggers.
func (q *Queue) Pending() int {
	return len(q.requests)
}
