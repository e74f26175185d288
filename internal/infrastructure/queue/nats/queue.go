package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/resilience"
)

const workerQueueGroup = "sync-workers"

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("evidence-rag"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// syncRequest is the wire form of a sync trigger.
type syncRequest struct {
	SourceID    string    `json:"source_id"`
	RequestedAt time.Time `json:"requested_at"`
}

func encodeSyncRequest(sourceID string, at time.Time) ([]byte, error) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "nats publish", errors.New("source id is required"))
	}
	return json.Marshal(syncRequest{SourceID: sourceID, RequestedAt: at.UTC()})
}

// decodeSyncRequest also accepts a bare source id so triggers can be sent
// by hand with the nats CLI.
func decodeSyncRequest(data []byte) (string, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return "", errors.New("empty sync request")
	}
	if !strings.HasPrefix(raw, "{") {
		return raw, nil
	}
	var req syncRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return "", fmt.Errorf("decode sync request: %w", err)
	}
	if strings.TrimSpace(req.SourceID) == "" {
		return "", errors.New("sync request without source id")
	}
	return strings.TrimSpace(req.SourceID), nil
}

func (q *Queue) PublishSyncRequested(ctx context.Context, sourceID string) error {
	payload, err := encodeSyncRequest(sourceID, time.Now())
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return resilience.WrapKind("nats publish", err, classifyNATSError)
	}
	return nil
}

// SubscribeSyncRequested delivers each trigger to one member of the worker
// queue group and blocks until ctx is done, then drains the subscription.
func (q *Queue) SubscribeSyncRequested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		q.handleMessage(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) handleMessage(ctx context.Context, data []byte, handler func(context.Context, string) error) {
	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}
	sourceID, err := decodeSyncRequest(data)
	if err != nil {
		q.logger.Warn("sync_request_rejected", "error", err)
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, sourceID); err != nil {
		q.logger.Error("sync_request_failed", "source_id", sourceID, "error", err)
	}
}
