package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/evidence-rag/internal/infrastructure/resilience"
)

// connectionErrors are outages the client recovers from by reconnecting.
var connectionErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
}

// classifyNATSError decides whether a sync trigger publish is retried. A slow
// consumer means workers are saturated and is reported as capacity; an
// oversized payload can never succeed.
func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case errors.Is(err, nats.ErrSlowConsumer):
		return resilience.ErrorClassification{RecordFailure: true, Capacity: true}
	case errors.Is(err, nats.ErrMaxPayload):
		return resilience.ErrorClassification{RecordFailure: false}
	case resilience.IsCircuitOpen(err), isConnectionError(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func isConnectionError(err error) bool {
	for _, target := range connectionErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
