package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
	// Capacity marks rate limiting; retries wait CapacityBackoffMultiplier
	// times longer.
	Capacity bool
	// RetryAfter is the upstream's requested delay, zero when absent.
	RetryAfter time.Duration
}

type ErrorClassifier func(err error) ErrorClassification

// Executor runs upstream calls with retries and, when enabled, a circuit
// breaker per upstream. Operations are named "<upstream>.<call>", e.g.
// "ollama.embed"; every call of one upstream shares its breaker.
type Executor struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

type ExecutorOption func(*Executor)

func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewExecutor(cfg Config, opts ...ExecutorOption) *Executor {
	e := &Executor{
		cfg:      cfg.normalize(),
		logger:   slog.Default(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	if !e.cfg.BreakerEnabled {
		return e.retry(ctx, op, fn, classifier)
	}
	_, err := e.breakerFor(upstreamOf(op), classifier).Execute(func() (any, error) {
		return nil, e.retry(ctx, op, fn, classifier)
	})
	return err
}

func (e *Executor) retry(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	plan := newRetryPlan(e.cfg)
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		class := classifier(err)
		if !class.Retryable || attempt >= e.cfg.RetryMaxAttempts {
			return err
		}

		wait := plan.wait(class)
		e.logger.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"capacity", class.Capacity,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)
		if !sleepCtx(ctx, wait) {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// upstreamOf returns the breaker scope of an operation name.
func upstreamOf(operation string) string {
	if i := strings.IndexByte(operation, '.'); i > 0 {
		return operation[:i]
	}
	return operation
}

func (e *Executor) breakerFor(upstream string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[upstream]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        upstream,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "upstream", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[upstream] = cb
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{Retryable: false, RecordFailure: true}
}
