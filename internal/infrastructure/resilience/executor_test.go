package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	}
}

func retryable(target error) ErrorClassifier {
	return func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, target), RecordFailure: true}
	}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	exec := NewExecutor(fastConfig())

	attempts := 0
	errUnavailable := errors.New("embedding model loading")
	err := exec.Execute(context.Background(), "ollama.embed", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errUnavailable
		}
		return nil
	}, retryable(errUnavailable))
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteStopsAtMaxAttempts(t *testing.T) {
	exec := NewExecutor(fastConfig())

	attempts := 0
	errUnavailable := errors.New("qdrant unavailable")
	err := exec.Execute(context.Background(), "qdrant.upsert", func(context.Context) error {
		attempts++
		return errUnavailable
	}, retryable(errUnavailable))
	if !errors.Is(err, errUnavailable) {
		t.Fatalf("expected last error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastConfig())

	attempts := 0
	errBadRequest := errors.New("model not found")
	err := exec.Execute(context.Background(), "ollama.generate", func(context.Context) error {
		attempts++
		return errBadRequest
	}, func(error) ErrorClassification {
		return ErrorClassification{}
	})
	if !errors.Is(err, errBadRequest) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteReturnsContextErrorBeforeFirstAttempt(t *testing.T) {
	exec := NewExecutor(fastConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.Execute(ctx, "nats.publish", func(context.Context) error {
		t.Fatalf("operation must not run on a cancelled context")
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBreakerIsSharedPerUpstream(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	cfg.BreakerHalfOpenMaxCalls = 1
	exec := NewExecutor(cfg)

	errDown := errors.New("connection refused")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "ollama.embed", func(context.Context) error {
			return errDown
		}, nil)
		if !errors.Is(err, errDown) {
			t.Fatalf("iteration %d: expected upstream error, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "ollama.generate", func(context.Context) error {
		t.Fatalf("breaker for ollama should be open")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}

	called := false
	err = exec.Execute(context.Background(), "qdrant.query", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if err != nil || !called {
		t.Fatalf("other upstreams must not be affected: err=%v called=%v", err, called)
	}
}

func TestExecuteCapacityErrorsWaitLonger(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:          2,
		RetryInitialBackoff:       10 * time.Millisecond,
		RetryMaxBackoff:           10 * time.Millisecond,
		RetryMultiplier:           2,
		CapacityBackoffMultiplier: 5,
	})

	errLimited := errors.New("rate limited")
	var times []time.Time
	err := exec.Execute(context.Background(), "ollama.embed", func(context.Context) error {
		times = append(times, time.Now())
		return errLimited
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true, Capacity: true}
	})
	if !errors.Is(err, errLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if len(times) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(times))
	}
	if gap := times[1].Sub(times[0]); gap < 45*time.Millisecond {
		t.Fatalf("expected stretched backoff, waited %v", gap)
	}
}

func TestRetryPlanGrowsAndHonoursRetryAfter(t *testing.T) {
	cfg := Config{
		RetryInitialBackoff:       10 * time.Millisecond,
		RetryMaxBackoff:           30 * time.Millisecond,
		RetryMultiplier:           2,
		CapacityBackoffMultiplier: 3,
		MaxRetryAfter:             time.Second,
	}.normalize()
	plan := newRetryPlan(cfg)

	if got := plan.wait(ErrorClassification{Retryable: true}); got != 10*time.Millisecond {
		t.Fatalf("first wait = %v", got)
	}
	if got := plan.wait(ErrorClassification{Retryable: true}); got != 20*time.Millisecond {
		t.Fatalf("second wait = %v", got)
	}
	if got := plan.wait(ErrorClassification{Retryable: true}); got != 30*time.Millisecond {
		t.Fatalf("third wait should hit the cap, got %v", got)
	}
	if got := plan.wait(ErrorClassification{Retryable: true, Capacity: true}); got != 90*time.Millisecond {
		t.Fatalf("capacity wait = %v", got)
	}
	if got := plan.wait(ErrorClassification{Retryable: true, RetryAfter: 500 * time.Millisecond}); got != 500*time.Millisecond {
		t.Fatalf("retry-after wait = %v", got)
	}
	if got := plan.wait(ErrorClassification{Retryable: true, RetryAfter: time.Hour}); got != time.Second {
		t.Fatalf("retry-after must be capped, got %v", got)
	}
}

func TestDefaultConfigDisablesBreaker(t *testing.T) {
	if DefaultConfig().BreakerEnabled {
		t.Fatalf("expected breaker disabled by default")
	}
}

func TestUpstreamOf(t *testing.T) {
	cases := map[string]string{
		"ollama.embed":      "ollama",
		"qdrant.scroll.all": "qdrant",
		"nats":              "nats",
	}
	for op, want := range cases {
		if got := upstreamOf(op); got != want {
			t.Fatalf("upstreamOf(%q) = %q, want %q", op, got, want)
		}
	}
}
