package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "i/o timeout" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return true }

var _ net.Error = timeoutNetError{}

func TestClassifyHTTPError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		capacity  bool
		kind      error
	}{
		{"rate limited", &HTTPStatusError{StatusCode: http.StatusTooManyRequests}, true, true, domain.ErrCapacity},
		{"unavailable", &HTTPStatusError{StatusCode: http.StatusServiceUnavailable}, true, false, domain.ErrTransient},
		{"timeout status", &HTTPStatusError{StatusCode: http.StatusRequestTimeout}, true, false, domain.ErrTransient},
		{"bad request", &HTTPStatusError{StatusCode: http.StatusBadRequest}, false, false, domain.ErrPermanent},
		{"unauthorized", &HTTPStatusError{StatusCode: http.StatusUnauthorized}, false, false, domain.ErrPermanent},
		{"network", timeoutNetError{}, true, false, domain.ErrTransient},
		{"plain", errors.New("decode failed"), false, false, domain.ErrPermanent},
	}
	for _, tc := range cases {
		class := ClassifyHTTPError(tc.err)
		if class.Retryable != tc.retryable || class.Capacity != tc.capacity {
			t.Fatalf("%s: unexpected classification %+v", tc.name, class)
		}
		if wrapped := WrapKind("op", tc.err, nil); !domain.IsKind(wrapped, tc.kind) {
			t.Fatalf("%s: expected kind %v, got %v", tc.name, tc.kind, wrapped)
		}
	}
}

func TestWrapKindKeepsExistingKind(t *testing.T) {
	err := domain.WrapError(domain.ErrPermanent, "op", errors.New("x"))
	if got := WrapKind("outer", err, nil); got != err {
		t.Fatalf("expected error untouched, got %v", got)
	}
	if got := WrapKind("op", context.DeadlineExceeded, nil); !domain.IsKind(got, domain.ErrTransient) {
		t.Fatalf("expected deadline to be transient, got %v", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, tc := range cases {
		h := http.Header{}
		if tc.value != "" {
			h.Set("Retry-After", tc.value)
		}
		if got := ParseRetryAfter(h, now); got != tc.want {
			t.Fatalf("ParseRetryAfter(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestClassifyHTTPErrorCarriesRetryAfter(t *testing.T) {
	class := ClassifyHTTPError(&HTTPStatusError{Service: "ollama", StatusCode: http.StatusTooManyRequests, RetryAfter: 2 * time.Second})
	if !class.Capacity || class.RetryAfter != 2*time.Second {
		t.Fatalf("unexpected classification: %+v", class)
	}
}
