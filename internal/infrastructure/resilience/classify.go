package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

// HTTPStatusError is a non-2xx reply from an upstream HTTP service.
type HTTPStatusError struct {
	Service    string
	Operation  string
	StatusCode int
	Status     string
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "http status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("%s %s status: %s", e.Service, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Service, e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// ClassifyHTTPError maps transport failures to retry behaviour: 429 is a
// capacity error, 408 and 5xx gateway errors and network errors are
// transient, everything else fails fast.
func ClassifyHTTPError(err error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if IsCircuitOpen(err) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return ErrorClassification{Retryable: true, RecordFailure: true, Capacity: true, RetryAfter: statusErr.RetryAfter}
		case isRetryableHTTPStatus(statusErr.StatusCode):
			return ErrorClassification{Retryable: true, RecordFailure: true, RetryAfter: statusErr.RetryAfter}
		default:
			return ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return ErrorClassification{Retryable: false, RecordFailure: true}
}

// WrapKind tags err with the domain kind matching its classification unless
// it already carries one.
func WrapKind(operation string, err error, classify ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTransient) || domain.IsKind(err, domain.ErrCapacity) || domain.IsKind(err, domain.ErrPermanent) {
		return err
	}
	if classify == nil {
		classify = ClassifyHTTPError
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrTransient, operation, err)
	}
	class := classify(err)
	switch {
	case class.Capacity:
		return domain.WrapError(domain.ErrCapacity, operation, err)
	case class.Retryable || IsCircuitOpen(err):
		return domain.WrapError(domain.ErrTransient, operation, err)
	default:
		return domain.WrapError(domain.ErrPermanent, operation, err)
	}
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. Missing or unparsable values yield zero.
func ParseRetryAfter(h http.Header, now time.Time) time.Duration {
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
