package httpadapter

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-Id"

type requestIDContextKey struct{}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// trace tags each request with an id (the caller's X-Request-Id when given)
// and writes one http_request log line when it completes. Probe endpoints
// log at debug.
func (rt *Router) trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDContextKey{}, id))

		start := time.Now()
		rec := &responseTrace{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		switch {
		case rec.status >= 500:
			level = slog.LevelError
		case rec.status >= 400:
			level = slog.LevelWarn
		case !strings.HasPrefix(r.URL.Path, "/v1/"):
			level = slog.LevelDebug
		}
		rt.logger.Log(r.Context(), level, "http_request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"streamed", rec.flushed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// responseTrace records what the handler wrote. It forwards Flush so SSE
// answers keep streaming through it.
type responseTrace struct {
	http.ResponseWriter
	status  int
	bytes   int
	flushed bool
}

func (w *responseTrace) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseTrace) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *responseTrace) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		w.flushed = true
		f.Flush()
	}
}

func (w *responseTrace) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// rateLimitMiddleware applies one token bucket to all requests passing
// through it.
func rateLimitMiddleware(next http.Handler, rps float64, burst int) http.Handler {
	if burst <= 0 {
		burst = int(math.Ceil(rps))
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	retryAfter := strconv.Itoa(int(math.Max(1, math.Ceil(1/rps))))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", retryAfter)
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":      "rate limit exceeded",
				"request_id": requestIDFromContext(r.Context()),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// backpressureMiddleware admits at most maxInFlight concurrent requests and
// lets a request queue for up to wait before rejecting it with 503.
func backpressureMiddleware(next http.Handler, maxInFlight int, wait time.Duration) http.Handler {
	slots := make(chan struct{}, maxInFlight)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case slots <- struct{}{}:
		case <-timer.C:
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error":      "server is overloaded, retry later",
				"request_id": requestIDFromContext(r.Context()),
			})
			return
		case <-r.Context().Done():
			return
		}
		defer func() { <-slots }()
		next.ServeHTTP(w, r)
	})
}

// bearerAuthMiddleware is a no-op when no key is configured.
func bearerAuthMiddleware(next http.Handler, apiKey string) http.Handler {
	if apiKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAuthorizedBearerHeader(r.Header.Get("Authorization"), apiKey) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":      "unauthorized",
				"request_id": requestIDFromContext(r.Context()),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isAuthorizedBearerHeader(headerValue, expectedToken string) bool {
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" || expectedToken == "" {
		return false
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return token == expectedToken
}
