package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queriesTotal      *prometheus.CounterVec
	fallbacksTotal    *prometheus.CounterVec
	strategyFailures  *prometheus.CounterVec
	evidenceCount     *prometheus.HistogramVec
	queryDuration     *prometheus.HistogramVec
	syncTriggersTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evrag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "evrag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evrag",
			Subsystem: "query",
			Name:      "answers_total",
			Help:      "Total answered queries by routing mode and outcome.",
		},
		[]string{"service", "endpoint", "mode", "outcome"},
	)
	fallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evrag",
			Subsystem: "query",
			Name:      "fallbacks_total",
			Help:      "Total answers produced without evidence, by reason.",
		},
		[]string{"service", "endpoint", "reason"},
	)
	strategyFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evrag",
			Subsystem: "query",
			Name:      "strategy_failures_total",
			Help:      "Total retrieval strategy failures tolerated during a query.",
		},
		[]string{"service", "strategy"},
	)
	evidenceCount := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evrag",
			Subsystem: "query",
			Name:      "evidence_nodes",
			Help:      "Distribution of evidence nodes passed to generation.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "endpoint"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evrag",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	syncTriggersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evrag",
			Subsystem: "sync",
			Name:      "triggers_total",
			Help:      "Total sync triggers accepted by the API, by delivery.",
		},
		[]string{"service", "delivery"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queriesTotal,
		fallbacksTotal,
		strategyFailures,
		evidenceCount,
		queryDuration,
		syncTriggersTotal,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		queriesTotal:      queriesTotal,
		fallbacksTotal:    fallbacksTotal,
		strategyFailures:  strategyFailures,
		evidenceCount:     evidenceCount,
		queryDuration:     queryDuration,
		syncTriggersTotal: syncTriggersTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/sources/") && strings.HasSuffix(path, "/sync"):
		return "/v1/sources/{source_id}/sync"
	case strings.HasPrefix(path, "/v1/sources/"):
		return "/v1/sources/{source_id}"
	default:
		return path
	}
}

// RecordAnswer records one delivered answer.
func (m *HTTPServerMetrics) RecordAnswer(service, endpoint string, answer *domain.Answer, duration time.Duration) {
	if answer == nil {
		return
	}
	mode := string(answer.Routing.Mode)
	if mode == "" {
		mode = "unknown"
	}
	outcome := "grounded"
	if answer.Fallback {
		outcome = "fallback"
		m.fallbacksTotal.WithLabelValues(service, endpoint, string(answer.FallbackReason)).Inc()
	}
	m.queriesTotal.WithLabelValues(service, endpoint, mode, outcome).Inc()
	for _, f := range answer.Failures {
		m.strategyFailures.WithLabelValues(service, f.Strategy).Inc()
	}
	m.evidenceCount.WithLabelValues(service, endpoint).Observe(float64(len(answer.Sources)))
	m.queryDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordSyncTrigger(service, delivery string) {
	if delivery == "" {
		delivery = "unknown"
	}
	m.syncTriggersTotal.WithLabelValues(service, delivery).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
