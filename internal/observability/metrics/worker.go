package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

// SyncMetrics covers synchronization runs of the worker and of any process
// that syncs in-line.
type SyncMetrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runsInFlight  prometheus.Gauge
	itemsTotal    *prometheus.CounterVec
	itemErrors    *prometheus.CounterVec
	vectorsStored *prometheus.GaugeVec
}

func NewSyncMetrics(service string) *SyncMetrics {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evrag",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total sync runs by source and status.",
		},
		[]string{"service", "source", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evrag",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Sync run duration in seconds by source.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "source"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "evrag",
			Subsystem: "sync",
			Name:      "runs_in_flight",
			Help:      "Number of sync runs in progress.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	itemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evrag",
			Subsystem: "sync",
			Name:      "items_total",
			Help:      "Items seen by sync runs, by change kind.",
		},
		[]string{"service", "source", "change"},
	)
	itemErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evrag",
			Subsystem: "sync",
			Name:      "item_errors_total",
			Help:      "Per-item sync failures by operation.",
		},
		[]string{"service", "source", "operation"},
	)
	vectorsStored := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "evrag",
			Subsystem: "sync",
			Name:      "vectors",
			Help:      "Vector entries tracked for a source after its last run.",
		},
		[]string{"service", "source"},
	)

	registry.MustRegister(runsTotal, runDuration, runsInFlight, itemsTotal, itemErrors, vectorsStored)

	return &SyncMetrics{
		registry:      registry,
		runsTotal:     runsTotal,
		runDuration:   runDuration,
		runsInFlight:  runsInFlight,
		itemsTotal:    itemsTotal,
		itemErrors:    itemErrors,
		vectorsStored: vectorsStored,
	}
}

func (m *SyncMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry lets a process expose sync metrics next to its own.
func (m *SyncMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *SyncMetrics) StartRun() {
	m.runsInFlight.Inc()
}

func (m *SyncMetrics) FinishRun(service, sourceID string, report *domain.SyncReport, duration time.Duration, err error) {
	m.runsInFlight.Dec()

	status := "success"
	switch {
	case domain.IsKind(err, domain.ErrSyncInProgress):
		status = "skipped"
	case err != nil:
		status = "error"
	case report != nil && (report.Degraded || len(report.Stats.Errors) > 0):
		status = "partial"
	}
	m.runsTotal.WithLabelValues(service, sourceID, status).Inc()
	m.runDuration.WithLabelValues(service, sourceID).Observe(duration.Seconds())

	if report == nil {
		return
	}
	stats := report.Stats
	m.itemsTotal.WithLabelValues(service, sourceID, "added").Add(float64(stats.Added))
	m.itemsTotal.WithLabelValues(service, sourceID, "modified").Add(float64(stats.Modified))
	m.itemsTotal.WithLabelValues(service, sourceID, "deleted").Add(float64(stats.Deleted))
	m.itemsTotal.WithLabelValues(service, sourceID, "unchanged").Add(float64(stats.Unchanged))
	for _, e := range stats.Errors {
		m.itemErrors.WithLabelValues(service, sourceID, e.Operation).Inc()
	}
}

func (m *SyncMetrics) SetVectors(service, sourceID string, count int) {
	m.vectorsStored.WithLabelValues(service, sourceID).Set(float64(count))
}
