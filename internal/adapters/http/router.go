package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kirillkom/evidence-rag/internal/config"
	"github.com/kirillkom/evidence-rag/internal/core/ports"
	"github.com/kirillkom/evidence-rag/internal/observability/metrics"
)

const serviceName = "api"

// SyncTrigger hands a sync request to whoever runs synchronization.
type SyncTrigger interface {
	PublishSyncRequested(ctx context.Context, sourceID string) error
}

type Router struct {
	cfg     config.Config
	queries ports.QueryService
	sources ports.SourceSynchronizer
	trigger SyncTrigger
	metrics *metrics.HTTPServerMetrics
	logger  *slog.Logger
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) { rt.metrics = m }
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(
	cfg config.Config,
	queries ports.QueryService,
	sources ports.SourceSynchronizer,
	trigger SyncTrigger,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		cfg:     cfg,
		queries: queries,
		sources: sources,
		trigger: trigger,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/query", rt.query)
	api.HandleFunc("POST /v1/query/stream", rt.queryStream)
	api.HandleFunc("POST /v1/sources/{id}/sync", rt.syncSource)
	api.HandleFunc("GET /v1/sources/{id}", rt.sourceStatus)

	var guarded http.Handler = api
	guarded = bearerAuthMiddleware(guarded, rt.cfg.APIKey)
	if rt.cfg.APIMaxInFlight > 0 {
		guarded = backpressureMiddleware(guarded, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		guarded = rateLimitMiddleware(guarded, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return rt.trace(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{
		"error":      err.Error(),
		"request_id": requestIDFromContext(r.Context()),
	})
}
