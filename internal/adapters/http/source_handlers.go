package httpadapter

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

type sourceStatusResponse struct {
	SourceID    string                       `json:"source_id"`
	Revision    string                       `json:"revision"`
	FileCount   int                          `json:"file_count"`
	VectorCount int                          `json:"vector_count"`
	UpdatedAt   *time.Time                   `json:"updated_at,omitempty"`
	Files       map[string]domain.FileRecord `json:"files,omitempty"`
}

func (rt *Router) sourceStatus(w http.ResponseWriter, r *http.Request) {
	sourceID := strings.TrimSpace(r.PathValue("id"))
	state, err := rt.sources.SourceStatus(r.Context(), sourceID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	resp := sourceStatusResponse{
		SourceID:    sourceID,
		Revision:    state.Revision,
		FileCount:   len(state.Files),
		VectorCount: state.VectorCount(),
	}
	if !state.UpdatedAt.IsZero() {
		updated := state.UpdatedAt
		resp.UpdatedAt = &updated
	}
	if withFiles, _ := strconv.ParseBool(r.URL.Query().Get("files")); withFiles {
		resp.Files = state.Files
	}
	writeJSON(w, http.StatusOK, resp)
}

// syncSource queues a sync for the source. With ?wait=true it runs the sync
// in the request and returns the report instead.
func (rt *Router) syncSource(w http.ResponseWriter, r *http.Request) {
	sourceID := strings.TrimSpace(r.PathValue("id"))
	if _, err := rt.sources.SourceStatus(r.Context(), sourceID); err != nil {
		rt.writeError(w, r, err)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		report, err := rt.sources.SyncSource(r.Context(), sourceID)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		if rt.metrics != nil {
			rt.metrics.RecordSyncTrigger(serviceName, "inline")
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	if err := rt.trigger.PublishSyncRequested(r.Context(), sourceID); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSyncTrigger(serviceName, "queued")
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"source_id": sourceID,
		"status":    "queued",
	})
}
