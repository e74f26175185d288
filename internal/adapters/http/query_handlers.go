package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

const maxQueryBodyBytes = 1 << 20

type queryRequest struct {
	Question string            `json:"question"`
	History  []domain.ChatTurn `json:"history"`
	TopK     int               `json:"top_k"`
	SourceID string            `json:"source_id"`
}

func decodeQueryRequest(r *http.Request) (domain.QueryRequest, error) {
	var req queryRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxQueryBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return domain.QueryRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode query", errors.New("invalid json"))
	}
	if strings.TrimSpace(req.Question) == "" {
		return domain.QueryRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode query", errors.New("question is required"))
	}
	if req.TopK < 0 {
		return domain.QueryRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode query", errors.New("top_k must not be negative"))
	}
	return domain.QueryRequest{
		Question: req.Question,
		History:  req.History,
		TopK:     req.TopK,
		Filter:   domain.SearchFilter{SourceID: strings.TrimSpace(req.SourceID)},
	}, nil
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQueryRequest(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	start := time.Now()
	answer, err := rt.queries.Answer(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAnswer(serviceName, "query", answer, time.Since(start))
	}
	writeJSON(w, http.StatusOK, answer)
}

// queryStream answers over server-sent events: one "token" event per text
// chunk, then a final "answer" event with the full answer metadata, then
// [DONE]. Errors after the stream started arrive as an "error" event.
func (rt *Router) queryStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		rt.writeError(w, r, fmt.Errorf("streaming is not supported by response writer"))
		return
	}
	req, err := decodeQueryRequest(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	start := time.Now()
	stream, err := rt.queries.AnswerStream(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sse := &sseWriter{w: w, flusher: flusher}
	stopHeartbeat := sse.heartbeat(rt.cfg.APIStreamHeartbeat)
	defer stopHeartbeat()

	for stream.Next() {
		if err := sse.event("token", map[string]string{"text": stream.Text()}); err != nil {
			return
		}
	}
	if err := stream.Err(); err != nil {
		rt.logger.Warn("stream_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		_ = sse.event("error", map[string]string{"error": err.Error()})
		return
	}

	answer := stream.Answer()
	if rt.metrics != nil {
		rt.metrics.RecordAnswer(serviceName, "query_stream", answer, time.Since(start))
	}
	if err := sse.event("answer", answer); err != nil {
		return
	}
	_ = sse.raw("data: [DONE]\n\n")
}

// sseWriter serializes event writes with the heartbeat goroutine.
type sseWriter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

func (s *sseWriter) event(name string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeSSE(s.w, name, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) raw(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, line); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// heartbeat writes an SSE comment every interval so proxies keep the
// connection open while the model is slow. The returned func stops it and
// waits for the goroutine to exit.
func (s *sseWriter) heartbeat(interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := s.raw(": keep-alive\n\n"); err != nil {
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

func writeSSE(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
