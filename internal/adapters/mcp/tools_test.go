package mcpadapter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
	"github.com/kirillkom/evidence-rag/internal/core/ports"
)

type queryServiceFake struct {
	answer *domain.Answer
	err    error
	last   domain.QueryRequest
}

func (f *queryServiceFake) Answer(_ context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	f.last = req
	return f.answer, f.err
}

func (f *queryServiceFake) AnswerStream(context.Context, domain.QueryRequest) (ports.AnswerStream, error) {
	return nil, errors.New("not used")
}

type sourcesFake struct {
	report *domain.SyncReport
	err    error
	synced []string
}

func (f *sourcesFake) SyncSource(_ context.Context, sourceID string) (*domain.SyncReport, error) {
	f.synced = append(f.synced, sourceID)
	return f.report, f.err
}

func (f *sourcesFake) SourceStatus(_ context.Context, sourceID string) (*domain.RepositorySyncState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RepositorySyncState{SourceID: sourceID, Revision: "abc", Files: map[string]domain.FileRecord{}}, nil
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return text.Text
}

func TestAskFormatsAnswerWithSources(t *testing.T) {
	queries := &queryServiceFake{answer: &domain.Answer{
		Text: "Cats are mammals [1].",
		Sources: []domain.FusedNode{
			{EvidenceNode: domain.EvidenceNode{ID: "c1", Metadata: domain.NodeMetadata{Path: "animals/cats.md"}}},
		},
	}}
	s := NewServer(queries, &sourcesFake{}, nil)

	res, err := s.handleAsk(context.Background(), call("ask", map[string]any{
		"question":  "what is a cat?",
		"top_k":     4,
		"source_id": "docs",
	}))
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	text := resultText(t, res)
	if !strings.Contains(text, "Cats are mammals [1].") || !strings.Contains(text, "[1] animals/cats.md") {
		t.Fatalf("unexpected text:\n%s", text)
	}
	if queries.last.TopK != 4 || queries.last.Filter.SourceID != "docs" {
		t.Fatalf("unexpected request: %+v", queries.last)
	}
}

func TestAskMarksFallbackAnswers(t *testing.T) {
	queries := &queryServiceFake{answer: &domain.Answer{
		Text:           "I could not find this in the sources.",
		Fallback:       true,
		FallbackReason: domain.FallbackNoEvidence,
	}}
	s := NewServer(queries, &sourcesFake{}, nil)

	res, _ := s.handleAsk(context.Background(), call("ask", map[string]any{"question": "q"}))
	if text := resultText(t, res); !strings.Contains(text, "(fallback: "+string(domain.FallbackNoEvidence)+")") {
		t.Fatalf("expected fallback marker, got:\n%s", text)
	}
}

func TestAskRequiresQuestion(t *testing.T) {
	s := NewServer(&queryServiceFake{}, &sourcesFake{}, nil)
	res, err := s.handleAsk(context.Background(), call("ask", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected protocol error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for missing question")
	}
}

func TestAskSurfacesServiceErrorsAsToolErrors(t *testing.T) {
	queries := &queryServiceFake{err: domain.WrapError(domain.ErrTransient, "generate", errors.New("ollama down"))}
	s := NewServer(queries, &sourcesFake{}, nil)
	res, err := s.handleAsk(context.Background(), call("ask", map[string]any{"question": "q"}))
	if err != nil {
		t.Fatalf("unexpected protocol error: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "ollama down") {
		t.Fatalf("expected tool error with cause")
	}
}

func TestSyncSourceReturnsReport(t *testing.T) {
	sources := &sourcesFake{report: &domain.SyncReport{SourceID: "docs", Revision: "abc"}}
	s := NewServer(&queryServiceFake{}, sources, nil)

	res, err := s.handleSyncSource(context.Background(), call("sync_source", map[string]any{"source_id": "docs"}))
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(sources.synced) != 1 || sources.synced[0] != "docs" {
		t.Fatalf("unexpected synced: %v", sources.synced)
	}
	if !strings.Contains(resultText(t, res), `"revision": "abc"`) {
		t.Fatalf("unexpected report:\n%s", resultText(t, res))
	}
}

func TestSourceStatusReportsNotFound(t *testing.T) {
	sources := &sourcesFake{err: domain.WrapError(domain.ErrNotFound, "source status", errors.New("nope"))}
	s := NewServer(&queryServiceFake{}, sources, nil)
	res, _ := s.handleSourceStatus(context.Background(), call("source_status", map[string]any{"source_id": "nope"}))
	if !res.IsError {
		t.Fatalf("expected tool error")
	}
}
