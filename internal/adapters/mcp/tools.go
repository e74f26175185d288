package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

func askTool() mcp.Tool {
	return mcp.NewTool("ask",
		mcp.WithDescription("Answer a question from the synchronized sources. The answer cites evidence as [n] markers."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Natural language question")),
		mcp.WithNumber("top_k", mcp.Description("Number of evidence chunks to retrieve")),
		mcp.WithString("source_id", mcp.Description("Restrict retrieval to one source")),
	)
}

func syncSourceTool() mcp.Tool {
	return mcp.NewTool("sync_source",
		mcp.WithDescription("Synchronize one source into the vector index and report what changed"),
		mcp.WithString("source_id", mcp.Required(), mcp.Description("Configured source id")),
	)
}

func sourceStatusTool() mcp.Tool {
	return mcp.NewTool("source_status",
		mcp.WithDescription("Show the last synchronized revision and counts of a source"),
		mcp.WithString("source_id", mcp.Required(), mcp.Description("Configured source id")),
	)
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question := strings.TrimSpace(request.GetString("question", ""))
	if question == "" {
		return mcp.NewToolResultError("question is required"), nil
	}
	topK := request.GetInt("top_k", 0)
	if topK < 0 {
		return mcp.NewToolResultError("top_k must not be negative"), nil
	}

	answer, err := s.queries.Answer(ctx, domain.QueryRequest{
		Question: question,
		TopK:     topK,
		Filter:   domain.SearchFilter{SourceID: strings.TrimSpace(request.GetString("source_id", ""))},
	})
	if err != nil {
		s.logger.Warn("mcp_ask_failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatAnswer(answer)), nil
}

func (s *Server) handleSyncSource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceID := strings.TrimSpace(request.GetString("source_id", ""))
	if sourceID == "" {
		return mcp.NewToolResultError("source_id is required"), nil
	}
	report, err := s.sources.SyncSource(ctx, sourceID)
	if err != nil {
		s.logger.Warn("mcp_sync_failed", "source_id", sourceID, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatJSON(report)), nil
}

func (s *Server) handleSourceStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceID := strings.TrimSpace(request.GetString("source_id", ""))
	if sourceID == "" {
		return mcp.NewToolResultError("source_id is required"), nil
	}
	state, err := s.sources.SourceStatus(ctx, sourceID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]any{
		"source_id":    sourceID,
		"revision":     state.Revision,
		"file_count":   len(state.Files),
		"vector_count": state.VectorCount(),
		"updated_at":   state.UpdatedAt,
	})), nil
}

// formatAnswer renders the answer text followed by a numbered source list
// matching the [n] markers.
func formatAnswer(answer *domain.Answer) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(answer.Text))
	if answer.Fallback {
		fmt.Fprintf(&b, "\n\n(fallback: %s)", answer.FallbackReason)
	}
	if len(answer.Sources) > 0 {
		b.WriteString("\n\nSources:")
		for i, src := range answer.Sources {
			fmt.Fprintf(&b, "\n[%d] %s", i+1, src.Metadata.Path)
		}
	}
	return b.String()
}

func formatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
