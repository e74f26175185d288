// Package mcpadapter exposes question answering and source sync as MCP
// tools over stdio.
package mcpadapter

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/evidence-rag/internal/core/ports"
)

const (
	ServerName    = "evidence-rag"
	ServerVersion = "0.1.0"
)

type Server struct {
	mcp     *server.MCPServer
	queries ports.QueryService
	sources ports.SourceSynchronizer
	logger  *slog.Logger
}

func NewServer(queries ports.QueryService, sources ports.SourceSynchronizer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		queries: queries,
		sources: sources,
		logger:  logger,
	}
	s.mcp.AddTool(askTool(), s.handleAsk)
	s.mcp.AddTool(syncSourceTool(), s.handleSyncSource)
	s.mcp.AddTool(sourceStatusTool(), s.handleSourceStatus)
	return s
}

// Serve blocks on stdio until the client disconnects.
func (s *Server) Serve(_ context.Context) error {
	return server.ServeStdio(s.mcp)
}
