// Package mcp exposes the FAR audit tools over the Model Context Protocol.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/mcp/tools"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "far-audit"

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates an MCP server whose tool calls are logged by a ToolCallLogger.
func NewServer(version string, logger *zap.Logger) *Server {
	calls := NewToolCallLogger(logger)
	mcpServer := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithHooks(calls.Hooks()),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger,
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// RegisterTools registers the health tool and the audit tools.
func (s *Server) RegisterTools(health *tools.HealthToolDeps, audit *tools.AuditToolDeps) {
	tools.RegisterHealthTool(s.mcp, health)
	tools.RegisterAuditTools(s.mcp, audit)
	s.logger.Info("MCP tools registered")
}

// RegisterTool registers a single tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

// NewStreamableHTTPServer creates the stateless HTTP transport. The HTTP mux
// routes /mcp to it, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}
