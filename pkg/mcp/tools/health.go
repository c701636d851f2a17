package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/far-audit/pkg/far"
	"github.com/ekaya-inc/far-audit/pkg/llm"
)

// CircuitReporter exposes the LLM circuit breaker state.
type CircuitReporter interface {
	State() llm.CircuitState
}

// HealthToolDeps contains dependencies for the health tool.
type HealthToolDeps struct {
	Version string
	Rules   *far.RuleIndex
	Circuit CircuitReporter
}

type healthResult struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Rules      int    `json:"rules"`
	LLMCircuit string `json:"llm_circuit,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
func RegisterHealthTool(s *server.MCPServer, deps *HealthToolDeps) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health, version, rule index size and LLM circuit state"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: deps.Version, Rules: deps.Rules.Len()}
		if result.Rules == 0 {
			result.Status = "degraded"
		}
		if deps.Circuit != nil {
			state := deps.Circuit.State()
			result.LLMCircuit = state.String()
			if state == llm.CircuitOpen {
				result.Status = "degraded"
			}
		}
		return jsonResult("health", result)
	})
}
