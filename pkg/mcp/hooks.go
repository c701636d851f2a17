package mcp

import (
	"context"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// ToolCallLogger logs each tool call with its duration and outcome.
type ToolCallLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewToolCallLogger creates a ToolCallLogger.
func NewToolCallLogger(logger *zap.Logger) *ToolCallLogger {
	return &ToolCallLogger{logger: logger.Named("mcp_tools")}
}

// Hooks returns mcp-go Hooks that capture tool call events.
func (l *ToolCallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(l.beforeCallTool)
	hooks.AddAfterCallTool(l.afterCallTool)
	hooks.AddOnError(l.onError)
	return hooks
}

func (l *ToolCallLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	l.startTimes.Store(id, time.Now())
}

func (l *ToolCallLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	duration := l.elapsed(id)
	if result != nil && result.IsError {
		l.logger.Info("Tool call rejected",
			zap.String("tool", req.Params.Name),
			zap.Duration("duration", duration),
		)
		return
	}
	l.logger.Debug("Tool call completed",
		zap.String("tool", req.Params.Name),
		zap.Duration("duration", duration),
	)
}

func (l *ToolCallLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}
	l.logger.Error("Tool call failed",
		zap.String("tool", req.Params.Name),
		zap.Duration("duration", l.elapsed(id)),
		zap.Error(err),
	)
}

func (l *ToolCallLogger) elapsed(id any) time.Duration {
	if v, ok := l.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}
