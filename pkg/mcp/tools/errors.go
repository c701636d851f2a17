package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/far-audit/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Returning it as a tool result keeps the error visible to the agent
// instead of being swallowed by the MCP client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the agent can act on (bad parameters, unknown ids).
// Store and LLM failures are returned as Go errors instead.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	jsonBytes, _ := json.Marshal(ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	})
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// AsErrorResult converts an actionable service error into a tool result.
// It returns nil for errors that should surface as protocol errors.
func AsErrorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		return NewErrorResult("invalid_input", err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("not_found", err.Error())
	default:
		return nil
	}
}
