package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

// jsonResult marshals v into a text tool result.
func jsonResult(name string, v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s result: %w", name, err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// getOptionalFloat extracts an optional number argument from the request.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return 0, false
	}
	val, ok := args[key].(float64)
	return val, ok
}

// getOptionalBool extracts an optional boolean argument with a default.
func getOptionalBool(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if val, ok := args[key].(bool); ok {
			return val
		}
	}
	return defaultVal
}
