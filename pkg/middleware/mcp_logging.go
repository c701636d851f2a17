package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxLoggedArgument bounds string arguments such as GL descriptions in logs.
const maxLoggedArgument = 120

var redactedArgumentKeys = []string{"password", "secret", "token", "api_key", "apikey", "credential"}

// MCPRequestLogger returns middleware that logs MCP JSON-RPC traffic: the
// method and tool on the way in, and the outcome on the way out. Protocol
// errors and tool results flagged isError are both reported as failures.
// A nil logger disables logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var call rpcCall
			if err := json.Unmarshal(body, &call); err != nil {
				logger.Debug("Unparseable MCP request", zap.Error(err))
			}
			logger.Debug("MCP request",
				zap.String("method", call.Method),
				zap.String("tool", call.Params.Name),
				zap.Any("arguments", summarizeArguments(call.Params.Arguments)),
			)

			capture := &bodyCapture{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(capture, r)
			duration := time.Since(start)

			var reply rpcReply
			if err := json.Unmarshal(lastPayload(capture.buf.Bytes()), &reply); err != nil {
				return
			}
			switch {
			case reply.Error != nil:
				logger.Warn("MCP response error",
					zap.String("tool", call.Params.Name),
					zap.Int("error_code", reply.Error.Code),
					zap.String("error_message", reply.Error.Message),
					zap.Duration("duration", duration),
				)
			case reply.Result.IsError:
				logger.Warn("MCP tool error",
					zap.String("tool", call.Params.Name),
					zap.Duration("duration", duration),
				)
			default:
				logger.Debug("MCP response success",
					zap.String("tool", call.Params.Name),
					zap.Duration("duration", duration),
				)
			}
		})
	}
}

type rpcCall struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type rpcReply struct {
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type bodyCapture struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (c *bodyCapture) Write(b []byte) (int, error) {
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *bodyCapture) Flush() {
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// lastPayload returns the final "data:" frame of an event stream, or the
// body unchanged when it is plain JSON.
func lastPayload(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] == '{' {
		return trimmed
	}
	var last []byte
	for _, line := range bytes.Split(trimmed, []byte("\n")) {
		if data, ok := bytes.CutPrefix(bytes.TrimSpace(line), []byte("data:")); ok {
			last = bytes.TrimSpace(data)
		}
	}
	return last
}

// summarizeArguments redacts credential-like keys and truncates long strings.
func summarizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if isRedacted(k) {
			out[k] = "[REDACTED]"
			continue
		}
		if s, ok := v.(string); ok && len(s) > maxLoggedArgument {
			v = s[:maxLoggedArgument] + "..."
		}
		out[k] = v
	}
	return out
}

func isRedacted(key string) bool {
	key = strings.ToLower(key)
	for _, word := range redactedArgumentKeys {
		if strings.Contains(key, word) {
			return true
		}
	}
	return false
}
