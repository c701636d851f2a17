package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/far-audit/pkg/far"
	"github.com/ekaya-inc/far-audit/pkg/matching"
	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/services"
)

type mockMatchingService struct {
	candidates []matching.Candidate
	err        error
	gotID      uuid.UUID
}

func (m *mockMatchingService) Suggestions(_ context.Context, id uuid.UUID) ([]matching.Candidate, error) {
	m.gotID = id
	return m.candidates, m.err
}
func (m *mockMatchingService) AutoLink(context.Context, []*models.DocumentItem) ([]*models.Link, error) {
	return nil, nil
}
func (m *mockMatchingService) Evict(uuid.UUID) {}
func (m *mockMatchingService) Purge()          {}

type mockRequirementsService struct {
	reqs []*models.Requirement
	err  error
}

func (m *mockRequirementsService) List(context.Context) ([]*models.Requirement, error) {
	return m.reqs, m.err
}

var (
	_ services.MatchingService     = (*mockMatchingService)(nil)
	_ services.RequirementsService = (*mockRequirementsService)(nil)
)

func builtinRules(t *testing.T) *far.RuleIndex {
	t.Helper()
	rules, err := far.BuiltinRules()
	require.NoError(t, err)
	idx, err := far.NewRuleIndex(rules, nil)
	require.NoError(t, err)
	return idx
}

// toolResponse is the decoded JSON-RPC envelope of a tools/call.
type toolResponse struct {
	Result struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// callTool invokes a tool through the server's JSON-RPC entry point.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()
	params, err := json.Marshal(map[string]any{"name": name, "arguments": args})
	require.NoError(t, err)
	msg := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":%s}`, params)

	raw, err := json.Marshal(s.HandleMessage(context.Background(), []byte(msg)))
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

// decodeText decodes the single text content of a successful call into dst.
func decodeText(t *testing.T, resp toolResponse, dst any) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected protocol error")
	require.False(t, resp.Result.IsError, "unexpected tool error: %+v", resp.Result.Content)
	require.Len(t, resp.Result.Content, 1)
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), dst))
}

func newToolServer() *server.MCPServer {
	return server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
}
