package reevaluation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/far-audit/pkg/apperrors"
	"github.com/ekaya-inc/far-audit/pkg/approvals"
	"github.com/ekaya-inc/far-audit/pkg/audit"
	"github.com/ekaya-inc/far-audit/pkg/far"
	"github.com/ekaya-inc/far-audit/pkg/llm"
	"github.com/ekaya-inc/far-audit/pkg/models"
)

var fixedNow = time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC)

type harness struct {
	evaluator *Evaluator
	client    *llm.MockChatClient
	events    *observer.ObservedLogs
}

func newHarness(t *testing.T, client *llm.MockChatClient) *harness {
	t.Helper()
	rules, err := far.BuiltinRules()
	require.NoError(t, err)
	idx, err := far.NewRuleIndex(rules, nil)
	require.NoError(t, err)

	core, recorded := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	e := NewEvaluator(client, approvals.NewDetector(logger), idx, audit.NewComplianceEventLogger(logger), DefaultOptions(), logger)
	e.now = func() time.Time { return fixedNow }
	return &harness{evaluator: e, client: client, events: recorded}
}

func (h *harness) complianceEvents() []observer.LoggedEntry {
	return h.events.FilterLoggerName("compliance_audit").All()
}

func dinnerRow() (*models.GLEntry, *models.AuditResult) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	gl := &models.GLEntry{
		ID:          uuid.New(),
		Description: "Dinner and wine with client",
		Vendor:      "Acme Corp",
		Amount:      decimal.RequireFromString("120.00"),
		Date:        &date,
	}
	current := &models.AuditResult{
		GLEntryID:  gl.ID,
		Status:     models.StatusRed,
		FarIssue:   "Alcoholic Beverages (31.205-51)",
		FarSection: "31.205-51",
		State:      models.StateDetermined,
	}
	return gl, current
}

func approvedDoc() []models.LinkedDocument {
	doc := &models.Document{
		ID:          uuid.New(),
		Filename:    "scan.pdf",
		TextContent: `OCR extracted data: {"body":"Approved by J. Doe"}`,
	}
	amount := decimal.RequireFromString("120.00")
	item := &models.DocumentItem{ID: uuid.New(), DocumentID: doc.ID, Kind: models.ItemKindReceipt, Vendor: "acme", Amount: &amount}
	return []models.LinkedDocument{{Document: doc, Item: item}}
}

func plainDoc() []models.LinkedDocument {
	doc := &models.Document{ID: uuid.New(), Filename: "receipt.pdf", TextContent: "ACME CORP TOTAL 120.00"}
	item := &models.DocumentItem{ID: uuid.New(), DocumentID: doc.ID, Kind: models.ItemKindReceipt}
	return []models.LinkedDocument{{Document: doc, Item: item}}
}

func TestReEvaluate_ApprovalTriggersLLMAndOverrides(t *testing.T) {
	h := newHarness(t, llm.NewMockChatClientWithResponse(`{"status":"GREEN","reasoning":"approved"}`))
	gl, current := dinnerRow()

	result, err := h.evaluator.ReEvaluate(context.Background(), gl, approvedDoc(), current)
	require.NoError(t, err)

	assert.Equal(t, models.StatusGreen, result.Status)
	assert.True(t, result.ApprovalBasedReEvaluation)
	assert.Equal(t, models.StateReEvaluated, result.State)
	assert.Equal(t, "approved", result.GPTReasoning)
	assert.Contains(t, result.ReEvaluationReason, "scan.pdf")
	assert.Empty(t, result.ReEvaluationError)
	// farIssue and farSection fall back to the deterministic values.
	assert.Equal(t, "Alcoholic Beverages (31.205-51)", result.FarIssue)
	assert.Equal(t, "31.205-51", result.FarSection)
	assert.Equal(t, fixedNow, result.AuditedAt)

	// current is untouched.
	assert.Equal(t, models.StatusRed, current.Status)

	assert.Equal(t, 1, h.client.Calls())
	assert.True(t, h.client.LastOpts.JSONMode)
	assert.InDelta(t, 0.1, h.client.LastOpts.Temperature, 1e-9)
	assert.Equal(t, 800, h.client.LastOpts.MaxTokens)
	require.Len(t, h.client.LastMsgs, 2)
	assert.Equal(t, llm.RoleSystem, h.client.LastMsgs[0].Role)
	assert.Contains(t, h.client.LastMsgs[1].Content, "Approved by J. Doe")

	events := h.complianceEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "GREEN", events[0].ContextMap()["to"])
}

func TestReEvaluate_NoApprovalLeavesResultUnchanged(t *testing.T) {
	h := newHarness(t, llm.NewMockChatClientWithResponse(`{"status":"GREEN"}`))
	gl, current := dinnerRow()

	for _, linked := range [][]models.LinkedDocument{nil, plainDoc()} {
		result, err := h.evaluator.ReEvaluate(context.Background(), gl, linked, current)
		require.NoError(t, err)
		assert.Equal(t, current, result)
		assert.NotSame(t, current, result)
	}
	assert.Equal(t, 0, h.client.Calls())
}

func TestReEvaluate_TransportFailureKeepsVerdict(t *testing.T) {
	client := llm.NewMockChatClient()
	client.ChatFunc = func(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (*llm.ChatResult, error) {
		return nil, errors.New("status code: 503, service unavailable")
	}
	h := newHarness(t, client)
	gl, current := dinnerRow()

	result, err := h.evaluator.ReEvaluate(context.Background(), gl, approvedDoc(), current)
	require.NoError(t, err)

	assert.Equal(t, models.StatusRed, result.Status)
	assert.Equal(t, "31.205-51", result.FarSection)
	assert.Equal(t, models.StateReEvaluationError, result.State)
	assert.Contains(t, result.ReEvaluationError, "server")
	assert.False(t, result.ApprovalBasedReEvaluation)

	events := h.complianceEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "server", events[0].ContextMap()["error_type"])
}

func TestReEvaluate_NonJSONReply(t *testing.T) {
	h := newHarness(t, llm.NewMockChatClientWithResponse("Looks fine to me."))
	gl, current := dinnerRow()

	result, err := h.evaluator.ReEvaluate(context.Background(), gl, approvedDoc(), current)
	require.NoError(t, err)

	assert.Equal(t, models.StatusRed, result.Status)
	assert.Equal(t, models.StateReEvaluationError, result.State)
	assert.True(t, strings.HasPrefix(result.ReEvaluationError, "response"))
}

func TestReEvaluate_InvalidStatusIsFailurePath(t *testing.T) {
	h := newHarness(t, llm.NewMockChatClientWithResponse(`{"status":"PURPLE","farSection":"31.205-14","reasoning":"unsure"}`))
	gl, current := dinnerRow()

	result, err := h.evaluator.ReEvaluate(context.Background(), gl, approvedDoc(), current)
	require.NoError(t, err)

	assert.Equal(t, models.StatusRed, result.Status)
	assert.Equal(t, "31.205-51", result.FarSection)
	assert.Equal(t, models.StateReEvaluationError, result.State)
	assert.False(t, result.ApprovalBasedReEvaluation)
	assert.Empty(t, result.GPTReasoning)
	assert.Contains(t, result.ReEvaluationError, "PURPLE")
	assert.True(t, strings.HasPrefix(result.ReEvaluationError, "response"))

	events := h.complianceEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "response", events[0].ContextMap()["error_type"])
}

func TestReEvaluate_UnknownFarSectionIsFlagged(t *testing.T) {
	h := newHarness(t, llm.NewMockChatClientWithResponse(
		`{"status":"yellow","farIssue":"Novel cost (31.999-9)","farSection":"31.999-9","approvalsFound":"yes","approvalSummary":"J. Doe"}`))
	gl, current := dinnerRow()

	result, err := h.evaluator.ReEvaluate(context.Background(), gl, approvedDoc(), current)
	require.NoError(t, err)

	assert.Equal(t, models.StatusYellow, result.Status)
	assert.Equal(t, "31.999-9", result.FarSection)
	assert.Equal(t, "Novel cost (31.999-9)", result.FarIssue)
	assert.True(t, result.UnknownFarSection)
	assert.True(t, result.ApprovalsFound)
	assert.Equal(t, "J. Doe", result.ApprovalSummary)

	var types []string
	for _, e := range h.complianceEvents() {
		types = append(types, e.Message)
	}
	assert.Len(t, types, 2)
}

func TestReEvaluate_SameVerdictIsStable(t *testing.T) {
	h := newHarness(t, llm.NewMockChatClientWithResponse(
		`{"status":"RED","farIssue":"Alcoholic Beverages (31.205-51)","farSection":"31.205-51","reasoning":"still alcohol"}`))
	gl, current := dinnerRow()

	result, err := h.evaluator.ReEvaluate(context.Background(), gl, approvedDoc(), current)
	require.NoError(t, err)

	assert.Equal(t, current.Status, result.Status)
	assert.Equal(t, current.FarIssue, result.FarIssue)
	assert.Equal(t, current.FarSection, result.FarSection)
	assert.False(t, result.UnknownFarSection)
	assert.Empty(t, h.complianceEvents())
}

func TestReEvaluate_CancelledDiscardsReply(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := llm.NewMockChatClient()
	client.ChatFunc = func(callCtx context.Context, messages []llm.Message, opts llm.ChatOptions) (*llm.ChatResult, error) {
		cancel()
		return &llm.ChatResult{Content: `{"status":"GREEN"}`}, nil
	}
	h := newHarness(t, client)
	gl, current := dinnerRow()

	result, err := h.evaluator.ReEvaluate(ctx, gl, approvedDoc(), current)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestReEvaluate_TimeoutIsFailurePath(t *testing.T) {
	client := llm.NewMockChatClient()
	client.ChatFunc = func(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (*llm.ChatResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	h := newHarness(t, client)
	h.evaluator.opts.Timeout = 10 * time.Millisecond
	gl, current := dinnerRow()

	result, err := h.evaluator.ReEvaluate(context.Background(), gl, approvedDoc(), current)
	require.NoError(t, err)
	assert.Equal(t, models.StateReEvaluationError, result.State)
	assert.Contains(t, result.ReEvaluationError, "timeout")
}

func TestReEvaluate_NilCurrentIsClassifiedFirst(t *testing.T) {
	h := newHarness(t, llm.NewMockChatClient())
	gl, _ := dinnerRow()

	result, err := h.evaluator.ReEvaluate(context.Background(), gl, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRed, result.Status)
	assert.Equal(t, models.StateDetermined, result.State)
}

func TestReEvaluate_NilEntryIsInvalidInput(t *testing.T) {
	h := newHarness(t, llm.NewMockChatClient())
	_, current := dinnerRow()

	result, err := h.evaluator.ReEvaluate(context.Background(), nil, approvedDoc(), current)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Nil(t, result)
	assert.Zero(t, h.client.Calls())
}

func TestReEvaluate_HungProviderOpensCircuit(t *testing.T) {
	hung := llm.NewMockChatClient()
	hung.ChatFunc = func(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (*llm.ChatResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	guarded := llm.NewGuardedClient(hung, llm.CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Minute}, zap.NewNop())

	rules, err := far.BuiltinRules()
	require.NoError(t, err)
	idx, err := far.NewRuleIndex(rules, nil)
	require.NoError(t, err)
	opts := DefaultOptions()
	opts.Timeout = 10 * time.Millisecond
	e := NewEvaluator(guarded, approvals.NewDetector(zap.NewNop()), idx, nil, opts, zap.NewNop())

	gl, current := dinnerRow()
	var last *models.AuditResult
	for i := 0; i < 5; i++ {
		last, err = e.ReEvaluate(context.Background(), gl, approvedDoc(), current)
		require.NoError(t, err)
		assert.Equal(t, models.StateReEvaluationError, last.State)
	}

	assert.Equal(t, 2, hung.Calls())
	assert.Equal(t, llm.CircuitOpen, guarded.Breaker().State())
	assert.Contains(t, last.ReEvaluationError, "circuit_open")
}
