package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/apperrors"
	"github.com/ekaya-inc/far-audit/pkg/matching"
	"github.com/ekaya-inc/far-audit/pkg/models"
)

func newAuditToolServer(t *testing.T, deps *AuditToolDeps) *AuditToolDeps {
	t.Helper()
	if deps.Rules == nil {
		deps.Rules = builtinRules(t)
	}
	if deps.MatchingService == nil {
		deps.MatchingService = &mockMatchingService{}
	}
	if deps.RequirementsService == nil {
		deps.RequirementsService = &mockRequirementsService{}
	}
	deps.Logger = zap.NewNop()
	return deps
}

func TestClassifyDescriptionTool(t *testing.T) {
	s := newToolServer()
	RegisterAuditTools(s, newAuditToolServer(t, &AuditToolDeps{}))

	tests := []struct {
		description string
		wantStatus  models.ComplianceStatus
		wantSection string
		wantKeyword bool
	}{
		{"Dinner and wine with client", models.StatusRed, "31.205-51", true},
		{"Airfare business class to DC", models.StatusYellow, "31.205-46(b)", true},
		{"Office supplies", models.StatusGreen, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			var got classifyResult
			decodeText(t, callTool(t, s, "classify_description", map[string]any{"description": "  " + tt.description + " "}), &got)

			assert.Equal(t, tt.description, got.Description)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantSection, got.FarSection)
			assert.Equal(t, tt.wantKeyword, got.Keyword != "")
		})
	}
}

func TestClassifyDescriptionTool_InvalidParameters(t *testing.T) {
	s := newToolServer()
	RegisterAuditTools(s, newAuditToolServer(t, &AuditToolDeps{}))

	for _, args := range []map[string]any{nil, {"description": "   "}, {"description": 42}} {
		resp := callTool(t, s, "classify_description", args)
		require.Nil(t, resp.Error)
		assert.True(t, resp.Result.IsError)
		assert.Contains(t, resp.Result.Content[0].Text, "invalid_parameters")
	}
}

func TestRankCandidatesTool(t *testing.T) {
	glID := uuid.New()
	candidates := []matching.Candidate{
		{Item: &models.DocumentItem{ID: uuid.New()}, Score: 9.5, Best: true},
		{Item: &models.DocumentItem{ID: uuid.New()}, Score: 4},
		{Item: &models.DocumentItem{ID: uuid.New()}, Score: 1},
	}
	match := &mockMatchingService{candidates: candidates}
	scoped := 0
	deps := newAuditToolServer(t, &AuditToolDeps{
		MatchingService: match,
		Scope: func(ctx context.Context) (context.Context, func(), error) {
			scoped++
			return ctx, func() {}, nil
		},
	})
	s := newToolServer()
	RegisterAuditTools(s, deps)

	var got rankCandidatesResult
	decodeText(t, callTool(t, s, "rank_candidates", map[string]any{"gl_entry_id": glID.String(), "limit": 2}), &got)

	assert.Equal(t, glID, match.gotID)
	assert.Equal(t, 1, scoped)
	assert.Equal(t, 3, got.Total)
	require.Len(t, got.Candidates, 2)
	assert.True(t, got.Candidates[0].Best)
	assert.Equal(t, 9.5, got.Candidates[0].Score)
}

func TestRankCandidatesTool_Errors(t *testing.T) {
	tests := []struct {
		name      string
		args      map[string]any
		err       error
		wantCode  string
		wantProto bool
	}{
		{name: "missing id", args: map[string]any{}, wantCode: "invalid_parameters"},
		{name: "bad id", args: map[string]any{"gl_entry_id": "row-7"}, wantCode: "invalid_parameters"},
		{name: "bad limit", args: map[string]any{"gl_entry_id": uuid.NewString(), "limit": 0}, wantCode: "invalid_parameters"},
		{name: "unknown row", args: map[string]any{"gl_entry_id": uuid.NewString()}, err: apperrors.ErrNotFound, wantCode: "not_found"},
		{name: "store failure", args: map[string]any{"gl_entry_id": uuid.NewString()}, err: apperrors.New(apperrors.KindStore, "list items", errors.New("down")), wantProto: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newToolServer()
			RegisterAuditTools(s, newAuditToolServer(t, &AuditToolDeps{MatchingService: &mockMatchingService{err: tt.err}}))

			resp := callTool(t, s, "rank_candidates", tt.args)
			if tt.wantProto {
				require.NotNil(t, resp.Error)
				assert.Contains(t, resp.Error.Message, "rank candidates")
				return
			}
			require.Nil(t, resp.Error)
			require.True(t, resp.Result.IsError)
			assert.Contains(t, resp.Result.Content[0].Text, tt.wantCode)
		})
	}
}

func TestRankCandidatesTool_ScopeFailure(t *testing.T) {
	s := newToolServer()
	RegisterAuditTools(s, newAuditToolServer(t, &AuditToolDeps{
		Scope: func(ctx context.Context) (context.Context, func(), error) {
			return nil, nil, errors.New("pool closed")
		},
	}))

	resp := callTool(t, s, "rank_candidates", map[string]any{"gl_entry_id": uuid.NewString()})
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "pool closed")
}

func TestGetRequirementsTool(t *testing.T) {
	reqs := []*models.Requirement{
		{GLEntryID: uuid.New(), Status: models.StatusYellow, ApprovalRequired: true, Pending: true, ApprovalState: models.ApprovalStatePending},
		{GLEntryID: uuid.New(), Status: models.StatusGreen, ApprovalState: models.ApprovalStateTentative},
	}
	s := newToolServer()
	RegisterAuditTools(s, newAuditToolServer(t, &AuditToolDeps{RequirementsService: &mockRequirementsService{reqs: reqs}}))

	var all requirementsResult
	decodeText(t, callTool(t, s, "get_requirements", nil), &all)
	assert.Equal(t, 2, all.Total)
	assert.Equal(t, 1, all.Pending)
	assert.Len(t, all.Requirements, 2)

	var pending requirementsResult
	decodeText(t, callTool(t, s, "get_requirements", map[string]any{"pending_only": true}), &pending)
	assert.Equal(t, 2, pending.Total)
	require.Len(t, pending.Requirements, 1)
	assert.Equal(t, reqs[0].GLEntryID, pending.Requirements[0].GLEntryID)
}

func TestGetRequirementsTool_StoreFailure(t *testing.T) {
	s := newToolServer()
	RegisterAuditTools(s, newAuditToolServer(t, &AuditToolDeps{
		RequirementsService: &mockRequirementsService{err: errors.New("down")},
	}))

	resp := callTool(t, s, "get_requirements", nil)
	require.NotNil(t, resp.Error)
}
