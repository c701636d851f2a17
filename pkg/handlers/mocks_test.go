package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/far-audit/pkg/matching"
	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/services"
)

// ============================================================================
// Mock Implementations
// ============================================================================

type mockAuditService struct {
	page      *models.GLPage
	results   []*models.AuditResult
	ids       []uuid.UUID
	deleted   int64
	err       error
	saved     []*models.GLEntry
	gotLimit  int
	gotOffset int
}

func (m *mockAuditService) SaveGL(_ context.Context, entries []*models.GLEntry) ([]uuid.UUID, error) {
	m.saved = entries
	return m.ids, m.err
}
func (m *mockAuditService) FetchGL(_ context.Context, limit, offset int) (*models.GLPage, error) {
	m.gotLimit, m.gotOffset = limit, offset
	return m.page, m.err
}
func (m *mockAuditService) GetGL(_ context.Context, _ uuid.UUID) (*models.AuditedGLEntry, error) {
	return nil, m.err
}
func (m *mockAuditService) AuditAll(_ context.Context) ([]*models.AuditResult, error) {
	return m.results, m.err
}
func (m *mockAuditService) ClearGL(_ context.Context) (int64, error) {
	return m.deleted, m.err
}

type mockMatchingService struct {
	candidates []matching.Candidate
	err        error
}

func (m *mockMatchingService) Suggestions(_ context.Context, _ uuid.UUID) ([]matching.Candidate, error) {
	return m.candidates, m.err
}
func (m *mockMatchingService) AutoLink(_ context.Context, _ []*models.DocumentItem) ([]*models.Link, error) {
	return nil, m.err
}
func (m *mockMatchingService) Evict(uuid.UUID) {}
func (m *mockMatchingService) Purge()          {}

type mockLinkService struct {
	removed   bool
	err       error
	gotSource models.LinkSource
}

func (m *mockLinkService) Link(_ context.Context, itemID, glEntryID uuid.UUID, source models.LinkSource) (*models.Link, error) {
	m.gotSource = source
	if m.err != nil {
		return nil, m.err
	}
	if source == "" {
		source = models.LinkSourceManual
	}
	return &models.Link{DocumentItemID: itemID, GLEntryID: glEntryID, Source: source}, nil
}
func (m *mockLinkService) Unlink(_ context.Context, _, _ uuid.UUID) (bool, error) {
	return m.removed, m.err
}
func (m *mockLinkService) ListByGL(context.Context, uuid.UUID) ([]*models.Link, error)   { return nil, m.err }
func (m *mockLinkService) ListByItem(context.Context, uuid.UUID) ([]*models.Link, error) { return nil, m.err }
func (m *mockLinkService) ListAll(context.Context) ([]*models.Link, error)               { return nil, m.err }
func (m *mockLinkService) CascadeOnDelete(context.Context, models.EntityRef) ([]*models.Link, error) {
	return nil, m.err
}
func (m *mockLinkService) RemoveAll(context.Context) ([]*models.Link, error) { return nil, m.err }
func (m *mockLinkService) Subscribe(services.LinkChangeListener)            {}

type mockDocumentService struct {
	listing   *models.ItemListing
	err       error
	gotDoc    *models.Document
	gotItems  []*models.DocumentItem
	deletedID uuid.UUID
}

func (m *mockDocumentService) Ingest(_ context.Context, doc *models.Document, items []*models.DocumentItem) (*services.IngestResult, error) {
	m.gotDoc, m.gotItems = doc, items
	if m.err != nil {
		return nil, m.err
	}
	doc.ID = uuid.New()
	return &services.IngestResult{Document: doc, Items: items, Links: []*models.Link{}}, nil
}
func (m *mockDocumentService) ListItems(context.Context) (*models.ItemListing, error) {
	return m.listing, m.err
}
func (m *mockDocumentService) Delete(_ context.Context, id uuid.UUID) error {
	m.deletedID = id
	return m.err
}

type mockRequirementsService struct {
	reqs []*models.Requirement
	err  error
}

func (m *mockRequirementsService) List(context.Context) ([]*models.Requirement, error) {
	return m.reqs, m.err
}

type mockReviewService struct {
	result  *models.AuditResult
	summary *services.ReviewSummary
	err     error
	gotID   uuid.UUID
	allRuns int
}

func (m *mockReviewService) ReEvaluate(_ context.Context, id uuid.UUID) (*models.AuditResult, error) {
	m.gotID = id
	return m.result, m.err
}
func (m *mockReviewService) ReEvaluateAll(context.Context) (*services.ReviewSummary, error) {
	m.allRuns++
	return m.summary, m.err
}

var (
	_ services.AuditService        = (*mockAuditService)(nil)
	_ services.MatchingService     = (*mockMatchingService)(nil)
	_ services.LinkService         = (*mockLinkService)(nil)
	_ services.DocumentService     = (*mockDocumentService)(nil)
	_ services.RequirementsService = (*mockRequirementsService)(nil)
	_ services.ReEvaluationService = (*mockReviewService)(nil)
)

// ============================================================================
// Helpers
// ============================================================================

// passthrough stands in for the database scope middleware.
func passthrough(next http.HandlerFunc) http.HandlerFunc { return next }

// decodeData decodes an ApiResponse and re-decodes its data into dst.
func decodeData(t *testing.T, body []byte, dst any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.True(t, envelope.Success, "body: %s", body)
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

// decodeError decodes an ErrorResponse body.
func decodeError(t *testing.T, body []byte) map[string]string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}
