package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/apperrors"
	"github.com/ekaya-inc/far-audit/pkg/matching"
	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/services"
)

// GLEntryRequest is one ledger row in POST /api/gl.
type GLEntryRequest struct {
	AccountNumber  string          `json:"account_number"`
	Description    string          `json:"description"`
	Amount         json.RawMessage `json:"amount"`
	Date           string          `json:"date,omitempty"`
	Category       string          `json:"category,omitempty"`
	Vendor         string          `json:"vendor,omitempty"`
	ContractNumber string          `json:"contract_number,omitempty"`
}

// SaveGLRequest for POST /api/gl
type SaveGLRequest struct {
	Entries []GLEntryRequest `json:"entries"`
}

// SaveGLResponse for POST /api/gl
type SaveGLResponse struct {
	IDs []uuid.UUID `json:"ids"`
}

// ClearGLResponse for DELETE /api/gl
type ClearGLResponse struct {
	Deleted int64 `json:"deleted"`
}

// AuditResponse for POST /api/gl/audit
type AuditResponse struct {
	Results []*models.AuditResult `json:"results"`
	Total   int                   `json:"total"`
}

// CandidatesResponse for GET /api/gl/{id}/candidates
type CandidatesResponse struct {
	GLEntryID  uuid.UUID            `json:"gl_entry_id"`
	Candidates []matching.Candidate `json:"candidates"`
}

// GLHandler handles ledger HTTP requests.
type GLHandler struct {
	auditService    services.AuditService
	matchingService services.MatchingService
	logger          *zap.Logger
}

// NewGLHandler creates a new GL handler.
func NewGLHandler(
	auditService services.AuditService,
	matchingService services.MatchingService,
	logger *zap.Logger,
) *GLHandler {
	return &GLHandler{
		auditService:    auditService,
		matchingService: matchingService,
		logger:          logger,
	}
}

// RegisterRoutes registers the GL handler's routes on the given mux.
func (h *GLHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	base := "/api/gl"

	mux.HandleFunc("GET "+base, scope(h.List))
	mux.HandleFunc("POST "+base, scope(h.Save))
	mux.HandleFunc("DELETE "+base, scope(h.Clear))
	mux.HandleFunc("POST "+base+"/audit", scope(h.Audit))
	mux.HandleFunc("GET "+base+"/{id}/candidates", scope(h.Candidates))
}

// List handles GET /api/gl?limit=&offset=
func (h *GLHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := parsePagination(w, r, h.logger)
	if !ok {
		return
	}

	page, err := h.auditService.FetchGL(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err, "list_gl_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, page, h.logger)
}

// Save handles POST /api/gl
func (h *GLHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveGLRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	entries := make([]*models.GLEntry, 0, len(req.Entries))
	for i, e := range req.Entries {
		entry, err := e.toModel(i)
		if err != nil {
			writeServiceError(w, err, "save_gl_failed", h.logger)
			return
		}
		entries = append(entries, entry)
	}

	ids, err := h.auditService.SaveGL(r.Context(), entries)
	if err != nil {
		writeServiceError(w, err, "save_gl_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, SaveGLResponse{IDs: ids}, h.logger)
}

// Clear handles DELETE /api/gl
func (h *GLHandler) Clear(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.auditService.ClearGL(r.Context())
	if err != nil {
		writeServiceError(w, err, "clear_gl_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, ClearGLResponse{Deleted: deleted}, h.logger)
}

// Audit handles POST /api/gl/audit
func (h *GLHandler) Audit(w http.ResponseWriter, r *http.Request) {
	results, err := h.auditService.AuditAll(r.Context())
	if err != nil {
		writeServiceError(w, err, "audit_failed", h.logger)
		return
	}
	if results == nil {
		results = []*models.AuditResult{}
	}
	writeData(w, http.StatusOK, AuditResponse{Results: results, Total: len(results)}, h.logger)
}

// Candidates handles GET /api/gl/{id}/candidates
func (h *GLHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	glEntryID, ok := ParseGLEntryID(w, r, h.logger)
	if !ok {
		return
	}

	candidates, err := h.matchingService.Suggestions(r.Context(), glEntryID)
	if err != nil {
		writeServiceError(w, err, "candidates_failed", h.logger)
		return
	}
	if candidates == nil {
		candidates = []matching.Candidate{}
	}
	writeData(w, http.StatusOK, CandidatesResponse{GLEntryID: glEntryID, Candidates: candidates}, h.logger)
}

func (e GLEntryRequest) toModel(i int) (*models.GLEntry, error) {
	field := fmt.Sprintf("entries[%d]", i)
	amount, present, err := parseAmount(field+".amount", e.Amount)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, apperrors.InvalidInput(field+".amount", "is required")
	}
	date, err := parseDate(field+".date", e.Date)
	if err != nil {
		return nil, err
	}
	return &models.GLEntry{
		AccountNumber:  e.AccountNumber,
		Description:    e.Description,
		Amount:         amount,
		Date:           date,
		Category:       e.Category,
		Vendor:         e.Vendor,
		ContractNumber: e.ContractNumber,
	}, nil
}
