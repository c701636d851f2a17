package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/services"
)

// RequirementsResponse for GET /api/requirements
type RequirementsResponse struct {
	Requirements []*models.Requirement `json:"requirements"`
	Pending      int                   `json:"pending"`
	Total        int                   `json:"total"`
}

// RequirementsHandler serves documentation badges for the ledger UI.
type RequirementsHandler struct {
	requirementsService services.RequirementsService
	logger              *zap.Logger
}

// NewRequirementsHandler creates a new requirements handler.
func NewRequirementsHandler(requirementsService services.RequirementsService, logger *zap.Logger) *RequirementsHandler {
	return &RequirementsHandler{requirementsService: requirementsService, logger: logger}
}

// RegisterRoutes registers the requirements handler's routes on the given mux.
func (h *RequirementsHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	mux.HandleFunc("GET /api/requirements", scope(h.List))
}

// List handles GET /api/requirements
func (h *RequirementsHandler) List(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.requirementsService.List(r.Context())
	if err != nil {
		writeServiceError(w, err, "list_requirements_failed", h.logger)
		return
	}

	pending := 0
	for _, req := range reqs {
		if req.Pending {
			pending++
		}
	}
	writeData(w, http.StatusOK, RequirementsResponse{Requirements: reqs, Pending: pending, Total: len(reqs)}, h.logger)
}
