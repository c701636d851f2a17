package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/services"
)

// LinkRequest for POST and DELETE /api/link
type LinkRequest struct {
	DocumentItemID string `json:"document_item_id"`
	GLEntryID      string `json:"gl_entry_id"`
	Source         string `json:"source,omitempty"`
}

// LinkResponse echoes the identifiers of the affected link.
type LinkResponse struct {
	DocumentItemID uuid.UUID         `json:"document_item_id"`
	GLEntryID      uuid.UUID         `json:"gl_entry_id"`
	Source         models.LinkSource `json:"source,omitempty"`
	Removed        *bool             `json:"removed,omitempty"`
}

// LinkHandler exposes the Link Registry over HTTP.
type LinkHandler struct {
	linkService services.LinkService
	logger      *zap.Logger
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(linkService services.LinkService, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{linkService: linkService, logger: logger}
}

// RegisterRoutes registers the link handler's routes on the given mux.
func (h *LinkHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/link", scope(h.Link))
	mux.HandleFunc("DELETE /api/link", scope(h.Unlink))
}

// Link handles POST /api/link
func (h *LinkHandler) Link(w http.ResponseWriter, r *http.Request) {
	req, itemID, glID, ok := h.parse(w, r)
	if !ok {
		return
	}

	link, err := h.linkService.Link(r.Context(), itemID, glID, models.LinkSource(req.Source))
	if err != nil {
		writeServiceError(w, err, "link_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, LinkResponse{
		DocumentItemID: link.DocumentItemID,
		GLEntryID:      link.GLEntryID,
		Source:         link.Source,
	}, h.logger)
}

// Unlink handles DELETE /api/link
func (h *LinkHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	_, itemID, glID, ok := h.parse(w, r)
	if !ok {
		return
	}

	removed, err := h.linkService.Unlink(r.Context(), itemID, glID)
	if err != nil {
		writeServiceError(w, err, "unlink_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, LinkResponse{
		DocumentItemID: itemID,
		GLEntryID:      glID,
		Removed:        &removed,
	}, h.logger)
}

func (h *LinkHandler) parse(w http.ResponseWriter, r *http.Request) (LinkRequest, uuid.UUID, uuid.UUID, bool) {
	var req LinkRequest
	if !decodeBody(w, r, &req, h.logger) {
		return req, uuid.Nil, uuid.Nil, false
	}
	itemID, err := uuid.Parse(req.DocumentItemID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_document_item_id", "Invalid document item ID format", h.logger)
		return req, uuid.Nil, uuid.Nil, false
	}
	glID, err := uuid.Parse(req.GLEntryID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_gl_entry_id", "Invalid GL entry ID format", h.logger)
		return req, uuid.Nil, uuid.Nil, false
	}
	return req, itemID, glID, true
}
