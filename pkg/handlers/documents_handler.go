package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/services"
)

// DocumentItemRequest is one parsed item in POST /api/documents.
type DocumentItemRequest struct {
	Kind    string              `json:"kind"`
	Vendor  string              `json:"vendor,omitempty"`
	Date    string              `json:"date,omitempty"`
	Amount  json.RawMessage     `json:"amount,omitempty"`
	Details *models.ItemDetails `json:"details,omitempty"`
}

// IngestDocumentRequest for POST /api/documents
type IngestDocumentRequest struct {
	Filename    string                    `json:"filename"`
	MimeType    string                    `json:"mime_type,omitempty"`
	DocType     string                    `json:"doc_type,omitempty"`
	TextContent string                    `json:"text_content,omitempty"`
	Meta        *models.DocumentMeta      `json:"meta,omitempty"`
	Approvals   []models.DocumentApproval `json:"approvals,omitempty"`
	Items       []DocumentItemRequest     `json:"items"`
}

// DocumentsHandler handles document store HTTP requests.
type DocumentsHandler struct {
	documentService services.DocumentService
	logger          *zap.Logger
}

// NewDocumentsHandler creates a new documents handler.
func NewDocumentsHandler(documentService services.DocumentService, logger *zap.Logger) *DocumentsHandler {
	return &DocumentsHandler{documentService: documentService, logger: logger}
}

// RegisterRoutes registers the documents handler's routes on the given mux.
func (h *DocumentsHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	base := "/api/documents"

	mux.HandleFunc("POST "+base, scope(h.Ingest))
	mux.HandleFunc("GET "+base+"/items", scope(h.ListItems))
	mux.HandleFunc("DELETE "+base+"/{id}", scope(h.Delete))
}

// Ingest handles POST /api/documents
func (h *DocumentsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestDocumentRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	doc := &models.Document{
		Filename:    req.Filename,
		MimeType:    req.MimeType,
		DocType:     models.DocType(req.DocType),
		TextContent: req.TextContent,
		Meta:        req.Meta,
		Approvals:   req.Approvals,
	}
	items := make([]*models.DocumentItem, 0, len(req.Items))
	for i, it := range req.Items {
		item, err := it.toModel(i)
		if err != nil {
			writeServiceError(w, err, "ingest_failed", h.logger)
			return
		}
		items = append(items, item)
	}

	result, err := h.documentService.Ingest(r.Context(), doc, items)
	if err != nil {
		writeServiceError(w, err, "ingest_failed", h.logger)
		return
	}
	writeData(w, http.StatusCreated, result, h.logger)
}

// ListItems handles GET /api/documents/items
func (h *DocumentsHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	listing, err := h.documentService.ListItems(r.Context())
	if err != nil {
		writeServiceError(w, err, "list_items_failed", h.logger)
		return
	}
	writeData(w, http.StatusOK, listing, h.logger)
}

// Delete handles DELETE /api/documents/{id}
func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.documentService.Delete(r.Context(), documentID); err != nil {
		writeServiceError(w, err, "delete_document_failed", h.logger)
		return
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Document deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (it DocumentItemRequest) toModel(i int) (*models.DocumentItem, error) {
	field := fmt.Sprintf("items[%d]", i)
	item := &models.DocumentItem{
		Kind:    models.ItemKind(it.Kind),
		Vendor:  it.Vendor,
		Details: it.Details,
	}
	amount, present, err := parseAmount(field+".amount", it.Amount)
	if err != nil {
		return nil, err
	}
	if present {
		item.Amount = &amount
	}
	if item.Date, err = parseDate(field+".date", it.Date); err != nil {
		return nil, err
	}
	return item, nil
}
