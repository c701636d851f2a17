package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/services"
)

// ReviewRequest for POST /api/review. An empty body reviews every row.
type ReviewRequest struct {
	GLEntryID string `json:"gl_entry_id,omitempty"`
}

// ReviewHandler triggers LLM re-evaluation.
type ReviewHandler struct {
	reviewService services.ReEvaluationService
	logger        *zap.Logger
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(reviewService services.ReEvaluationService, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService, logger: logger}
}

// RegisterRoutes registers the review handler's routes on the given mux.
func (h *ReviewHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/review", scope(h.Review))
}

// Review handles POST /api/review
func (h *ReviewHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.logger)
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.logger)
				return
			}
		}
	}

	if req.GLEntryID != "" {
		glID, err := uuid.Parse(req.GLEntryID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_gl_entry_id", "Invalid GL entry ID format", h.logger)
			return
		}
		result, err := h.reviewService.ReEvaluate(r.Context(), glID)
		if err != nil {
			h.writeReviewError(w, err)
			return
		}
		writeData(w, http.StatusOK, services.ReviewSummary{
			Reviewed:    1,
			ReEvaluated: boolToInt(result.State == models.StateReEvaluated),
			Errors:      boolToInt(result.State == models.StateReEvaluationError),
			Results:     []*models.AuditResult{result},
		}, h.logger)
		return
	}

	summary, err := h.reviewService.ReEvaluateAll(r.Context())
	if err != nil {
		h.writeReviewError(w, err)
		return
	}
	writeData(w, http.StatusOK, summary, h.logger)
}

func (h *ReviewHandler) writeReviewError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) {
		h.logger.Info("Review cancelled by client, nothing persisted")
		writeError(w, http.StatusServiceUnavailable, "review_cancelled", "Review cancelled", h.logger)
		return
	}
	writeServiceError(w, err, "review_failed", h.logger)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
