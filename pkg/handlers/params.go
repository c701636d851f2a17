package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/apperrors"
	"github.com/ekaya-inc/far-audit/pkg/matching"
)

// ParseGLEntryID extracts and validates the GL entry ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: id
func ParseGLEntryID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_gl_entry_id", "Invalid GL entry ID format", logger)
}

// ParseDocumentID extracts and validates the document ID from the request path.
// Expects path parameter: id
func ParseDocumentID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_document_id", "Invalid document ID format", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorCode, errorMessage, logger)
		return uuid.Nil, false
	}
	return id, true
}

// parsePagination reads limit and offset query parameters. Absent values are 0.
func parsePagination(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (limit, offset int, ok bool) {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_"+p.name, fmt.Sprintf("%s must be an integer", p.name), logger)
			return 0, 0, false
		}
		*p.dst = v
	}
	return limit, offset, true
}

// parseAmount accepts a JSON number or a money string such as "$1,234.50".
// present is false for an absent or null value.
func parseAmount(field string, raw json.RawMessage) (amount decimal.Decimal, present bool, err error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return decimal.Zero, false, nil
	}
	if strings.HasPrefix(text, `"`) {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Zero, false, apperrors.InvalidInput(field, "is not a string or number")
		}
		if strings.TrimSpace(text) == "" {
			return decimal.Zero, false, nil
		}
	}
	d, ok := matching.ParseAmount(text)
	if !ok {
		return decimal.Zero, false, apperrors.InvalidInput(field, fmt.Sprintf("%q is not an amount", text))
	}
	return d, true, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339. An empty string is absent.
func parseDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d, nil
		}
	}
	return nil, apperrors.InvalidInput(field, fmt.Sprintf("%q is not a date", raw))
}
