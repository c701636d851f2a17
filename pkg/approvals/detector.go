// Package approvals detects approval and authorization evidence in OCR'd
// documents.
package approvals

import (
	"encoding/json"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/apperrors"
	"github.com/ekaya-inc/far-audit/pkg/models"
)

// Vocabulary is the lowercased set of phrases that count as approval evidence.
var Vocabulary = []string{
	"approved",
	"approval",
	"approve",
	"approving",
	"authorized",
	"authorised",
	"authorization",
	"authorisation",
	"sign off",
	"sign-off",
	"signoff",
	"ok to pay",
	"payment approved",
	"authorized for payment",
	"reviewed and approved",
	"approved for payment",
	"sanctioned",
	"validated",
	"confirmed approval",
}

// Detector scans documents for approval evidence. It never returns errors;
// embedded OCR JSON that fails to parse is logged and treated as plain text.
type Detector struct {
	logger *zap.Logger
}

// NewDetector creates a Detector.
func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{logger: logger.Named("approvals")}
}

// HasApproval reports whether the document or item carries approval
// evidence. Sources are searched in order: filename, text content (with
// embedded OCR JSON expanded), meta.ocr_data.raw_text, then the item itself.
func (d *Detector) HasApproval(doc *models.Document, item *models.DocumentItem) bool {
	for _, source := range d.sources(doc, item) {
		if ContainsApprovalTerm(source) {
			return true
		}
	}
	return false
}

// AnyApproval reports whether any linked document carries approval evidence.
func (d *Detector) AnyApproval(linked []models.LinkedDocument) bool {
	for _, l := range linked {
		if d.HasApproval(l.Document, l.Item) {
			return true
		}
	}
	return false
}

// ContainsApprovalTerm reports whether text contains any vocabulary phrase,
// case-insensitively.
func ContainsApprovalTerm(text string) bool {
	if text == "" {
		return false
	}
	lowered := strings.ToLower(text)
	for _, term := range Vocabulary {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

func (d *Detector) sources(doc *models.Document, item *models.DocumentItem) []string {
	var out []string
	if doc != nil {
		out = append(out, doc.Filename)
		out = append(out, d.textSources(doc.TextContent)...)
		out = append(out, doc.RawOCRText())
	}
	if item != nil {
		if data, err := json.Marshal(item); err == nil {
			out = append(out, string(data))
		}
	}
	return out
}

// textSources expands a text_content value. With the OCR marker and a valid
// JSON payload, the stringified JSON and every string inside it are returned.
// Otherwise the text is returned as is.
func (d *Detector) textSources(text string) []string {
	parsed, ok := d.parseEmbedded(text)
	if !ok {
		return []string{text}
	}
	stringified, _ := json.Marshal(parsed)
	return append([]string{string(stringified)}, stringLeaves(parsed)...)
}

// textLines is textSources without the stringified JSON, for line scanning.
func (d *Detector) textLines(text string) []string {
	parsed, ok := d.parseEmbedded(text)
	if !ok {
		return []string{text}
	}
	return stringLeaves(parsed)
}

func (d *Detector) parseEmbedded(text string) (any, bool) {
	parsed, ok, err := ParseEmbeddedOCR(text)
	if err != nil {
		d.logger.Debug("Embedded OCR JSON did not parse, using raw text", zap.Error(err))
	}
	return parsed, ok
}

// ParseEmbeddedOCR strips the OCR marker from text and parses the remainder
// as JSON. ok is false when the marker is absent or the payload is invalid;
// the latter also returns an ocr_parse error for diagnostics.
func ParseEmbeddedOCR(text string) (value any, ok bool, err error) {
	if !strings.HasPrefix(text, models.OCRTextMarker) {
		return nil, false, nil
	}
	payload := strings.TrimPrefix(text, models.OCRTextMarker)
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return nil, false, apperrors.New(apperrors.KindOCRParse, "embedded OCR data is not JSON", err)
	}
	return value, true, nil
}

// stringLeaves walks a decoded JSON value and returns every key and string
// value, in a stable order.
func stringLeaves(v any) []string {
	var out []string
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case []any:
			for _, e := range t {
				walk(e)
			}
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				out = append(out, k)
				walk(t[k])
			}
		}
	}
	walk(v)
	return out
}
