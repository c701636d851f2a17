package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocType is the classification the OCR pipeline assigned to a document.
type DocType string

const (
	DocTypeReceipt  DocType = "receipt"
	DocTypeInvoice  DocType = "invoice"
	DocTypeApproval DocType = "approval"
	DocTypeOther    DocType = "other"
	DocTypeUnknown  DocType = "unknown"
)

// Valid reports whether t is a known document type.
func (t DocType) Valid() bool {
	switch t {
	case DocTypeReceipt, DocTypeInvoice, DocTypeApproval, DocTypeOther, DocTypeUnknown:
		return true
	}
	return false
}

// ItemKind is the kind of entity parsed out of a document.
type ItemKind string

const (
	ItemKindReceipt  ItemKind = "receipt"
	ItemKindInvoice  ItemKind = "invoice"
	ItemKindLine     ItemKind = "line"
	ItemKindApproval ItemKind = "approval"
)

// Valid reports whether k is a known item kind.
func (k ItemKind) Valid() bool {
	switch k {
	case ItemKindReceipt, ItemKindInvoice, ItemKindLine, ItemKindApproval:
		return true
	}
	return false
}

// IsReceiptEvidence reports whether items of this kind count as a receipt.
func (k ItemKind) IsReceiptEvidence() bool {
	return k == ItemKindReceipt || k == ItemKindInvoice
}

// OCRTextMarker prefixes text_content values that carry an embedded JSON blob.
const OCRTextMarker = "OCR extracted data: "

// Document is an uploaded file with its OCR output.
type Document struct {
	ID          uuid.UUID          `json:"id"`
	Filename    string             `json:"filename"`
	MimeType    string             `json:"mime_type"`
	DocType     DocType            `json:"doc_type"`
	TextContent string             `json:"text_content"`
	Meta        *DocumentMeta      `json:"meta,omitempty"`
	Approvals   []DocumentApproval `json:"approvals,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// RawOCRText returns meta.ocr_data.raw_text, or "" when absent.
func (d *Document) RawOCRText() string {
	if d == nil || d.Meta == nil || d.Meta.OCRData == nil {
		return ""
	}
	return d.Meta.OCRData.RawText
}

// DocumentMeta is the structured OCR metadata stored with a document.
type DocumentMeta struct {
	OCRData *OCRData `json:"ocr_data,omitempty"`
}

// OCRData is the OCR engine output for a document.
type OCRData struct {
	RawText string         `json:"raw_text,omitempty"`
	Engine  string         `json:"engine,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// DocumentApproval is an approval recorded on, or detected in, a document.
type DocumentApproval struct {
	Decision string `json:"decision"`
	Approver string `json:"approver,omitempty"`
	Date     string `json:"date,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// DocumentItem is an entity parsed out of a document: a receipt total,
// an invoice, a single line, or an approval page.
type DocumentItem struct {
	ID         uuid.UUID        `json:"id"`
	DocumentID uuid.UUID        `json:"document_id"`
	Kind       ItemKind         `json:"kind"`
	Vendor     string           `json:"vendor,omitempty"`
	Date       *time.Time       `json:"date,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Details    *ItemDetails     `json:"details,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// ItemDetails holds optional parsed line items.
type ItemDetails struct {
	Lines []ItemLine `json:"lines,omitempty"`
}

// ItemLine is one parsed line of a receipt or invoice.
type ItemLine struct {
	Description string           `json:"description,omitempty"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
}

// ItemListing is the Document Item Store snapshot used by the UI and matcher.
type ItemListing struct {
	Items     []*DocumentItem `json:"items"`
	Links     []*Link         `json:"links"`
	Documents []*Document     `json:"documents"`
}

// LinkedDocument is a document item linked to a GL row, with its parent document.
type LinkedDocument struct {
	Document *Document     `json:"document"`
	Item     *DocumentItem `json:"item"`
}
