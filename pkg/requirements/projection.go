// Package requirements projects per-GL documentation requirements from audit
// results and links.
package requirements

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/far-audit/pkg/approvals"
	"github.com/ekaya-inc/far-audit/pkg/far"
	"github.com/ekaya-inc/far-audit/pkg/models"
)

// Policy holds the configurable requirement knobs.
type Policy struct {
	// ReceiptThreshold makes receipts required for any row at or above this
	// amount, regardless of status. Nil means non-green rows only.
	ReceiptThreshold *decimal.Decimal
}

// Projector computes Requirement rows. It is pure given its inputs.
type Projector struct {
	detector *approvals.Detector
	rules    *far.RuleIndex
	policy   Policy
}

// NewProjector creates a Projector.
func NewProjector(detector *approvals.Detector, rules *far.RuleIndex, policy Policy) *Projector {
	return &Projector{detector: detector, rules: rules, policy: policy}
}

// Project returns one Requirement per row, in row order.
func (p *Projector) Project(rows []*models.AuditedGLEntry, listing *models.ItemListing) []*models.Requirement {
	idx := newListingIndex(listing)
	unallowableDocs := make(map[uuid.UUID]bool)

	out := make([]*models.Requirement, 0, len(rows))
	for _, row := range rows {
		if row == nil || row.GLEntry == nil {
			continue
		}
		out = append(out, p.projectRow(row, idx, unallowableDocs))
	}
	return out
}

func (p *Projector) projectRow(row *models.AuditedGLEntry, idx *listingIndex, unallowableDocs map[uuid.UUID]bool) *models.Requirement {
	req := &models.Requirement{
		GLEntryID: row.ID,
		Status:    p.status(row),
	}

	for _, item := range idx.itemsFor(row.ID) {
		req.AttachmentsCount++
		doc := idx.documents[item.DocumentID]

		if item.Kind.IsReceiptEvidence() {
			req.HasReceipt = true
		}
		if item.Kind == models.ItemKindApproval || p.detector.HasApproval(doc, item) {
			req.ApprovalsCount++
		}
		if doc != nil && p.docUnallowable(doc, unallowableDocs) {
			req.DocFlagUnallowable = true
		}
	}
	req.HasApproval = req.ApprovalsCount > 0

	req.ReceiptRequired = req.Status != models.StatusGreen ||
		(p.policy.ReceiptThreshold != nil && row.Amount.GreaterThanOrEqual(*p.policy.ReceiptThreshold))
	req.ApprovalRequired = req.Status == models.StatusRed
	req.Pending = (req.ReceiptRequired || req.ApprovalRequired) && !req.HasReceipt

	switch {
	case req.HasReceipt && req.HasApproval:
		req.ApprovalState = models.ApprovalStateFull
	case req.Status == models.StatusGreen:
		req.ApprovalState = models.ApprovalStateTentative
	default:
		req.ApprovalState = models.ApprovalStatePending
	}
	return req
}

// status uses the stored audit when present and classifies on the fly
// otherwise.
func (p *Projector) status(row *models.AuditedGLEntry) models.ComplianceStatus {
	if row.Audit != nil && row.Audit.Status.Valid() {
		return row.Audit.Status
	}
	return far.AuditRow(row.GLEntry, p.rules).Status
}

func (p *Projector) docUnallowable(doc *models.Document, memo map[uuid.UUID]bool) bool {
	if flagged, ok := memo[doc.ID]; ok {
		return flagged
	}
	flagged := false
	if p.rules != nil {
		for _, text := range []string{doc.TextContent, doc.RawOCRText()} {
			if m, ok := p.rules.FirstMatch(text); ok && m.Rule.Severity == models.SeverityExpresslyUnallowable {
				flagged = true
				break
			}
		}
	}
	memo[doc.ID] = flagged
	return flagged
}

type listingIndex struct {
	items     map[uuid.UUID]*models.DocumentItem
	documents map[uuid.UUID]*models.Document
	byGL      map[uuid.UUID][]uuid.UUID
}

func newListingIndex(listing *models.ItemListing) *listingIndex {
	idx := &listingIndex{
		items:     make(map[uuid.UUID]*models.DocumentItem),
		documents: make(map[uuid.UUID]*models.Document),
		byGL:      make(map[uuid.UUID][]uuid.UUID),
	}
	if listing == nil {
		return idx
	}
	for _, item := range listing.Items {
		if item != nil {
			idx.items[item.ID] = item
		}
	}
	for _, doc := range listing.Documents {
		if doc != nil {
			idx.documents[doc.ID] = doc
		}
	}
	type pair struct{ item, gl uuid.UUID }
	seen := make(map[pair]bool)
	for _, link := range listing.Links {
		if link == nil {
			continue
		}
		key := pair{item: link.DocumentItemID, gl: link.GLEntryID}
		if seen[key] {
			continue
		}
		seen[key] = true
		idx.byGL[link.GLEntryID] = append(idx.byGL[link.GLEntryID], link.DocumentItemID)
	}
	return idx
}

// itemsFor returns the distinct known items linked to a GL row.
func (idx *listingIndex) itemsFor(glID uuid.UUID) []*models.DocumentItem {
	ids := idx.byGL[glID]
	out := make([]*models.DocumentItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := idx.items[id]; ok {
			out = append(out, item)
		}
	}
	return out
}
