package far

import (
	"time"

	"github.com/ekaya-inc/far-audit/pkg/models"
)

// Verdict is the deterministic classification of one description.
type Verdict struct {
	Status     models.ComplianceStatus `json:"status"`
	FarIssue   string                  `json:"far_issue"`
	FarSection string                  `json:"far_section"`
}

// Classify applies first-match keyword lookup to a description.
// Amounts are never consulted.
func Classify(description string, idx *RuleIndex) Verdict {
	if idx != nil {
		if m, ok := idx.FirstMatch(description); ok {
			return Verdict{
				Status:     m.Rule.Severity.Status(),
				FarIssue:   m.Rule.Issue(),
				FarSection: m.Rule.Section,
			}
		}
	}
	return Verdict{
		Status:   models.StatusGreen,
		FarIssue: models.CompliantIssue,
	}
}

// AuditRow classifies a single GL row.
func AuditRow(entry *models.GLEntry, idx *RuleIndex) Verdict {
	if entry == nil {
		return Classify("", idx)
	}
	return Classify(entry.Description, idx)
}

// AuditAll classifies rows in input order. The output index i always
// corresponds to rows[i]. Pure: no I/O, no clock reads beyond the supplied at.
func AuditAll(rows []*models.GLEntry, idx *RuleIndex, at time.Time) []*models.AuditResult {
	results := make([]*models.AuditResult, len(rows))
	for i, row := range rows {
		v := AuditRow(row, idx)
		result := &models.AuditResult{
			Status:     v.Status,
			FarIssue:   v.FarIssue,
			FarSection: v.FarSection,
			State:      models.StateDetermined,
			AuditedAt:  at,
		}
		if row != nil {
			result.GLEntryID = row.ID
		}
		results[i] = result
	}
	return results
}
