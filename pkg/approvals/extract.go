package approvals

import (
	"regexp"
	"strings"

	"github.com/ekaya-inc/far-audit/pkg/models"
)

var (
	approverPattern = regexp.MustCompile(`(?i)(?:approved|authori[sz]ed|signed off)\s+by[:\s]+([A-Za-z][A-Za-z.'\- ]*[A-Za-z.])`)
	datePattern     = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})\b`)
)

const maxSummaryLen = 200

// FindApprovals returns the approvals recorded on the document. When none are
// recorded it derives them from lines of the document text that contain
// approval vocabulary. Best effort: the result may be empty.
func (d *Detector) FindApprovals(doc *models.Document) []models.DocumentApproval {
	if doc == nil {
		return nil
	}
	if len(doc.Approvals) > 0 {
		return append([]models.DocumentApproval(nil), doc.Approvals...)
	}

	var texts []string
	texts = append(texts, d.textLines(doc.TextContent)...)
	texts = append(texts, doc.RawOCRText())

	seen := make(map[string]bool)
	var found []models.DocumentApproval
	for _, text := range texts {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || !ContainsApprovalTerm(line) {
				continue
			}
			summary := truncate(line, maxSummaryLen)
			if seen[summary] {
				continue
			}
			seen[summary] = true
			found = append(found, approvalFromLine(line, summary))
		}
	}
	return found
}

func approvalFromLine(line, summary string) models.DocumentApproval {
	a := models.DocumentApproval{
		Decision: "approved",
		Summary:  summary,
	}
	if m := approverPattern.FindStringSubmatch(line); m != nil {
		a.Approver = strings.TrimSpace(m[1])
		// A trailing date such as "on 2024-06-10" is not part of the name.
		if i := strings.Index(strings.ToLower(a.Approver)+" ", " on "); i > 0 {
			a.Approver = strings.TrimSpace(a.Approver[:i])
		}
	}
	if m := datePattern.FindString(line); m != "" {
		a.Date = m
	}
	return a
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "..."
}
