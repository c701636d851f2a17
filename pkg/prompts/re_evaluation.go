package prompts

import (
	"fmt"
	"strings"
)

// NoRawOCRText stands in for a document without raw OCR output.
const NoRawOCRText = "No raw OCR text available"

// GLContext is the ledger row under review.
type GLContext struct {
	Vendor      string
	Date        string // YYYY-MM-DD, empty when unknown
	Amount      string
	Description string
	Account     string
	Category    string
}

// AuditContext is the verdict the deterministic auditor produced.
type AuditContext struct {
	Status     string
	FarIssue   string
	FarSection string
}

// DocumentContext is one linked document as the model sees it.
type DocumentContext struct {
	Filename      string
	DocType       string
	Vendor        string
	Date          string
	Amount        string
	RawOCRText    string
	ProcessedText string
	Approvals     []string // "decision by approver on date: summary"
}

// RuleContext is a FAR rule offered to the model as reference.
type RuleContext struct {
	Section  string
	Title    string
	Severity string
}

// BuildReEvaluationSystemPrompt returns the fixed auditor system prompt.
func BuildReEvaluationSystemPrompt() string {
	var prompt strings.Builder

	prompt.WriteString("You are a government contract cost auditor applying the Federal Acquisition Regulation (FAR) Part 31 cost principles.\n")
	prompt.WriteString("You review one General Ledger entry together with the supporting documents linked to it.\n\n")

	prompt.WriteString("## Status rubric\n\n")
	prompt.WriteString("- GREEN: the cost is allowable and adequately supported. Use GREEN when documented approval resolves a limited-allowability concern.\n")
	prompt.WriteString("- YELLOW: the cost may be allowable but needs justification, documentation, or approval that is incomplete.\n")
	prompt.WriteString("- RED: the cost is expressly unallowable under FAR, or the documents contradict the ledger entry.\n\n")
	prompt.WriteString("Approval never makes an expressly unallowable cost allowable.\n\n")

	prompt.WriteString("## Response format\n\n")
	prompt.WriteString("Respond with a single JSON object and nothing else:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"status\": \"GREEN\" | \"YELLOW\" | \"RED\",\n")
	prompt.WriteString("  \"farIssue\": \"<rule title (section)> or Compliant\",\n")
	prompt.WriteString("  \"farSection\": \"<FAR section, e.g. 31.205-46, or empty>\",\n")
	prompt.WriteString("  \"reasoning\": \"<two to four sentences>\",\n")
	prompt.WriteString("  \"approvalsFound\": true | false,\n")
	prompt.WriteString("  \"approvalSummary\": \"<who approved what, or empty>\"\n")
	prompt.WriteString("}\n")
	prompt.WriteString("```\n")

	return prompt.String()
}

// BuildReEvaluationUserPrompt renders the ledger row, the current verdict and
// each linked document.
func BuildReEvaluationUserPrompt(gl GLContext, current AuditContext, docs []DocumentContext, rules []RuleContext) string {
	var prompt strings.Builder

	prompt.WriteString("# General Ledger Entry\n\n")
	prompt.WriteString(fmt.Sprintf("- Vendor: %s\n", orUnknown(gl.Vendor)))
	prompt.WriteString(fmt.Sprintf("- Date: %s\n", orUnknown(gl.Date)))
	prompt.WriteString(fmt.Sprintf("- Amount: %s\n", orUnknown(gl.Amount)))
	prompt.WriteString(fmt.Sprintf("- Description: %s\n", orUnknown(gl.Description)))
	if gl.Account != "" {
		prompt.WriteString(fmt.Sprintf("- Account: %s\n", gl.Account))
	}
	if gl.Category != "" {
		prompt.WriteString(fmt.Sprintf("- Category: %s\n", gl.Category))
	}

	prompt.WriteString("\n# Current Determination\n\n")
	prompt.WriteString(fmt.Sprintf("- Status: %s\n", current.Status))
	prompt.WriteString(fmt.Sprintf("- FAR issue: %s\n", orUnknown(current.FarIssue)))
	if current.FarSection != "" {
		prompt.WriteString(fmt.Sprintf("- FAR section: %s\n", current.FarSection))
	}

	prompt.WriteString(fmt.Sprintf("\n# Linked Documents (%d)\n", len(docs)))
	for i, doc := range docs {
		prompt.WriteString(fmt.Sprintf("\n## Document %d: %s\n\n", i+1, orUnknown(doc.Filename)))
		if doc.DocType != "" {
			prompt.WriteString(fmt.Sprintf("Type: %s\n", doc.DocType))
		}
		prompt.WriteString("Extracted fields:\n")
		prompt.WriteString(fmt.Sprintf("- vendor: %s\n", orUnknown(doc.Vendor)))
		prompt.WriteString(fmt.Sprintf("- date: %s\n", orUnknown(doc.Date)))
		prompt.WriteString(fmt.Sprintf("- amount: %s\n", orUnknown(doc.Amount)))
		if len(doc.Approvals) > 0 {
			prompt.WriteString("Detected approvals:\n")
			for _, a := range doc.Approvals {
				prompt.WriteString(fmt.Sprintf("- %s\n", a))
			}
		}

		raw := strings.TrimSpace(doc.RawOCRText)
		if raw == "" {
			raw = NoRawOCRText
		}
		prompt.WriteString("\nRaw OCR text:\n```\n")
		prompt.WriteString(raw)
		prompt.WriteString("\n```\n")

		if processed := strings.TrimSpace(doc.ProcessedText); processed != "" && processed != raw {
			prompt.WriteString("\nProcessed text:\n```\n")
			prompt.WriteString(processed)
			prompt.WriteString("\n```\n")
		}
	}

	if len(rules) > 0 {
		prompt.WriteString("\n# Reference FAR Rules\n\n")
		for _, r := range rules {
			prompt.WriteString(fmt.Sprintf("- %s %s [%s]\n", r.Section, r.Title, r.Severity))
		}
	}

	prompt.WriteString("\n# Task\n\n")
	prompt.WriteString("Compare the ledger entry with the OCR data of each document: vendor, date, and amount should agree. ")
	prompt.WriteString("Judge whether the documentation is complete and the cost legitimate, taking any approvals into account. ")
	prompt.WriteString("Return the JSON object described in the system prompt.\n")

	return prompt.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
