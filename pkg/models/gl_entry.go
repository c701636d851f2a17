package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ComplianceStatus is the traffic-light verdict for a GL row.
type ComplianceStatus string

const (
	StatusGreen  ComplianceStatus = "GREEN"
	StatusYellow ComplianceStatus = "YELLOW"
	StatusRed    ComplianceStatus = "RED"
)

// CompliantIssue is the farIssue text recorded for rows that match no rule.
const CompliantIssue = "Compliant"

// Valid reports whether s is one of GREEN, YELLOW or RED.
func (s ComplianceStatus) Valid() bool {
	switch s {
	case StatusGreen, StatusYellow, StatusRed:
		return true
	}
	return false
}

// ParseComplianceStatus accepts any casing and surrounding whitespace.
func ParseComplianceStatus(value string) (ComplianceStatus, error) {
	status := ComplianceStatus(strings.ToUpper(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", fmt.Errorf("invalid compliance status %q", value)
	}
	return status, nil
}

// GLEntry is one ledger row under audit. Only input columns live here;
// derived audit fields are carried by AuditResult.
type GLEntry struct {
	ID             uuid.UUID       `json:"id"`
	AccountNumber  string          `json:"account_number"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	Date           *time.Time      `json:"date,omitempty"`
	Category       string          `json:"category,omitempty"`
	Vendor         string          `json:"vendor,omitempty"`
	ContractNumber string          `json:"contract_number,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// GLPage is one page of GL rows with their current audit results.
type GLPage struct {
	Rows   []*AuditedGLEntry `json:"rows"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// AuditedGLEntry pairs a GL row with its audit decoration.
type AuditedGLEntry struct {
	*GLEntry
	Audit *AuditResult `json:"audit,omitempty"`
}
