package models

import (
	"time"

	"github.com/google/uuid"
)

// EvaluationState tracks how far a GL row has progressed through evaluation.
type EvaluationState string

const (
	StateUnaudited         EvaluationState = "UNAUDITED"
	StateDetermined        EvaluationState = "DETERMINED"
	StateReEvaluated       EvaluationState = "RE_EVALUATED"
	StateReEvaluationError EvaluationState = "RE_EVALUATION_ERROR"
)

// AuditResult is the audit decoration of a GL row, produced by the
// deterministic auditor and optionally replaced by LLM re-evaluation.
type AuditResult struct {
	GLEntryID  uuid.UUID        `json:"gl_entry_id"`
	Status     ComplianceStatus `json:"status"`
	FarIssue   string           `json:"far_issue"`
	FarSection string           `json:"far_section"`
	State      EvaluationState  `json:"evaluation_state"`

	GPTReasoning              string `json:"gpt_reasoning,omitempty"`
	ApprovalsFound            bool   `json:"approvals_found,omitempty"`
	ApprovalSummary           string `json:"approval_summary,omitempty"`
	ApprovalBasedReEvaluation bool   `json:"approval_based_re_evaluation,omitempty"`
	ReEvaluationReason        string `json:"re_evaluation_reason,omitempty"`
	ReEvaluationError         string `json:"re_evaluation_error,omitempty"`
	UnknownFarSection         bool   `json:"unknown_far_section,omitempty"`

	AuditedAt time.Time `json:"audited_at"`
}

// Clone returns a shallow copy; AuditResult holds no reference fields.
func (r *AuditResult) Clone() *AuditResult {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
