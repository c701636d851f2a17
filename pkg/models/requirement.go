package models

import (
	"github.com/google/uuid"
)

// ApprovalState summarizes documentation completeness for a GL row.
type ApprovalState string

const (
	ApprovalStateFull      ApprovalState = "FULL"
	ApprovalStateTentative ApprovalState = "TENTATIVE"
	ApprovalStatePending   ApprovalState = "PENDING"
)

// Requirement is the per-row projection used for UI badges and filtering.
type Requirement struct {
	GLEntryID          uuid.UUID        `json:"gl_entry_id"`
	Status             ComplianceStatus `json:"status"`
	AttachmentsCount   int              `json:"attachments_count"`
	ApprovalsCount     int              `json:"approvals_count"`
	HasReceipt         bool             `json:"has_receipt"`
	HasApproval        bool             `json:"has_approval"`
	ReceiptRequired    bool             `json:"receipt_required"`
	ApprovalRequired   bool             `json:"approval_required"`
	Pending            bool             `json:"pending"`
	ApprovalState      ApprovalState    `json:"approval_state"`
	DocFlagUnallowable bool             `json:"doc_flag_unallowable"` // a linked document's text hits an unallowable rule
}
