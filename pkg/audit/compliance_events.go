// Package audit emits structured compliance events: verdict changes made by
// LLM re-evaluation, re-evaluation failures, unknown FAR citations, and link
// changes. Events are logged as JSON under the "compliance_audit" namespace
// so they can be filtered out of the application log.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/models"
)

// EventType categorizes compliance events for filtering.
type EventType string

const (
	EventStatusChanged      EventType = "status_changed"
	EventReEvaluationFailed EventType = "re_evaluation_failed"
	EventUnknownFarSection  EventType = "unknown_far_section"
	EventLinkCreated        EventType = "link_created"
	EventLinkRemoved        EventType = "link_removed"
	EventRuleIndexDegraded  EventType = "rule_index_degraded"
)

// Event is one compliance event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	GLEntryID uuid.UUID `json:"gl_entry_id,omitempty"`
	Details   any       `json:"details"`
	Severity  string    `json:"severity"` // info, warning, critical
}

// StatusChangeDetails describes a verdict replaced by re-evaluation.
type StatusChangeDetails struct {
	From       models.ComplianceStatus `json:"from"`
	To         models.ComplianceStatus `json:"to"`
	FarSection string                  `json:"far_section,omitempty"`
	Reason     string                  `json:"reason,omitempty"`
}

// LinkDetails identifies a link.
type LinkDetails struct {
	DocumentItemID uuid.UUID         `json:"document_item_id"`
	Source         models.LinkSource `json:"source,omitempty"`
	Cause          string            `json:"cause,omitempty"`
}

// ComplianceEventLogger writes compliance events.
type ComplianceEventLogger struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewComplianceEventLogger creates an event logger under the
// "compliance_audit" namespace.
func NewComplianceEventLogger(logger *zap.Logger) *ComplianceEventLogger {
	return &ComplianceEventLogger{
		logger: logger.Named("compliance_audit"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (a *ComplianceEventLogger) event(t EventType, glID uuid.UUID, severity string, details any) string {
	eventJSON, _ := json.Marshal(Event{
		Timestamp: a.now(),
		EventType: t,
		GLEntryID: glID,
		Details:   details,
		Severity:  severity,
	})
	return string(eventJSON)
}

// LogStatusChange records a status replaced by LLM re-evaluation.
func (a *ComplianceEventLogger) LogStatusChange(glID uuid.UUID, details StatusChangeDetails) {
	severity := "info"
	if details.To == models.StatusRed {
		severity = "warning"
	}
	a.logger.Info("Compliance status changed by re-evaluation",
		zap.String("event_json", a.event(EventStatusChanged, glID, severity, details)),
		zap.String("gl_entry_id", glID.String()),
		zap.String("from", string(details.From)),
		zap.String("to", string(details.To)),
		zap.String("severity", severity),
	)
}

// LogReEvaluationFailure records an LLM failure. The deterministic verdict
// was kept.
func (a *ComplianceEventLogger) LogReEvaluationFailure(glID uuid.UUID, errType string, message string) {
	details := map[string]string{"error_type": errType, "error": message}
	a.logger.Warn("Re-evaluation failed, deterministic verdict kept",
		zap.String("event_json", a.event(EventReEvaluationFailed, glID, "warning", details)),
		zap.String("gl_entry_id", glID.String()),
		zap.String("error_type", errType),
		zap.String("error", message),
		zap.String("severity", "warning"),
	)
}

// LogUnknownFarSection records an LLM citation that is not in the rule index.
func (a *ComplianceEventLogger) LogUnknownFarSection(glID uuid.UUID, section string) {
	details := map[string]string{"far_section": section}
	a.logger.Warn("LLM cited a FAR section outside the rule index",
		zap.String("event_json", a.event(EventUnknownFarSection, glID, "warning", details)),
		zap.String("gl_entry_id", glID.String()),
		zap.String("far_section", section),
		zap.String("severity", "warning"),
	)
}

// LogLinkCreated records a new document-item link.
func (a *ComplianceEventLogger) LogLinkCreated(link *models.Link) {
	details := LinkDetails{DocumentItemID: link.DocumentItemID, Source: link.Source}
	a.logger.Info("Document linked",
		zap.String("event_json", a.event(EventLinkCreated, link.GLEntryID, "info", details)),
		zap.String("gl_entry_id", link.GLEntryID.String()),
		zap.String("document_item_id", link.DocumentItemID.String()),
		zap.String("source", string(link.Source)),
	)
}

// LogLinkRemoved records removed links. cause is "unlink" or the kind of
// entity whose deletion cascaded.
func (a *ComplianceEventLogger) LogLinkRemoved(itemID, glID uuid.UUID, cause string) {
	details := LinkDetails{DocumentItemID: itemID, Cause: cause}
	a.logger.Info("Document unlinked",
		zap.String("event_json", a.event(EventLinkRemoved, glID, "info", details)),
		zap.String("gl_entry_id", glID.String()),
		zap.String("document_item_id", itemID.String()),
		zap.String("cause", cause),
	)
}

// LogRuleIndexDegraded records that auditing runs against an empty rule
// index, so every row classifies GREEN.
func (a *ComplianceEventLogger) LogRuleIndexDegraded(err error) {
	details := map[string]string{"error": err.Error()}
	a.logger.Error("FAR rule index unavailable, all rows will audit GREEN",
		zap.String("event_json", a.event(EventRuleIndexDegraded, uuid.Nil, "critical", details)),
		zap.Error(err),
		zap.String("severity", "critical"),
	)
}
