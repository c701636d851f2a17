// Package reevaluation runs the LLM second pass over GL rows that have
// approval evidence among their linked documents.
package reevaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/apperrors"
	"github.com/ekaya-inc/far-audit/pkg/approvals"
	"github.com/ekaya-inc/far-audit/pkg/audit"
	"github.com/ekaya-inc/far-audit/pkg/far"
	"github.com/ekaya-inc/far-audit/pkg/jsonutil"
	"github.com/ekaya-inc/far-audit/pkg/llm"
	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/prompts"
)

// Options tunes the chat call.
type Options struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultOptions returns temperature 0.1, 800 max tokens and a 60s deadline.
func DefaultOptions() Options {
	return Options{
		Temperature: 0.1,
		MaxTokens:   800,
		Timeout:     60 * time.Second,
	}
}

// Evaluator fuses the LLM verdict into an audit result.
type Evaluator struct {
	client   llm.ChatClient
	detector *approvals.Detector
	rules    *far.RuleIndex
	events   *audit.ComplianceEventLogger
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(
	client llm.ChatClient,
	detector *approvals.Detector,
	rules *far.RuleIndex,
	events *audit.ComplianceEventLogger,
	opts Options,
	logger *zap.Logger,
) *Evaluator {
	return &Evaluator{
		client:   client,
		detector: detector,
		rules:    rules,
		events:   events,
		opts:     opts,
		logger:   logger.Named("reevaluation"),
		now:      time.Now,
	}
}

// llmVerdict is the raw reply. Fields are RawMessage because models return
// numbers, booleans or strings interchangeably.
type llmVerdict struct {
	Status          json.RawMessage `json:"status"`
	FarIssue        json.RawMessage `json:"farIssue"`
	FarSection      json.RawMessage `json:"farSection"`
	Reasoning       json.RawMessage `json:"reasoning"`
	ApprovalsFound  json.RawMessage `json:"approvalsFound"`
	ApprovalSummary json.RawMessage `json:"approvalSummary"`
}

// outcome carries either a parsed verdict or the error that prevented one.
type outcome struct {
	verdict *llmVerdict
	err     *llm.Error
}

// ReEvaluate returns the audit result for gl after considering its linked
// documents. current is never mutated.
//
// Without approval evidence the current result is returned unchanged. LLM
// failures keep the current verdict, annotate the result and set state
// RE_EVALUATION_ERROR. The only error returned is the context's, when the
// caller cancelled, in which case the in-flight reply is discarded, or an
// invalid input error for a nil gl.
func (e *Evaluator) ReEvaluate(
	ctx context.Context,
	gl *models.GLEntry,
	linked []models.LinkedDocument,
	current *models.AuditResult,
) (*models.AuditResult, error) {
	if gl == nil {
		return nil, apperrors.InvalidInput("gl_entry", "is required")
	}
	if current == nil {
		v := far.AuditRow(gl, e.rules)
		current = &models.AuditResult{
			GLEntryID:  gl.ID,
			Status:     v.Status,
			FarIssue:   v.FarIssue,
			FarSection: v.FarSection,
			State:      models.StateDetermined,
			AuditedAt:  e.now(),
		}
	}

	if len(linked) == 0 || !e.detector.AnyApproval(linked) {
		return current.Clone(), nil
	}

	out := e.ask(ctx, gl, linked, current)
	if err := ctx.Err(); err != nil {
		e.logger.Debug("Re-evaluation cancelled, discarding reply",
			zap.String("gl_entry_id", gl.ID.String()))
		return nil, err
	}

	if out.err != nil {
		return e.failed(gl, current, out.err), nil
	}
	return e.merge(gl, linked, current, out.verdict), nil
}

func (e *Evaluator) ask(ctx context.Context, gl *models.GLEntry, linked []models.LinkedDocument, current *models.AuditResult) outcome {
	callCtx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: prompts.BuildReEvaluationSystemPrompt()},
		{Role: llm.RoleUser, Content: e.userPrompt(gl, linked, current)},
	}

	result, err := e.client.Chat(callCtx, messages, llm.ChatOptions{
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return outcome{err: llm.ClassifyError(err)}
	}

	verdict, err := llm.ParseJSONResponse[llmVerdict](result.Content)
	if err != nil {
		return outcome{err: llm.NewError(llm.ErrorTypeResponse, "response is not a JSON object", false, err)}
	}
	return outcome{verdict: &verdict}
}

func (e *Evaluator) failed(gl *models.GLEntry, current *models.AuditResult, err *llm.Error) *models.AuditResult {
	result := current.Clone()
	result.State = models.StateReEvaluationError
	result.ReEvaluationError = err.Error()
	result.AuditedAt = e.now()

	e.logger.Warn("LLM re-evaluation failed",
		zap.String("gl_entry_id", gl.ID.String()),
		zap.String("error_type", string(err.Type)),
		zap.Error(err))
	if e.events != nil {
		e.events.LogReEvaluationFailure(gl.ID, string(err.Type), err.Error())
	}
	return result
}

func (e *Evaluator) merge(gl *models.GLEntry, linked []models.LinkedDocument, current *models.AuditResult, v *llmVerdict) *models.AuditResult {
	result := current.Clone()
	result.State = models.StateReEvaluated
	result.ReEvaluationError = ""
	result.ApprovalBasedReEvaluation = true
	result.ReEvaluationReason = reason(linked)
	result.GPTReasoning = jsonutil.FlexibleStringValue(v.Reasoning)
	result.ApprovalsFound = jsonutil.FlexibleBoolValue(v.ApprovalsFound)
	result.ApprovalSummary = jsonutil.FlexibleStringValue(v.ApprovalSummary)
	result.AuditedAt = e.now()

	rawStatus := jsonutil.FlexibleStringValue(v.Status)
	status, err := models.ParseComplianceStatus(rawStatus)
	if err != nil {
		return e.failed(gl, current, llm.NewError(llm.ErrorTypeResponse,
			fmt.Sprintf("invalid status %q, kept %s", rawStatus, current.Status), false, nil))
	}
	result.Status = status
	result.UnknownFarSection = false

	if issue := strings.TrimSpace(jsonutil.FlexibleStringValue(v.FarIssue)); issue != "" {
		result.FarIssue = issue
	}
	if section := strings.TrimSpace(jsonutil.FlexibleStringValue(v.FarSection)); section != "" {
		result.FarSection = section
		if e.rules == nil || !e.rules.HasSection(section) {
			result.UnknownFarSection = true
			if e.events != nil {
				e.events.LogUnknownFarSection(gl.ID, section)
			}
		}
	}

	if result.Status != current.Status && e.events != nil {
		e.events.LogStatusChange(gl.ID, audit.StatusChangeDetails{
			From:       current.Status,
			To:         result.Status,
			FarSection: result.FarSection,
			Reason:     result.GPTReasoning,
		})
	}
	return result
}

func (e *Evaluator) userPrompt(gl *models.GLEntry, linked []models.LinkedDocument, current *models.AuditResult) string {
	glCtx := prompts.GLContext{
		Vendor:      gl.Vendor,
		Amount:      gl.Amount.StringFixed(2),
		Description: gl.Description,
		Account:     gl.AccountNumber,
		Category:    gl.Category,
	}
	if gl.Date != nil {
		glCtx.Date = gl.Date.Format(time.DateOnly)
	}

	docs := make([]prompts.DocumentContext, 0, len(linked))
	for _, l := range linked {
		docs = append(docs, e.documentContext(l))
	}

	var rules []prompts.RuleContext
	if e.rules != nil {
		for _, r := range e.rules.Rules() {
			rules = append(rules, prompts.RuleContext{Section: r.Section, Title: r.Title, Severity: string(r.Severity)})
		}
	}

	return prompts.BuildReEvaluationUserPrompt(glCtx, prompts.AuditContext{
		Status:     string(current.Status),
		FarIssue:   current.FarIssue,
		FarSection: current.FarSection,
	}, docs, rules)
}

func (e *Evaluator) documentContext(l models.LinkedDocument) prompts.DocumentContext {
	var dc prompts.DocumentContext
	if item := l.Item; item != nil {
		dc.Vendor = item.Vendor
		if item.Date != nil {
			dc.Date = item.Date.Format(time.DateOnly)
		}
		if item.Amount != nil {
			dc.Amount = item.Amount.StringFixed(2)
		}
	}
	if doc := l.Document; doc != nil {
		dc.Filename = doc.Filename
		dc.DocType = string(doc.DocType)
		dc.RawOCRText = doc.RawOCRText()
		dc.ProcessedText = strings.TrimPrefix(doc.TextContent, models.OCRTextMarker)
		for _, a := range e.detector.FindApprovals(doc) {
			dc.Approvals = append(dc.Approvals, formatApproval(a))
		}
	}
	return dc
}

func formatApproval(a models.DocumentApproval) string {
	var b strings.Builder
	b.WriteString(a.Decision)
	if a.Approver != "" {
		b.WriteString(" by " + a.Approver)
	}
	if a.Date != "" {
		b.WriteString(" on " + a.Date)
	}
	if a.Summary != "" {
		b.WriteString(": " + a.Summary)
	}
	return b.String()
}

func reason(linked []models.LinkedDocument) string {
	var names []string
	seen := make(map[string]bool)
	for _, l := range linked {
		if l.Document == nil || seen[l.Document.Filename] {
			continue
		}
		seen[l.Document.Filename] = true
		names = append(names, l.Document.Filename)
	}
	if len(names) == 0 {
		return "Approval evidence found in linked documents"
	}
	return "Approval evidence found in linked documents: " + strings.Join(names, ", ")
}
