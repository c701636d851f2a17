package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/far"
	"github.com/ekaya-inc/far-audit/pkg/matching"
	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/services"
)

const defaultCandidateLimit = 10

// AuditToolDeps contains dependencies for the audit tools.
type AuditToolDeps struct {
	Rules               *far.RuleIndex
	MatchingService     services.MatchingService
	RequirementsService services.RequirementsService
	Scope               ScopeFunc
	Logger              *zap.Logger
}

// RegisterAuditTools registers classification, matching and requirements tools.
func RegisterAuditTools(s *server.MCPServer, deps *AuditToolDeps) {
	registerClassifyDescriptionTool(s, deps)
	registerRankCandidatesTool(s, deps)
	registerGetRequirementsTool(s, deps)
}

type classifyResult struct {
	Description string `json:"description"`
	far.Verdict
	Keyword string `json:"keyword,omitempty"`
}

func registerClassifyDescriptionTool(s *server.MCPServer, deps *AuditToolDeps) {
	tool := mcp.NewTool(
		"classify_description",
		mcp.WithDescription(
			"Classifies a GL description against the FAR Part 31 rule index. "+
				"Returns GREEN, YELLOW or RED with the matched FAR section. Amounts are never considered.",
		),
		mcp.WithString(
			"description",
			mcp.Required(),
			mcp.Description("GL line description, e.g. 'Alcohol for client dinner'"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		description, err := req.RequireString("description")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		description = trimString(description)
		if description == "" {
			return NewErrorResult("invalid_parameters", "parameter 'description' cannot be empty"), nil
		}

		result := classifyResult{Description: description, Verdict: far.Classify(description, deps.Rules)}
		if m, ok := deps.Rules.FirstMatch(description); ok {
			result.Keyword = m.Keyword
		}
		return jsonResult("classify_description", result)
	})
}

type rankCandidatesResult struct {
	GLEntryID  uuid.UUID            `json:"gl_entry_id"`
	Candidates []matching.Candidate `json:"candidates"`
	Total      int                  `json:"total"`
}

func registerRankCandidatesTool(s *server.MCPServer, deps *AuditToolDeps) {
	tool := mcp.NewTool(
		"rank_candidates",
		mcp.WithDescription(
			"Ranks unlinked document items (receipts, invoices, approvals) as candidates for a GL entry, best first. "+
				"The top candidate carries best=true.",
		),
		mcp.WithString(
			"gl_entry_id",
			mcp.Required(),
			mcp.Description("UUID of the GL entry"),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description(fmt.Sprintf("Maximum candidates to return (default %d)", defaultCandidateLimit)),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("gl_entry_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		glEntryID, err := uuid.Parse(trimString(raw))
		if err != nil {
			return NewErrorResult("invalid_parameters", fmt.Sprintf("gl_entry_id %q is not a UUID", raw)), nil
		}
		limit := defaultCandidateLimit
		if v, ok := getOptionalFloat(req, "limit"); ok {
			if v < 1 {
				return NewErrorResult("invalid_parameters", "limit must be at least 1"), nil
			}
			limit = int(v)
		}

		ctx, release, err := acquireScope(ctx, deps.Scope)
		if err != nil {
			return nil, err
		}
		defer release()

		candidates, err := deps.MatchingService.Suggestions(ctx, glEntryID)
		if err != nil {
			if result := AsErrorResult(err); result != nil {
				return result, nil
			}
			return nil, fmt.Errorf("rank candidates: %w", err)
		}

		total := len(candidates)
		if len(candidates) > limit {
			candidates = candidates[:limit]
		}
		if candidates == nil {
			candidates = []matching.Candidate{}
		}
		deps.Logger.Debug("Ranked candidates",
			zap.String("gl_entry_id", glEntryID.String()),
			zap.Int("total", total))
		return jsonResult("rank_candidates", rankCandidatesResult{GLEntryID: glEntryID, Candidates: candidates, Total: total})
	})
}

type requirementsResult struct {
	Requirements []*models.Requirement `json:"requirements"`
	Pending      int                   `json:"pending"`
	Total        int                   `json:"total"`
}

func registerGetRequirementsTool(s *server.MCPServer, deps *AuditToolDeps) {
	tool := mcp.NewTool(
		"get_requirements",
		mcp.WithDescription(
			"Returns the documentation requirements of every GL row: receipt and approval needs, "+
				"attachment counts and whether the row is still pending.",
		),
		mcp.WithBoolean(
			"pending_only",
			mcp.Description("Only return rows still missing required documentation (default false)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pendingOnly := getOptionalBool(req, "pending_only", false)

		ctx, release, err := acquireScope(ctx, deps.Scope)
		if err != nil {
			return nil, err
		}
		defer release()

		reqs, err := deps.RequirementsService.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list requirements: %w", err)
		}

		result := requirementsResult{Requirements: make([]*models.Requirement, 0, len(reqs)), Total: len(reqs)}
		for _, r := range reqs {
			if r.Pending {
				result.Pending++
			} else if pendingOnly {
				continue
			}
			result.Requirements = append(result.Requirements, r)
		}
		return jsonResult("get_requirements", result)
	})
}
