package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/far-audit/pkg/approvals"
	"github.com/ekaya-inc/far-audit/pkg/audit"
	"github.com/ekaya-inc/far-audit/pkg/far"
	"github.com/ekaya-inc/far-audit/pkg/llm"
	"github.com/ekaya-inc/far-audit/pkg/reevaluation"
	"github.com/ekaya-inc/far-audit/pkg/requirements"
)

// testServices wires every service against one memStore.
type testServices struct {
	store        *memStore
	logs         *observer.ObservedLogs
	rules        *far.RuleIndex
	llm          *llm.MockChatClient
	links        LinkService
	matching     MatchingService
	audit        AuditService
	documents    DocumentService
	review       ReEvaluationService
	requirements RequirementsService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	builtin, err := far.BuiltinRules()
	require.NoError(t, err)
	rules, err := far.NewRuleIndex(builtin, nil)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	events := audit.NewComplianceEventLogger(logger)
	detector := approvals.NewDetector(logger)

	store := newMemStore()
	glRepo, docRepo, linkRepo := store.repos()

	links := NewLinkService(linkRepo, glRepo, docRepo, events, logger)
	matchingSvc, err := NewMatchingService(glRepo, docRepo, links, MatchingConfig{AutoLinkThreshold: 6.0, CacheSize: 16}, logger)
	require.NoError(t, err)

	chat := llm.NewMockChatClient()
	evaluator := reevaluation.NewEvaluator(chat, detector, rules, events, reevaluation.DefaultOptions(), logger)

	return &testServices{
		store:        store,
		logs:         logs,
		rules:        rules,
		llm:          chat,
		links:        links,
		matching:     matchingSvc,
		audit:        NewAuditService(glRepo, links, rules, matchingSvc, logger),
		documents:    NewDocumentService(docRepo, links, matchingSvc, 5*time.Second, logger),
		review:       NewReEvaluationService(glRepo, docRepo, links, evaluator, 5*time.Second, logger),
		requirements: NewRequirementsService(glRepo, docRepo, links, requirements.NewProjector(detector, rules, requirements.Policy{}), 5*time.Second, logger),
	}
}

func (s *testServices) events(message string) []observer.LoggedEntry {
	return s.logs.FilterLoggerName("compliance_audit").FilterMessage(message).All()
}
