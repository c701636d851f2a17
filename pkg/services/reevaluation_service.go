package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/reevaluation"
	"github.com/ekaya-inc/far-audit/pkg/repositories"
)

// ReviewSummary reports one re-evaluation pass.
type ReviewSummary struct {
	Reviewed    int                   `json:"reviewed"`
	ReEvaluated int                   `json:"re_evaluated"`
	Errors      int                   `json:"errors"`
	Changed     int                   `json:"changed"`
	Results     []*models.AuditResult `json:"results"`
}

// ReEvaluationService runs the LLM second pass and persists its results.
type ReEvaluationService interface {
	ReEvaluate(ctx context.Context, glEntryID uuid.UUID) (*models.AuditResult, error)
	// ReEvaluateAll walks the ledger in order, one row at a time. Nothing
	// is persisted when ctx is cancelled before the pass completes.
	ReEvaluateAll(ctx context.Context) (*ReviewSummary, error)
}

type reEvaluationService struct {
	gl        repositories.GLRepository
	docs      repositories.DocumentRepository
	links     LinkService
	evaluator *reevaluation.Evaluator
	listing   listingLoader
	logger    *zap.Logger
}

// NewReEvaluationService creates a ReEvaluationService.
func NewReEvaluationService(
	gl repositories.GLRepository,
	docs repositories.DocumentRepository,
	links LinkService,
	evaluator *reevaluation.Evaluator,
	fetchTimeout time.Duration,
	logger *zap.Logger,
) ReEvaluationService {
	return &reEvaluationService{
		gl:        gl,
		docs:      docs,
		links:     links,
		evaluator: evaluator,
		listing:   listingLoader{docs: docs, links: links, timeout: fetchTimeout},
		logger:    logger.Named("reevaluation-service"),
	}
}

var _ ReEvaluationService = (*reEvaluationService)(nil)

func (s *reEvaluationService) ReEvaluate(ctx context.Context, glEntryID uuid.UUID) (*models.AuditResult, error) {
	row, err := s.gl.Get(ctx, glEntryID)
	if err != nil {
		return nil, fmt.Errorf("gl entry %s: %w", glEntryID, err)
	}
	linked, err := s.linkedFor(ctx, glEntryID)
	if err != nil {
		return nil, err
	}

	result, err := s.evaluator.ReEvaluate(ctx, row.GLEntry, linked, row.Audit)
	if err != nil {
		return nil, err
	}
	if err := inTx(ctx, func(ctx context.Context) error {
		return s.gl.SaveAuditResults(ctx, []*models.AuditResult{result})
	}); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *reEvaluationService) ReEvaluateAll(ctx context.Context) (*ReviewSummary, error) {
	rows, err := s.gl.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	listing, err := s.listing.load(ctx)
	if err != nil {
		return nil, err
	}
	byGL := linkedDocuments(listing)

	summary := &ReviewSummary{Results: make([]*models.AuditResult, 0, len(rows))}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := s.evaluator.ReEvaluate(ctx, row.GLEntry, byGL[row.ID], row.Audit)
		if err != nil {
			s.logger.Info("Review pass cancelled, discarding results",
				zap.Int("reviewed", summary.Reviewed))
			return nil, err
		}

		summary.Reviewed++
		switch result.State {
		case models.StateReEvaluated:
			summary.ReEvaluated++
		case models.StateReEvaluationError:
			summary.Errors++
		}
		if row.Audit != nil && row.Audit.Status != result.Status {
			summary.Changed++
		}
		summary.Results = append(summary.Results, result)
	}

	if err := inTx(ctx, func(ctx context.Context) error {
		if err := s.gl.SaveAuditResults(ctx, summary.Results); err != nil {
			return err
		}
		return ctx.Err()
	}); err != nil {
		s.logger.Error("Failed to persist review results", zap.Error(err))
		return nil, err
	}

	s.logger.Info("Review pass complete",
		zap.Int("reviewed", summary.Reviewed),
		zap.Int("re_evaluated", summary.ReEvaluated),
		zap.Int("errors", summary.Errors),
		zap.Int("changed", summary.Changed))
	return summary, nil
}

func (s *reEvaluationService) linkedFor(ctx context.Context, glEntryID uuid.UUID) ([]models.LinkedDocument, error) {
	links, err := s.links.ListByGL(ctx, glEntryID)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}

	itemIDs := make([]uuid.UUID, len(links))
	for i, l := range links {
		itemIDs[i] = l.DocumentItemID
	}
	items, err := s.docs.GetItemsByIDs(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	docIDs := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		docIDs = append(docIDs, it.DocumentID)
	}
	docs, err := s.docs.GetDocumentsByIDs(ctx, docIDs)
	if err != nil {
		return nil, err
	}

	linked := make([]models.LinkedDocument, 0, len(links))
	for _, l := range links {
		item, ok := items[l.DocumentItemID]
		if !ok {
			continue
		}
		linked = append(linked, models.LinkedDocument{Document: docs[item.DocumentID], Item: item})
	}
	return linked, nil
}
