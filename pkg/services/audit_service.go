package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/apperrors"
	"github.com/ekaya-inc/far-audit/pkg/far"
	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/repositories"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// AuditService owns the GL store and the deterministic audit pass.
type AuditService interface {
	// SaveGL stores entries and audits them in the same transaction.
	SaveGL(ctx context.Context, entries []*models.GLEntry) ([]uuid.UUID, error)
	FetchGL(ctx context.Context, limit, offset int) (*models.GLPage, error)
	GetGL(ctx context.Context, id uuid.UUID) (*models.AuditedGLEntry, error)
	// AuditAll re-runs the deterministic auditor over every row, replacing
	// any earlier re-evaluation.
	AuditAll(ctx context.Context) ([]*models.AuditResult, error)
	// ClearGL removes every row and its links.
	ClearGL(ctx context.Context) (int64, error)
}

type auditService struct {
	gl     repositories.GLRepository
	links  LinkService
	rules  *far.RuleIndex
	cache  CandidateCache
	logger *zap.Logger
	now    func() time.Time
}

// NewAuditService creates an AuditService. cache may be nil.
func NewAuditService(
	gl repositories.GLRepository,
	links LinkService,
	rules *far.RuleIndex,
	cache CandidateCache,
	logger *zap.Logger,
) AuditService {
	return &auditService{
		gl:     gl,
		links:  links,
		rules:  rules,
		cache:  cache,
		logger: logger.Named("audit-service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ AuditService = (*auditService)(nil)

func (s *auditService) SaveGL(ctx context.Context, entries []*models.GLEntry) ([]uuid.UUID, error) {
	if len(entries) == 0 {
		return nil, apperrors.InvalidInput("entries", "at least one entry is required")
	}
	for i, e := range entries {
		if e == nil {
			return nil, apperrors.InvalidInput("entries", fmt.Sprintf("entry %d is null", i))
		}
	}

	var ids []uuid.UUID
	err := inTx(ctx, func(ctx context.Context) error {
		var err error
		if ids, err = s.gl.Save(ctx, entries); err != nil {
			return err
		}
		return s.gl.SaveAuditResults(ctx, far.AuditAll(entries, s.rules, s.now()))
	})
	if err != nil {
		s.logger.Error("Failed to save GL entries",
			zap.Int("count", len(entries)),
			zap.Error(err))
		return nil, err
	}

	if s.cache != nil {
		s.cache.Purge()
	}
	s.logger.Info("Saved GL entries", zap.Int("count", len(ids)))
	return ids, nil
}

func (s *auditService) FetchGL(ctx context.Context, limit, offset int) (*models.GLPage, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		return nil, apperrors.InvalidInput("limit", fmt.Sprintf("must be at most %d", maxPageLimit))
	}
	if offset < 0 {
		return nil, apperrors.InvalidInput("offset", "must not be negative")
	}

	page, err := s.gl.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("Failed to fetch GL entries", zap.Error(err))
		return nil, err
	}
	if page.Rows == nil {
		page.Rows = []*models.AuditedGLEntry{}
	}
	return page, nil
}

func (s *auditService) GetGL(ctx context.Context, id uuid.UUID) (*models.AuditedGLEntry, error) {
	return s.gl.Get(ctx, id)
}

func (s *auditService) AuditAll(ctx context.Context) ([]*models.AuditResult, error) {
	rows, err := s.gl.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]*models.GLEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.GLEntry
	}

	results := far.AuditAll(entries, s.rules, s.now())
	if err := inTx(ctx, func(ctx context.Context) error {
		return s.gl.SaveAuditResults(ctx, results)
	}); err != nil {
		s.logger.Error("Failed to save audit results", zap.Error(err))
		return nil, err
	}

	s.logger.Info("Audited GL entries",
		zap.Int("count", len(results)),
		zap.Int("rules", s.rules.Len()))
	return results, nil
}

func (s *auditService) ClearGL(ctx context.Context) (int64, error) {
	var deleted int64
	err := inTx(ctx, func(ctx context.Context) error {
		if _, err := s.links.RemoveAll(ctx); err != nil {
			return err
		}
		var err error
		deleted, err = s.gl.DeleteAll(ctx)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to clear GL entries", zap.Error(err))
		return 0, err
	}

	if s.cache != nil {
		s.cache.Purge()
	}
	s.logger.Info("Cleared GL entries", zap.Int64("count", deleted))
	return deleted, nil
}
