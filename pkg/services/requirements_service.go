package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/repositories"
	"github.com/ekaya-inc/far-audit/pkg/requirements"
)

// RequirementsService serves the Requirements Projection.
type RequirementsService interface {
	List(ctx context.Context) ([]*models.Requirement, error)
}

type requirementsService struct {
	gl        repositories.GLRepository
	projector *requirements.Projector
	listing   listingLoader
	logger    *zap.Logger
}

// NewRequirementsService creates a RequirementsService.
func NewRequirementsService(
	gl repositories.GLRepository,
	docs repositories.DocumentRepository,
	links LinkService,
	projector *requirements.Projector,
	fetchTimeout time.Duration,
	logger *zap.Logger,
) RequirementsService {
	return &requirementsService{
		gl:        gl,
		projector: projector,
		listing:   listingLoader{docs: docs, links: links, timeout: fetchTimeout},
		logger:    logger.Named("requirements-service"),
	}
}

var _ RequirementsService = (*requirementsService)(nil)

func (s *requirementsService) List(ctx context.Context) ([]*models.Requirement, error) {
	rows, err := s.gl.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	listing, err := s.listing.load(ctx)
	if err != nil {
		s.logger.Error("Failed to load document listing", zap.Error(err))
		return nil, err
	}

	reqs := s.projector.Project(rows, listing)
	if reqs == nil {
		reqs = []*models.Requirement{}
	}
	return reqs, nil
}
