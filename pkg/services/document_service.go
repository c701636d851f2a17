package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/apperrors"
	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/repositories"
)

// IngestResult reports what Ingest stored and linked. AutoLinkError is set
// when the document was stored but auto-linking stopped early.
type IngestResult struct {
	Document      *models.Document       `json:"document"`
	Items         []*models.DocumentItem `json:"items"`
	Links         []*models.Link         `json:"links"`
	AutoLinkError string                 `json:"auto_link_error,omitempty"`
}

// DocumentService owns the Document Item Store.
type DocumentService interface {
	// Ingest stores a document with its parsed items, then auto-links them.
	Ingest(ctx context.Context, doc *models.Document, items []*models.DocumentItem) (*IngestResult, error)
	// ListItems returns the {items, links, documents} snapshot.
	ListItems(ctx context.Context) (*models.ItemListing, error)
	// Delete removes the document, its items and their links.
	Delete(ctx context.Context, id uuid.UUID) error
}

type documentService struct {
	docs     repositories.DocumentRepository
	links    LinkService
	matching MatchingService
	listing  listingLoader
	logger   *zap.Logger
}

// NewDocumentService creates a DocumentService. Store reads are bounded by
// fetchTimeout.
func NewDocumentService(
	docs repositories.DocumentRepository,
	links LinkService,
	matching MatchingService,
	fetchTimeout time.Duration,
	logger *zap.Logger,
) DocumentService {
	return &documentService{
		docs:     docs,
		links:    links,
		matching: matching,
		listing:  listingLoader{docs: docs, links: links, timeout: fetchTimeout},
		logger:   logger.Named("document-service"),
	}
}

var _ DocumentService = (*documentService)(nil)

func (s *documentService) Ingest(ctx context.Context, doc *models.Document, items []*models.DocumentItem) (*IngestResult, error) {
	if err := validateDocument(doc, items); err != nil {
		return nil, err
	}

	if err := s.docs.Create(ctx, doc, items); err != nil {
		s.logger.Error("Failed to store document",
			zap.String("filename", doc.Filename),
			zap.Error(err))
		return nil, err
	}
	s.matching.Purge()

	result := &IngestResult{Document: doc, Items: items, Links: []*models.Link{}}
	links, err := s.matching.AutoLink(ctx, items)
	if err != nil {
		s.logger.Warn("Auto-link stopped early",
			zap.String("document_id", doc.ID.String()),
			zap.Int("linked", len(links)),
			zap.Error(err))
		result.AutoLinkError = err.Error()
	}
	if links != nil {
		result.Links = links
	}

	s.logger.Info("Ingested document",
		zap.String("document_id", doc.ID.String()),
		zap.String("doc_type", string(doc.DocType)),
		zap.Int("items", len(items)),
		zap.Int("auto_links", len(result.Links)))
	return result, nil
}

func (s *documentService) ListItems(ctx context.Context) (*models.ItemListing, error) {
	listing, err := s.listing.load(ctx)
	if err != nil {
		s.logger.Error("Failed to list document items", zap.Error(err))
		return nil, err
	}
	return listing, nil
}

func (s *documentService) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return apperrors.InvalidInput("id", "is required")
	}

	err := inTx(ctx, func(ctx context.Context) error {
		if _, err := s.docs.GetDocument(ctx, id); err != nil {
			return fmt.Errorf("document %s: %w", id, err)
		}
		if _, err := s.links.CascadeOnDelete(ctx, models.EntityRef{Kind: models.EntityDocument, ID: id}); err != nil {
			return err
		}
		return s.docs.Delete(ctx, id)
	})
	if err != nil {
		s.logger.Error("Failed to delete document",
			zap.String("document_id", id.String()),
			zap.Error(err))
		return err
	}

	s.matching.Purge()
	return nil
}

func validateDocument(doc *models.Document, items []*models.DocumentItem) error {
	if doc == nil {
		return apperrors.InvalidInput("document", "is required")
	}
	if strings.TrimSpace(doc.Filename) == "" {
		return apperrors.InvalidInput("filename", "is required")
	}
	if doc.DocType != "" && !doc.DocType.Valid() {
		return apperrors.InvalidInput("doc_type", fmt.Sprintf("unknown type %q", doc.DocType))
	}
	for i, it := range items {
		if it == nil {
			return apperrors.InvalidInput("items", fmt.Sprintf("item %d is null", i))
		}
		if !it.Kind.Valid() {
			return apperrors.InvalidInput("kind", fmt.Sprintf("item %d has unknown kind %q", i, it.Kind))
		}
	}
	return nil
}
