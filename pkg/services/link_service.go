package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/apperrors"
	"github.com/ekaya-inc/far-audit/pkg/audit"
	"github.com/ekaya-inc/far-audit/pkg/database"
	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/repositories"
)

// LinkChangeListener is called with the GL entry whose links changed.
type LinkChangeListener func(glEntryID uuid.UUID)

// CauseUnlink is the removal cause recorded for explicit unlinks.
const CauseUnlink = "unlink"

// LinkService is the Link Registry: the only writer of document item links.
// Link and Unlink on the same GL entry are serialized.
type LinkService interface {
	// Link is idempotent; linking an existing pair returns the stored link.
	Link(ctx context.Context, itemID, glEntryID uuid.UUID, source models.LinkSource) (*models.Link, error)
	// Unlink reports whether a link was removed. Unlinking a missing pair is a no-op.
	Unlink(ctx context.Context, itemID, glEntryID uuid.UUID) (bool, error)
	ListByGL(ctx context.Context, glEntryID uuid.UUID) ([]*models.Link, error)
	ListByItem(ctx context.Context, itemID uuid.UUID) ([]*models.Link, error)
	ListAll(ctx context.Context) ([]*models.Link, error)
	// CascadeOnDelete removes every link owned by ref. Call it before
	// deleting the entity itself.
	CascadeOnDelete(ctx context.Context, ref models.EntityRef) ([]*models.Link, error)
	// RemoveAll drops every link, as when the ledger is cleared.
	RemoveAll(ctx context.Context) ([]*models.Link, error)
	Subscribe(listener LinkChangeListener)
}

type linkService struct {
	links  repositories.LinkRepository
	gl     repositories.GLRepository
	docs   repositories.DocumentRepository
	events *audit.ComplianceEventLogger
	logger *zap.Logger

	locks *keyedMutex

	listenersMu sync.RWMutex
	listeners   []LinkChangeListener
}

// NewLinkService creates a LinkService.
func NewLinkService(
	links repositories.LinkRepository,
	gl repositories.GLRepository,
	docs repositories.DocumentRepository,
	events *audit.ComplianceEventLogger,
	logger *zap.Logger,
) LinkService {
	return &linkService{
		links:  links,
		gl:     gl,
		docs:   docs,
		events: events,
		logger: logger.Named("link-service"),
		locks:  newKeyedMutex(),
	}
}

var _ LinkService = (*linkService)(nil)

func (s *linkService) Link(ctx context.Context, itemID, glEntryID uuid.UUID, source models.LinkSource) (*models.Link, error) {
	if err := validatePair(itemID, glEntryID); err != nil {
		return nil, err
	}
	if source == "" {
		source = models.LinkSourceManual
	}
	if !source.Valid() {
		return nil, apperrors.InvalidInput("source", fmt.Sprintf("%q is not auto or manual", source))
	}

	unlock := s.locks.Lock(glEntryID)
	defer unlock()

	if _, err := s.gl.Get(ctx, glEntryID); err != nil {
		return nil, fmt.Errorf("gl entry %s: %w", glEntryID, err)
	}
	if _, err := s.docs.GetItem(ctx, itemID); err != nil {
		return nil, fmt.Errorf("document item %s: %w", itemID, err)
	}

	link, created, err := s.links.Create(ctx, &models.Link{
		DocumentItemID: itemID,
		GLEntryID:      glEntryID,
		Source:         source,
	})
	if err != nil {
		s.logger.Error("Failed to create link",
			zap.String("gl_entry_id", glEntryID.String()),
			zap.String("document_item_id", itemID.String()),
			zap.Error(err))
		return nil, err
	}
	if !created {
		s.logger.Debug("Link already exists",
			zap.String("gl_entry_id", glEntryID.String()),
			zap.String("document_item_id", itemID.String()))
		return link, nil
	}

	if s.events != nil {
		s.events.LogLinkCreated(link)
	}
	s.notify(glEntryID)
	return link, nil
}

func (s *linkService) Unlink(ctx context.Context, itemID, glEntryID uuid.UUID) (bool, error) {
	if err := validatePair(itemID, glEntryID); err != nil {
		return false, err
	}

	unlock := s.locks.Lock(glEntryID)
	defer unlock()

	removed, err := s.links.Delete(ctx, itemID, glEntryID)
	if err != nil {
		s.logger.Error("Failed to delete link",
			zap.String("gl_entry_id", glEntryID.String()),
			zap.String("document_item_id", itemID.String()),
			zap.Error(err))
		return false, err
	}
	if !removed {
		return false, nil
	}

	if s.events != nil {
		s.events.LogLinkRemoved(itemID, glEntryID, CauseUnlink)
	}
	s.notify(glEntryID)
	return true, nil
}

func (s *linkService) ListByGL(ctx context.Context, glEntryID uuid.UUID) ([]*models.Link, error) {
	return s.links.ListByGL(ctx, glEntryID)
}

func (s *linkService) ListByItem(ctx context.Context, itemID uuid.UUID) ([]*models.Link, error) {
	return s.links.ListByItem(ctx, itemID)
}

func (s *linkService) ListAll(ctx context.Context) ([]*models.Link, error) {
	return s.links.ListAll(ctx)
}

func (s *linkService) CascadeOnDelete(ctx context.Context, ref models.EntityRef) ([]*models.Link, error) {
	if ref.ID == uuid.Nil {
		return nil, apperrors.InvalidInput("id", "entity id is required")
	}

	var (
		removed []*models.Link
		err     error
	)
	switch ref.Kind {
	case models.EntityGLEntry:
		unlock := s.locks.Lock(ref.ID)
		removed, err = s.links.DeleteByGL(ctx, ref.ID)
		unlock()
	case models.EntityDocumentItem:
		removed, err = s.links.DeleteByItem(ctx, ref.ID)
	case models.EntityDocument:
		removed, err = s.links.DeleteByDocument(ctx, ref.ID)
	default:
		return nil, apperrors.InvalidInput("kind", fmt.Sprintf("unknown entity kind %q", ref.Kind))
	}
	if err != nil {
		s.logger.Error("Failed to cascade link deletion",
			zap.String("entity_kind", string(ref.Kind)),
			zap.String("entity_id", ref.ID.String()),
			zap.Error(err))
		return nil, err
	}

	s.removed(ctx, removed, string(ref.Kind))
	return removed, nil
}

func (s *linkService) RemoveAll(ctx context.Context) ([]*models.Link, error) {
	removed, err := s.links.DeleteAll(ctx)
	if err != nil {
		s.logger.Error("Failed to remove all links", zap.Error(err))
		return nil, err
	}
	s.removed(ctx, removed, string(models.EntityGLEntry))
	return removed, nil
}

func (s *linkService) Subscribe(listener LinkChangeListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// removed emits one event per link and notifies once per GL entry. Inside
// inTx both wait for the commit.
func (s *linkService) removed(ctx context.Context, links []*models.Link, cause string) {
	if len(links) == 0 {
		return
	}
	afterCommit(ctx, func() {
		notified := make(map[uuid.UUID]bool, len(links))
		for _, l := range links {
			if s.events != nil {
				s.events.LogLinkRemoved(l.DocumentItemID, l.GLEntryID, cause)
			}
			if !notified[l.GLEntryID] {
				notified[l.GLEntryID] = true
				s.notify(l.GLEntryID)
			}
		}
		s.logger.Info("Removed links",
			zap.String("cause", cause),
			zap.Int("count", len(links)))
	})
}

func (s *linkService) notify(glEntryID uuid.UUID) {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	for _, l := range s.listeners {
		l(glEntryID)
	}
}

func validatePair(itemID, glEntryID uuid.UUID) error {
	if itemID == uuid.Nil {
		return apperrors.InvalidInput("document_item_id", "is required")
	}
	if glEntryID == uuid.Nil {
		return apperrors.InvalidInput("gl_entry_id", "is required")
	}
	return nil
}

type pendingKey struct{}

// pending holds side effects that must not run before the enclosing
// transaction commits.
type pending struct {
	effects []func()
}

// afterCommit runs effect once the enclosing inTx succeeds, or immediately
// outside one.
func afterCommit(ctx context.Context, effect func()) {
	if p, ok := ctx.Value(pendingKey{}).(*pending); ok {
		p.effects = append(p.effects, effect)
		return
	}
	effect()
}

// inTx runs fn in a store transaction when ctx carries a scope, and
// directly otherwise. Effects queued with afterCommit run only when fn
// succeeds and the transaction commits; a nested call joins the outer one.
func inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, nested := ctx.Value(pendingKey{}).(*pending); nested {
		return fn(ctx)
	}

	p := &pending{}
	ctx = context.WithValue(ctx, pendingKey{}, p)

	var err error
	if _, ok := database.GetScope(ctx); ok {
		err = database.InTx(ctx, fn)
	} else {
		err = fn(ctx)
	}
	if err != nil {
		return err
	}
	for _, effect := range p.effects {
		effect()
	}
	return nil
}
