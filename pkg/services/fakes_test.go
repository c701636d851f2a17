package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/far-audit/pkg/apperrors"
	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/repositories"
)

// memStore backs the in-memory repositories used by service tests.
type memStore struct {
	mu    sync.Mutex
	gl    []*models.AuditedGLEntry
	docs  []*models.Document
	items []*models.DocumentItem
	links []*models.Link

	saveAuditCalls int
	saveAuditErr   error
	listItemsErr   error
	createLinkErr  error
	deleteGLErr    error
	deleteDocErr   error
}

func newMemStore() *memStore {
	return &memStore{}
}

func (m *memStore) repos() (repositories.GLRepository, repositories.DocumentRepository, repositories.LinkRepository) {
	return &memGLRepo{m}, &memDocRepo{m}, &memLinkRepo{m}
}

// --- GL ---

type memGLRepo struct{ m *memStore }

var _ repositories.GLRepository = (*memGLRepo)(nil)

func (r *memGLRepo) Save(_ context.Context, entries []*models.GLEntry) ([]uuid.UUID, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		r.m.gl = append(r.m.gl, &models.AuditedGLEntry{GLEntry: e})
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (r *memGLRepo) List(_ context.Context, limit, offset int) (*models.GLPage, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	page := &models.GLPage{Total: len(r.m.gl), Limit: limit, Offset: offset}
	for i := offset; i < len(r.m.gl) && i < offset+limit; i++ {
		page.Rows = append(page.Rows, r.m.gl[i])
	}
	return page, nil
}

func (r *memGLRepo) ListAll(_ context.Context) ([]*models.AuditedGLEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return append([]*models.AuditedGLEntry(nil), r.m.gl...), nil
}

func (r *memGLRepo) Get(_ context.Context, id uuid.UUID) (*models.AuditedGLEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, e := range r.m.gl {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memGLRepo) SaveAuditResults(_ context.Context, results []*models.AuditResult) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.saveAuditCalls++
	if r.m.saveAuditErr != nil {
		return r.m.saveAuditErr
	}
	byID := make(map[uuid.UUID]*models.AuditedGLEntry, len(r.m.gl))
	for _, e := range r.m.gl {
		byID[e.ID] = e
	}
	for _, res := range results {
		if _, ok := byID[res.GLEntryID]; !ok {
			return fmt.Errorf("gl entry %s: %w", res.GLEntryID, apperrors.ErrNotFound)
		}
	}
	for _, res := range results {
		byID[res.GLEntryID].Audit = res.Clone()
	}
	return nil
}

func (r *memGLRepo) DeleteAll(_ context.Context) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.deleteGLErr != nil {
		return 0, r.m.deleteGLErr
	}
	n := int64(len(r.m.gl))
	r.m.gl = nil
	return n, nil
}

// --- Documents ---

type memDocRepo struct{ m *memStore }

var _ repositories.DocumentRepository = (*memDocRepo)(nil)

func (r *memDocRepo) Create(_ context.Context, doc *models.Document, items []*models.DocumentItem) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.DocType == "" {
		doc.DocType = models.DocTypeUnknown
	}
	r.m.docs = append(r.m.docs, doc)
	for _, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.DocumentID = doc.ID
		r.m.items = append(r.m.items, it)
	}
	return nil
}

func (r *memDocRepo) GetDocument(_ context.Context, id uuid.UUID) (*models.Document, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, d := range r.m.docs {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memDocRepo) GetItem(_ context.Context, id uuid.UUID) (*models.DocumentItem, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, it := range r.m.items {
		if it.ID == id {
			return it, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memDocRepo) ListItems(ctx context.Context) ([]*models.DocumentItem, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.listItemsErr != nil {
		return nil, r.m.listItemsErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]*models.DocumentItem(nil), r.m.items...), nil
}

func (r *memDocRepo) ListDocuments(_ context.Context) ([]*models.Document, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return append([]*models.Document(nil), r.m.docs...), nil
}

func (r *memDocRepo) GetDocumentsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Document, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make(map[uuid.UUID]*models.Document)
	for _, id := range ids {
		for _, d := range r.m.docs {
			if d.ID == id {
				out[id] = d
			}
		}
	}
	return out, nil
}

func (r *memDocRepo) GetItemsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.DocumentItem, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make(map[uuid.UUID]*models.DocumentItem)
	for _, id := range ids {
		for _, it := range r.m.items {
			if it.ID == id {
				out[id] = it
			}
		}
	}
	return out, nil
}

func (r *memDocRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.deleteDocErr != nil {
		return r.m.deleteDocErr
	}
	for i, d := range r.m.docs {
		if d.ID != id {
			continue
		}
		r.m.docs = append(r.m.docs[:i], r.m.docs[i+1:]...)
		kept := r.m.items[:0]
		for _, it := range r.m.items {
			if it.DocumentID != id {
				kept = append(kept, it)
			}
		}
		r.m.items = kept
		return nil
	}
	return apperrors.ErrNotFound
}

// --- Links ---

type memLinkRepo struct{ m *memStore }

var _ repositories.LinkRepository = (*memLinkRepo)(nil)

func (r *memLinkRepo) Create(_ context.Context, link *models.Link) (*models.Link, bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.createLinkErr != nil {
		return nil, false, r.m.createLinkErr
	}
	for _, l := range r.m.links {
		if l.DocumentItemID == link.DocumentItemID && l.GLEntryID == link.GLEntryID {
			c := *l
			return &c, false, nil
		}
	}
	stored := *link
	stored.CreatedAt = time.Now().UTC()
	r.m.links = append(r.m.links, &stored)
	c := stored
	return &c, true, nil
}

func (r *memLinkRepo) Delete(_ context.Context, itemID, glEntryID uuid.UUID) (bool, error) {
	removed := r.remove(func(l *models.Link) bool {
		return l.DocumentItemID == itemID && l.GLEntryID == glEntryID
	})
	return len(removed) > 0, nil
}

func (r *memLinkRepo) ListByGL(_ context.Context, glEntryID uuid.UUID) ([]*models.Link, error) {
	return r.filter(func(l *models.Link) bool { return l.GLEntryID == glEntryID }), nil
}

func (r *memLinkRepo) ListByItem(_ context.Context, itemID uuid.UUID) ([]*models.Link, error) {
	return r.filter(func(l *models.Link) bool { return l.DocumentItemID == itemID }), nil
}

func (r *memLinkRepo) ListAll(_ context.Context) ([]*models.Link, error) {
	return r.filter(func(*models.Link) bool { return true }), nil
}

func (r *memLinkRepo) DeleteByGL(_ context.Context, glEntryID uuid.UUID) ([]*models.Link, error) {
	return r.remove(func(l *models.Link) bool { return l.GLEntryID == glEntryID }), nil
}

func (r *memLinkRepo) DeleteByItem(_ context.Context, itemID uuid.UUID) ([]*models.Link, error) {
	return r.remove(func(l *models.Link) bool { return l.DocumentItemID == itemID }), nil
}

func (r *memLinkRepo) DeleteByDocument(_ context.Context, documentID uuid.UUID) ([]*models.Link, error) {
	r.m.mu.Lock()
	owned := make(map[uuid.UUID]bool)
	for _, it := range r.m.items {
		if it.DocumentID == documentID {
			owned[it.ID] = true
		}
	}
	r.m.mu.Unlock()
	return r.remove(func(l *models.Link) bool { return owned[l.DocumentItemID] }), nil
}

func (r *memLinkRepo) DeleteAll(_ context.Context) ([]*models.Link, error) {
	return r.remove(func(*models.Link) bool { return true }), nil
}

func (r *memLinkRepo) filter(keep func(*models.Link) bool) []*models.Link {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Link
	for _, l := range r.m.links {
		if keep(l) {
			c := *l
			out = append(out, &c)
		}
	}
	return out
}

func (r *memLinkRepo) remove(match func(*models.Link) bool) []*models.Link {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var removed []*models.Link
	kept := r.m.links[:0]
	for _, l := range r.m.links {
		if match(l) {
			removed = append(removed, l)
		} else {
			kept = append(kept, l)
		}
	}
	r.m.links = kept
	return removed
}

// --- fixtures ---

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func amountPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func glRow(description, vendor, amount string, date *time.Time) *models.GLEntry {
	return &models.GLEntry{
		AccountNumber: "6100",
		Description:   description,
		Vendor:        vendor,
		Amount:        decimal.RequireFromString(amount),
		Date:          date,
	}
}

func receipt(filename, text string, item *models.DocumentItem) (*models.Document, []*models.DocumentItem) {
	return &models.Document{Filename: filename, DocType: models.DocTypeReceipt, TextContent: text}, []*models.DocumentItem{item}
}
