package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/far-audit/pkg/database"
	"github.com/ekaya-inc/far-audit/pkg/models"
)

// LinkRepository provides data access for document item links.
type LinkRepository interface {
	// Create inserts the link. On a duplicate pair it returns the stored link
	// and created=false.
	Create(ctx context.Context, link *models.Link) (stored *models.Link, created bool, err error)
	// Delete removes the pair and reports whether a row existed.
	Delete(ctx context.Context, itemID, glEntryID uuid.UUID) (bool, error)
	ListByGL(ctx context.Context, glEntryID uuid.UUID) ([]*models.Link, error)
	ListByItem(ctx context.Context, itemID uuid.UUID) ([]*models.Link, error)
	ListAll(ctx context.Context) ([]*models.Link, error)
	// DeleteByGL, DeleteByItem and DeleteByDocument return the removed links.
	DeleteByGL(ctx context.Context, glEntryID uuid.UUID) ([]*models.Link, error)
	DeleteByItem(ctx context.Context, itemID uuid.UUID) ([]*models.Link, error)
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.Link, error)
	DeleteAll(ctx context.Context) ([]*models.Link, error)
}

type linkRepository struct{}

// NewLinkRepository creates a new LinkRepository.
func NewLinkRepository() LinkRepository {
	return &linkRepository{}
}

var _ LinkRepository = (*linkRepository)(nil)

const linkColumns = `document_item_id, gl_entry_id, source, created_at`

func (r *linkRepository) Create(ctx context.Context, link *models.Link) (*models.Link, bool, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, false, err
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	stored, err := scanLink(q.QueryRow(ctx, `
		INSERT INTO document_item_links (document_item_id, gl_entry_id, source, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (document_item_id, gl_entry_id) DO NOTHING
		RETURNING `+linkColumns,
		link.DocumentItemID, link.GLEntryID, string(link.Source), link.CreatedAt,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, mapError("failed to create link", err)
	}

	// Conflict: return the existing row.
	existing, err := scanLink(q.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM document_item_links WHERE document_item_id = $1 AND gl_entry_id = $2`,
		link.DocumentItemID, link.GLEntryID,
	))
	if err != nil {
		return nil, false, mapError("failed to read existing link", err)
	}
	return existing, false, nil
}

func (r *linkRepository) Delete(ctx context.Context, itemID, glEntryID uuid.UUID) (bool, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return false, err
	}
	tag, err := q.Exec(ctx,
		`DELETE FROM document_item_links WHERE document_item_id = $1 AND gl_entry_id = $2`, itemID, glEntryID)
	if err != nil {
		return false, mapError("failed to delete link", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *linkRepository) ListByGL(ctx context.Context, glEntryID uuid.UUID) ([]*models.Link, error) {
	return r.query(ctx, "failed to list links by gl entry",
		`SELECT `+linkColumns+` FROM document_item_links WHERE gl_entry_id = $1 ORDER BY created_at, document_item_id`, glEntryID)
}

func (r *linkRepository) ListByItem(ctx context.Context, itemID uuid.UUID) ([]*models.Link, error) {
	return r.query(ctx, "failed to list links by item",
		`SELECT `+linkColumns+` FROM document_item_links WHERE document_item_id = $1 ORDER BY created_at, gl_entry_id`, itemID)
}

func (r *linkRepository) ListAll(ctx context.Context) ([]*models.Link, error) {
	return r.query(ctx, "failed to list links",
		`SELECT `+linkColumns+` FROM document_item_links ORDER BY created_at, document_item_id, gl_entry_id`)
}

func (r *linkRepository) DeleteByGL(ctx context.Context, glEntryID uuid.UUID) ([]*models.Link, error) {
	return r.query(ctx, "failed to delete links by gl entry",
		`DELETE FROM document_item_links WHERE gl_entry_id = $1 RETURNING `+linkColumns, glEntryID)
}

func (r *linkRepository) DeleteByItem(ctx context.Context, itemID uuid.UUID) ([]*models.Link, error) {
	return r.query(ctx, "failed to delete links by item",
		`DELETE FROM document_item_links WHERE document_item_id = $1 RETURNING `+linkColumns, itemID)
}

func (r *linkRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.Link, error) {
	return r.query(ctx, "failed to delete links by document", `
		DELETE FROM document_item_links l
		USING document_items i
		WHERE l.document_item_id = i.id AND i.document_id = $1
		RETURNING l.document_item_id, l.gl_entry_id, l.source, l.created_at`, documentID)
}

func (r *linkRepository) DeleteAll(ctx context.Context) ([]*models.Link, error) {
	return r.query(ctx, "failed to clear links",
		`DELETE FROM document_item_links RETURNING `+linkColumns)
}

func (r *linkRepository) query(ctx context.Context, op, sql string, args ...any) ([]*models.Link, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	return collect(rows, scanLink)
}

func scanLink(row pgx.Row) (*models.Link, error) {
	var (
		l      models.Link
		source string
	)
	if err := row.Scan(&l.DocumentItemID, &l.GLEntryID, &source, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.Source = models.LinkSource(source)
	return &l, nil
}
