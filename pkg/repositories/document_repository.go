package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/far-audit/pkg/database"
	"github.com/ekaya-inc/far-audit/pkg/models"
)

// DocumentRepository provides data access for documents and their parsed items.
type DocumentRepository interface {
	// Create stores doc and its items in one transaction, assigning ids where missing.
	Create(ctx context.Context, doc *models.Document, items []*models.DocumentItem) error
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	GetItem(ctx context.Context, id uuid.UUID) (*models.DocumentItem, error)
	ListItems(ctx context.Context) ([]*models.DocumentItem, error)
	ListDocuments(ctx context.Context) ([]*models.Document, error)
	GetDocumentsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Document, error)
	GetItemsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.DocumentItem, error)
	// Delete removes the document; its items and their links go with it.
	Delete(ctx context.Context, id uuid.UUID) error
}

type documentRepository struct{}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository() DocumentRepository {
	return &documentRepository{}
}

var _ DocumentRepository = (*documentRepository)(nil)

const documentColumns = `id, filename, mime_type, doc_type, text_content, meta, approvals, created_at`

const itemColumns = `id, document_id, kind, vendor, item_date, amount::text, details, created_at`

func (r *documentRepository) Create(ctx context.Context, doc *models.Document, items []*models.DocumentItem) error {
	now := time.Now().UTC()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.DocType == "" {
		doc.DocType = models.DocTypeUnknown
	}

	meta, err := jsonbValue(doc.Meta)
	if err != nil {
		return fmt.Errorf("failed to encode document meta: %w", err)
	}
	approvals := doc.Approvals
	if approvals == nil {
		approvals = []models.DocumentApproval{}
	}
	approvalsJSON, err := json.Marshal(approvals)
	if err != nil {
		return fmt.Errorf("failed to encode document approvals: %w", err)
	}

	return database.InTx(ctx, func(ctx context.Context) error {
		q, err := database.QuerierFrom(ctx)
		if err != nil {
			return err
		}

		_, err = q.Exec(ctx, `
			INSERT INTO documents (id, filename, mime_type, doc_type, text_content, meta, approvals, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			doc.ID, doc.Filename, doc.MimeType, string(doc.DocType), doc.TextContent, meta, approvalsJSON, doc.CreatedAt,
		)
		if err != nil {
			return mapError("failed to create document", err)
		}

		for _, item := range items {
			if item.ID == uuid.Nil {
				item.ID = uuid.New()
			}
			item.DocumentID = doc.ID
			if item.CreatedAt.IsZero() {
				item.CreatedAt = now
			}
			details, err := jsonbValue(item.Details)
			if err != nil {
				return fmt.Errorf("failed to encode item details: %w", err)
			}
			_, err = q.Exec(ctx, `
				INSERT INTO document_items (id, document_id, kind, vendor, item_date, amount, details, created_at)
				VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7, $8)`,
				item.ID, item.DocumentID, string(item.Kind), item.Vendor, item.Date,
				nullDecimalText(item.Amount), details, item.CreatedAt,
			)
			if err != nil {
				return mapError("failed to create document item", err)
			}
		}
		return nil
	})
}

func (r *documentRepository) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := scanDocument(q.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("failed to get document", err)
	}
	return doc, nil
}

func (r *documentRepository) GetItem(ctx context.Context, id uuid.UUID) (*models.DocumentItem, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}
	item, err := scanItem(q.QueryRow(ctx, `SELECT `+itemColumns+` FROM document_items WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("failed to get document item", err)
	}
	return item, nil
}

func (r *documentRepository) ListItems(ctx context.Context) ([]*models.DocumentItem, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM document_items ORDER BY seq`)
	if err != nil {
		return nil, mapError("failed to list document items", err)
	}
	return collect(rows, scanItem)
}

func (r *documentRepository) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at, id`)
	if err != nil {
		return nil, mapError("failed to list documents", err)
	}
	return collect(rows, scanDocument)
}

func (r *documentRepository) GetDocumentsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Document, error) {
	out := make(map[uuid.UUID]*models.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, mapError("failed to get documents", err)
	}
	docs, err := collect(rows, scanDocument)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		out[d.ID] = d
	}
	return out, nil
}

func (r *documentRepository) GetItemsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.DocumentItem, error) {
	out := make(map[uuid.UUID]*models.DocumentItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM document_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, mapError("failed to get document items", err)
	}
	items, err := collect(rows, scanItem)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

func (r *documentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return mapError("failed to delete document", err)
	}
	if tag.RowsAffected() == 0 {
		return mapError("failed to delete document", pgx.ErrNoRows)
	}
	return nil
}

// collect scans every row with scan and closes rows.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed to iterate rows", err)
	}
	return out, nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var (
		d         models.Document
		docType   string
		meta      []byte
		approvals []byte
	)
	if err := row.Scan(&d.ID, &d.Filename, &d.MimeType, &docType, &d.TextContent, &meta, &approvals, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.DocType = models.DocType(docType)
	if err := scanJSONB(meta, &d.Meta); err != nil {
		return nil, fmt.Errorf("invalid meta on document %s: %w", d.ID, err)
	}
	if err := scanJSONB(approvals, &d.Approvals); err != nil {
		return nil, fmt.Errorf("invalid approvals on document %s: %w", d.ID, err)
	}
	return &d, nil
}

func scanItem(row pgx.Row) (*models.DocumentItem, error) {
	var (
		it      models.DocumentItem
		kind    string
		amount  *string
		details []byte
	)
	if err := row.Scan(&it.ID, &it.DocumentID, &kind, &it.Vendor, &it.Date, &amount, &details, &it.CreatedAt); err != nil {
		return nil, err
	}
	it.Kind = models.ItemKind(kind)
	parsed, err := parseNullDecimal(amount)
	if err != nil {
		return nil, err
	}
	it.Amount = parsed
	if err := scanJSONB(details, &it.Details); err != nil {
		return nil, fmt.Errorf("invalid details on item %s: %w", it.ID, err)
	}
	return &it, nil
}
