//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/far-audit/pkg/apperrors"
	"github.com/ekaya-inc/far-audit/pkg/models"
)

func createReceipt(t *testing.T, ctx context.Context, repo DocumentRepository, vendor, amount string) (*models.Document, *models.DocumentItem) {
	t.Helper()
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	amt := decimal.RequireFromString(amount)
	doc := &models.Document{
		Filename:    vendor + ".pdf",
		MimeType:    "application/pdf",
		DocType:     models.DocTypeReceipt,
		TextContent: vendor + " TOTAL " + amount,
		Meta:        &models.DocumentMeta{OCRData: &models.OCRData{RawText: "raw " + vendor, Engine: "tesseract"}},
	}
	item := &models.DocumentItem{Kind: models.ItemKindReceipt, Vendor: vendor, Date: &date, Amount: &amt}
	require.NoError(t, repo.Create(ctx, doc, []*models.DocumentItem{item}))
	return doc, item
}

func TestDocumentRepository_CreateAndRead(t *testing.T) {
	ctx := setupRepoTest(t)
	repo := NewDocumentRepository()

	doc, item := createReceipt(t, ctx, repo, "Marriott", "412.50")
	assert.NotEqual(t, uuid.Nil, doc.ID)
	assert.Equal(t, doc.ID, item.DocumentID)

	got, err := repo.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocTypeReceipt, got.DocType)
	assert.Equal(t, "raw Marriott", got.RawOCRText())
	assert.Empty(t, got.Approvals)

	gotItem, err := repo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, gotItem.Amount)
	assert.True(t, decimal.RequireFromString("412.50").Equal(*gotItem.Amount))
	assert.Nil(t, gotItem.Details)
}

func TestDocumentRepository_NullableFields(t *testing.T) {
	ctx := setupRepoTest(t)
	repo := NewDocumentRepository()

	doc := &models.Document{
		Filename:  "memo.pdf",
		Approvals: []models.DocumentApproval{{Decision: "approved", Approver: "J. Doe"}},
	}
	item := &models.DocumentItem{Kind: models.ItemKindApproval}
	require.NoError(t, repo.Create(ctx, doc, []*models.DocumentItem{item}))

	got, err := repo.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocTypeUnknown, got.DocType)
	assert.Nil(t, got.Meta)
	require.Len(t, got.Approvals, 1)
	assert.Equal(t, "J. Doe", got.Approvals[0].Approver)

	gotItem, err := repo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Nil(t, gotItem.Amount)
	assert.Nil(t, gotItem.Date)
}

func TestDocumentRepository_ListAndBatchLookups(t *testing.T) {
	ctx := setupRepoTest(t)
	repo := NewDocumentRepository()

	d1, i1 := createReceipt(t, ctx, repo, "Marriott", "412.50")
	d2, i2 := createReceipt(t, ctx, repo, "Bistro", "120.00")

	items, err := repo.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, i1.ID, items[0].ID)
	assert.Equal(t, i2.ID, items[1].ID)

	docs, err := repo.GetDocumentsByIDs(ctx, []uuid.UUID{d1.ID, d2.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	byID, err := repo.GetItemsByIDs(ctx, []uuid.UUID{i2.ID})
	require.NoError(t, err)
	require.Contains(t, byID, i2.ID)
	assert.Equal(t, "Bistro", byID[i2.ID].Vendor)

	empty, err := repo.GetItemsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDocumentRepository_DeleteCascadesItems(t *testing.T) {
	ctx := setupRepoTest(t)
	repo := NewDocumentRepository()

	doc, item := createReceipt(t, ctx, repo, "Marriott", "412.50")
	require.NoError(t, repo.Delete(ctx, doc.ID))

	_, err := repo.GetItem(ctx, item.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	err = repo.Delete(ctx, doc.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
