package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/repositories"
)

// listingLoader reads the Document Item Store snapshot under the OCR fetch
// deadline.
type listingLoader struct {
	docs    repositories.DocumentRepository
	links   LinkService
	timeout time.Duration
}

func (l listingLoader) load(ctx context.Context) (*models.ItemListing, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	items, err := l.docs.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	links, err := l.links.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := l.docs.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	listing := &models.ItemListing{Items: items, Links: links, Documents: docs}
	if listing.Items == nil {
		listing.Items = []*models.DocumentItem{}
	}
	if listing.Links == nil {
		listing.Links = []*models.Link{}
	}
	if listing.Documents == nil {
		listing.Documents = []*models.Document{}
	}
	return listing, nil
}

// linkedDocuments groups a listing by GL entry, in link order. Links to
// items missing from the listing are skipped.
func linkedDocuments(listing *models.ItemListing) map[uuid.UUID][]models.LinkedDocument {
	items := make(map[uuid.UUID]*models.DocumentItem, len(listing.Items))
	for _, it := range listing.Items {
		items[it.ID] = it
	}
	docs := make(map[uuid.UUID]*models.Document, len(listing.Documents))
	for _, d := range listing.Documents {
		docs[d.ID] = d
	}

	out := make(map[uuid.UUID][]models.LinkedDocument)
	for _, l := range listing.Links {
		item, ok := items[l.DocumentItemID]
		if !ok {
			continue
		}
		out[l.GLEntryID] = append(out[l.GLEntryID], models.LinkedDocument{
			Document: docs[item.DocumentID],
			Item:     item,
		})
	}
	return out
}
