package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/matching"
	"github.com/ekaya-inc/far-audit/pkg/models"
	"github.com/ekaya-inc/far-audit/pkg/repositories"
)

// CandidateCache is evicted when the data behind cached candidates changes.
type CandidateCache interface {
	Evict(glEntryID uuid.UUID)
	Purge()
}

// MatchingService ranks document items against GL rows and auto-links
// confident matches.
type MatchingService interface {
	CandidateCache
	// Suggestions ranks items not yet linked to the GL entry, best first.
	Suggestions(ctx context.Context, glEntryID uuid.UUID) ([]matching.Candidate, error)
	// AutoLink links each item to its best GL row when the strict score
	// reaches the configured threshold.
	AutoLink(ctx context.Context, items []*models.DocumentItem) ([]*models.Link, error)
}

// MatchingConfig tunes MatchingService.
type MatchingConfig struct {
	AutoLinkThreshold float64
	CacheSize         int
}

type matchingService struct {
	gl     repositories.GLRepository
	docs   repositories.DocumentRepository
	links  LinkService
	ui     *matching.Matcher
	strict *matching.Matcher
	cfg    MatchingConfig
	cache  *lru.Cache[uuid.UUID, []matching.Candidate]
	logger *zap.Logger

	// gens counts evictions per GL entry and epoch counts purges. A ranking
	// is cached only if neither moved while it was computed.
	genMu sync.Mutex
	epoch uint64
	gens  map[uuid.UUID]uint64
}

type cacheGeneration struct {
	epoch, gen uint64
}

// NewMatchingService creates a MatchingService and subscribes it to link
// changes.
func NewMatchingService(
	gl repositories.GLRepository,
	docs repositories.DocumentRepository,
	links LinkService,
	cfg MatchingConfig,
	logger *zap.Logger,
) (MatchingService, error) {
	cache, err := lru.New[uuid.UUID, []matching.Candidate](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create candidate cache: %w", err)
	}
	s := &matchingService{
		gl:     gl,
		docs:   docs,
		links:  links,
		ui:     matching.NewMatcher(matching.TierUI),
		strict: matching.NewMatcher(matching.TierStrict),
		cfg:    cfg,
		cache:  cache,
		logger: logger.Named("matching-service"),
		gens:   make(map[uuid.UUID]uint64),
	}
	links.Subscribe(s.Evict)
	return s, nil
}

var _ MatchingService = (*matchingService)(nil)

func (s *matchingService) Suggestions(ctx context.Context, glEntryID uuid.UUID) ([]matching.Candidate, error) {
	if cached, ok := s.cache.Get(glEntryID); ok {
		return cloneCandidates(cached), nil
	}
	gen := s.generation(glEntryID)

	entry, err := s.gl.Get(ctx, glEntryID)
	if err != nil {
		return nil, fmt.Errorf("gl entry %s: %w", glEntryID, err)
	}
	items, err := s.docs.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	linked, err := s.links.ListByGL(ctx, glEntryID)
	if err != nil {
		return nil, err
	}

	already := make(map[uuid.UUID]bool, len(linked))
	for _, l := range linked {
		already[l.DocumentItemID] = true
	}
	unlinked := make([]*models.DocumentItem, 0, len(items))
	for _, it := range items {
		if !already[it.ID] {
			unlinked = append(unlinked, it)
		}
	}

	ranked := s.ui.RankCandidates(entry.GLEntry, unlinked)
	s.store(glEntryID, gen, ranked)
	return cloneCandidates(ranked), nil
}

func (s *matchingService) AutoLink(ctx context.Context, items []*models.DocumentItem) ([]*models.Link, error) {
	if len(items) == 0 {
		return nil, nil
	}
	rows, err := s.gl.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	type pick struct {
		gl    uuid.UUID
		score float64
	}
	best := make(map[uuid.UUID]pick, len(items))
	for _, row := range rows {
		ranked := s.strict.RankCandidates(row.GLEntry, items)
		for _, c := range matching.AutoLinkable(ranked, s.cfg.AutoLinkThreshold) {
			// Rows are in ledger order; the earlier row keeps a tie.
			if cur, ok := best[c.Item.ID]; !ok || c.Score > cur.score {
				best[c.Item.ID] = pick{gl: row.ID, score: c.Score}
			}
		}
	}

	var created []*models.Link
	for _, item := range items {
		p, ok := best[item.ID]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return created, err
		}
		link, err := s.links.Link(ctx, item.ID, p.gl, models.LinkSourceAuto)
		if err != nil {
			return created, fmt.Errorf("failed to auto-link item %s: %w", item.ID, err)
		}
		s.logger.Debug("Auto-linked document item",
			zap.String("document_item_id", item.ID.String()),
			zap.String("gl_entry_id", p.gl.String()),
			zap.Float64("score", p.score))
		created = append(created, link)
	}
	return created, nil
}

func (s *matchingService) Evict(glEntryID uuid.UUID) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gens[glEntryID]++
	s.cache.Remove(glEntryID)
}

func (s *matchingService) Purge() {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.epoch++
	clear(s.gens)
	s.cache.Purge()
}

func (s *matchingService) generation(glEntryID uuid.UUID) cacheGeneration {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return cacheGeneration{epoch: s.epoch, gen: s.gens[glEntryID]}
}

// store caches ranked unless the entry was evicted after gen was taken.
func (s *matchingService) store(glEntryID uuid.UUID, gen cacheGeneration, ranked []matching.Candidate) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if gen != (cacheGeneration{epoch: s.epoch, gen: s.gens[glEntryID]}) {
		s.logger.Debug("Discarding stale candidate ranking",
			zap.String("gl_entry_id", glEntryID.String()))
		return
	}
	s.cache.Add(glEntryID, ranked)
}

func cloneCandidates(in []matching.Candidate) []matching.Candidate {
	out := make([]matching.Candidate, len(in))
	copy(out, in)
	return out
}
