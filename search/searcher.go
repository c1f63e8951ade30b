package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/docingest/core"
)

// DefaultCandidateFactor is how many vector hits are fetched per requested
// result before re-ranking.
const DefaultCandidateFactor = 3

// verbatimBoost is added to the relevance of hits containing every
// significant query word.
const verbatimBoost = 0.3

// Querier runs a nearest-neighbor query for text. vectorstore.Upserter
// implements it.
type Querier interface {
	Query(ctx context.Context, collection, text string, k int) ([]core.SearchHit, error)
}

// Result is a re-ranked hit. Higher scores are more relevant.
type Result struct {
	Hit      core.SearchHit
	Distance float32
	Score    float32
	Verbatim bool
}

// Searcher combines vector similarity with verbatim keyword matching.
type Searcher struct {
	querier         Querier
	candidateFactor int
	maxDistance     float32
	logger          *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithCandidateFactor sets how many candidates are fetched per result.
// Default is DefaultCandidateFactor.
func WithCandidateFactor(factor int) Option {
	return func(s *Searcher) error {
		if factor < 1 {
			factor = 1
		}
		s.candidateFactor = factor
		return nil
	}
}

// WithMaxDistance drops vector hits farther than distance. Zero keeps all.
func WithMaxDistance(distance float32) Option {
	return func(s *Searcher) error {
		if distance < 0 {
			return ErrInvalidMaxDistance
		}
		s.maxDistance = distance
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(querier Querier, opts ...Option) (*Searcher, error) {
	if querier == nil {
		return nil, ErrQuerierRequired
	}

	s := &Searcher{
		querier:         querier,
		candidateFactor: DefaultCandidateFactor,
		logger:          slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// FindSimilar searches collection for chunks similar to query.
// Returns up to maxHits results, ranked by relevance score.
func (s *Searcher) FindSimilar(ctx context.Context, collection, query string, maxHits int) ([]*Result, error) {
	return s.FindSimilarWithMonitor(ctx, collection, query, maxHits, nil)
}

// FindSimilarWithMonitor is FindSimilar reporting each step to monitor.
func (s *Searcher) FindSimilarWithMonitor(ctx context.Context, collection, query string, maxHits int, monitor SearchMonitor) ([]*Result, error) {
	if maxHits <= 0 {
		return nil, ErrInvalidMaxHits
	}
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	monitor.Start(collection, query)
	if strings.TrimSpace(query) == "" {
		monitor.Finish(nil)
		return []*Result{}, nil
	}

	hits, err := s.querier.Query(ctx, collection, query, maxHits*s.candidateFactor)
	if err != nil {
		s.logger.Error("error querying vector store", "collection", collection, "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(hits)

	results := make([]*Result, 0, len(hits))
	// Re-ingested files leave identical passages behind; hits arrive closest
	// first, so the first copy of a passage is the one kept.
	seen := make(map[core.ID]struct{}, len(hits))
	for _, hit := range hits {
		if s.maxDistance > 0 && hit.Score > s.maxDistance {
			continue
		}
		key := core.IDFromContent(hit.Content)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		result := &Result{
			Hit:      hit,
			Distance: hit.Score,
			Score:    relevance(hit.Score),
		}

		// Apply verbatim match boost
		if matchesVerbatim(hit.Content, query) {
			result.Score += verbatimBoost
			result.Verbatim = true
			monitor.VerbatimHit(hit)
		}
		results = append(results, result)
	}

	// Sort by score descending
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > maxHits {
		results = results[:maxHits]
	}
	monitor.Finish(results)

	s.logger.Debug("search complete",
		"collection", collection,
		"candidates", len(hits),
		"results", len(results))
	return results, nil
}

// relevance maps an L2 distance onto (0, 1].
func relevance(distance float32) float32 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}
