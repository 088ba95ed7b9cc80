// Package vectorindex stores chunk embeddings and answers nearest-neighbour
// queries over them.
//
// Backends differ in which similarity operations they support. Index probes
// them in a fixed order (query, then search, then scroll) and always returns
// the same result shape. Scroll has no notion of similarity, so results
// obtained that way carry a zero score and are flagged as degraded.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"book-rag/internal/models"
)

// DefaultTopK is used when a caller asks for a non-positive number of hits
const DefaultTopK = 5

// Hit is one stored chunk returned by a lookup
type Hit struct {
	ID    string
	Score float64
	Chunk models.IndexedChunk
}

// Backend is the minimal lifecycle every vector store supports
type Backend interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	Upsert(ctx context.Context, name string, points []models.IndexedChunk) error
	Count(ctx context.Context, name string) (int, error)
	DeleteCollection(ctx context.Context, name string) error
}

// Querier is the preferred similarity interface
type Querier interface {
	QueryPoints(ctx context.Context, name string, vector []float32, limit int) ([]Hit, error)
}

// Searcher is the legacy similarity interface
type Searcher interface {
	SearchPoints(ctx context.Context, name string, vector []float32, limit int) ([]Hit, error)
}

// Scroller lists stored points without ranking them
type Scroller interface {
	ScrollPoints(ctx context.Context, name string, limit int) ([]Hit, error)
}

// Pinger reports whether the backend is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Method names the backend operation that produced a result
type Method string

const (
	MethodQuery  Method = "query"
	MethodSearch Method = "search"
	MethodScroll Method = "scroll"
)

// SearchResult is the normalized outcome of a similarity lookup
type SearchResult struct {
	Hits   []Hit
	Method Method
	// Degraded is true when hits are not ranked by similarity
	Degraded bool
}

type strategy struct {
	method Method
	run    func(ctx context.Context, vector []float32, limit int) ([]Hit, error)
}

// Index is a collection on a backend with a fixed dimensionality
type Index struct {
	backend    Backend
	collection string
	dim        int
	logger     *slog.Logger

	mu       sync.Mutex
	disabled map[Method]bool
}

// NewIndex creates an index over backend
func NewIndex(backend Backend, collection string, dim int, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		backend:    backend,
		collection: collection,
		dim:        dim,
		logger:     logger.With("collection", collection),
		disabled:   make(map[Method]bool),
	}
}

// Collection returns the collection name
func (ix *Index) Collection() string { return ix.collection }

// Dimensions returns the configured vector length
func (ix *Index) Dimensions() int { return ix.dim }

// EnsureCollection creates the collection if it does not exist
func (ix *Index) EnsureCollection(ctx context.Context) error {
	if ix.dim <= 0 {
		return fmt.Errorf("invalid dimension %d", ix.dim)
	}
	return ix.backend.EnsureCollection(ctx, ix.collection, ix.dim)
}

// Reset drops the collection and creates it again empty
func (ix *Index) Reset(ctx context.Context) error {
	if err := ix.backend.DeleteCollection(ctx, ix.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return ix.EnsureCollection(ctx)
}

// Upsert stores points after checking their dimensionality
func (ix *Index) Upsert(ctx context.Context, points []models.IndexedChunk) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if len(p.Vector) != ix.dim {
			return fmt.Errorf("point %s has %d dimensions, want %d: %w",
				p.ID, len(p.Vector), ix.dim, models.ErrDimensionMismatch)
		}
	}
	return ix.backend.Upsert(ctx, ix.collection, points)
}

// Count returns the number of stored points
func (ix *Index) Count(ctx context.Context) (int, error) {
	return ix.backend.Count(ctx, ix.collection)
}

// Ping checks the backend when it supports it
func (ix *Index) Ping(ctx context.Context) error {
	if p, ok := ix.backend.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Methods lists the similarity operations still available, in probe order
func (ix *Index) Methods() []Method {
	var out []Method
	for _, s := range ix.strategies() {
		out = append(out, s.method)
	}
	return out
}

// Search returns up to topK hits for vector. Strategies are tried in order;
// one that reports ErrCapabilityUnavailable is never tried again.
func (ix *Index) Search(ctx context.Context, vector []float32, topK int) (SearchResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(vector) != ix.dim {
		return SearchResult{}, fmt.Errorf("query vector has %d dimensions, want %d: %w",
			len(vector), ix.dim, models.ErrDimensionMismatch)
	}

	strategies := ix.strategies()
	if len(strategies) == 0 {
		return SearchResult{}, models.ErrNoRetrievalCapability
	}

	var errs []error
	for _, s := range strategies {
		hits, err := s.run(ctx, vector, topK)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return SearchResult{}, ctxErr
			}
			if errors.Is(err, models.ErrCapabilityUnavailable) {
				ix.disable(s.method)
				ix.logger.Warn("vector index capability disabled", "method", s.method, "error", err)
			} else {
				ix.logger.Warn("vector index lookup failed, trying next method", "method", s.method, "error", err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.method, err))
			continue
		}

		result := SearchResult{Hits: hits, Method: s.method}
		if s.method == MethodScroll {
			for i := range result.Hits {
				result.Hits[i].Score = 0
			}
			result.Degraded = true
			ix.logger.Warn("similarity search unavailable, returning unranked points")
		} else {
			sort.SliceStable(result.Hits, func(i, j int) bool {
				return result.Hits[i].Score > result.Hits[j].Score
			})
		}
		if len(result.Hits) > topK {
			result.Hits = result.Hits[:topK]
		}
		return result, nil
	}

	errs = append([]error{models.ErrNoRetrievalCapability}, errs...)
	return SearchResult{}, errors.Join(errs...)
}

// strategies builds the ordered list of usable lookups
func (ix *Index) strategies() []strategy {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var out []strategy
	if q, ok := ix.backend.(Querier); ok && !ix.disabled[MethodQuery] {
		out = append(out, strategy{MethodQuery, func(ctx context.Context, v []float32, n int) ([]Hit, error) {
			return q.QueryPoints(ctx, ix.collection, v, n)
		}})
	}
	if s, ok := ix.backend.(Searcher); ok && !ix.disabled[MethodSearch] {
		out = append(out, strategy{MethodSearch, func(ctx context.Context, v []float32, n int) ([]Hit, error) {
			return s.SearchPoints(ctx, ix.collection, v, n)
		}})
	}
	if s, ok := ix.backend.(Scroller); ok && !ix.disabled[MethodScroll] {
		out = append(out, strategy{MethodScroll, func(ctx context.Context, _ []float32, n int) ([]Hit, error) {
			return s.ScrollPoints(ctx, ix.collection, n)
		}})
	}
	return out
}

func (ix *Index) disable(m Method) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.disabled[m] = true
}
