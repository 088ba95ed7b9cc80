package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"book-rag/internal/models"
)

// Memory is an in-process store using brute-force cosine similarity.
// It offers search and scroll but not query.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	dim    int
	order  []string
	points map[string]models.IndexedChunk
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

func (m *Memory) EnsureCollection(_ context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.collections[name]; ok {
		if c.dim != dim {
			return fmt.Errorf("collection %s exists with dimension %d: %w", name, c.dim, models.ErrDimensionMismatch)
		}
		return nil
	}
	m.collections[name] = &memCollection{dim: dim, points: make(map[string]models.IndexedChunk)}
	return nil
}

func (m *Memory) Upsert(_ context.Context, name string, points []models.IndexedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("collection %s: %w", name, models.ErrNotFound)
	}
	for _, p := range points {
		if len(p.Vector) != c.dim {
			return models.ErrDimensionMismatch
		}
	}
	for _, p := range points {
		if _, exists := c.points[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		p.Vector = append([]float32(nil), p.Vector...)
		c.points[p.ID] = p
	}
	return nil
}

func (m *Memory) Count(_ context.Context, name string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return 0, nil
	}
	return len(c.points), nil
}

func (m *Memory) DeleteCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

func (m *Memory) SearchPoints(_ context.Context, name string, vector []float32, limit int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, models.ErrNotFound)
	}

	hits := make([]Hit, 0, len(c.order))
	for _, id := range c.order {
		p := c.points[id]
		hits = append(hits, Hit{ID: id, Score: cosine(p.Vector, vector), Chunk: p})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *Memory) ScrollPoints(_ context.Context, name string, limit int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, models.ErrNotFound)
	}

	var hits []Hit
	for _, id := range c.order {
		if limit > 0 && len(hits) == limit {
			break
		}
		hits = append(hits, Hit{ID: id, Chunk: c.points[id]})
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
