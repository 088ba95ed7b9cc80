package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"book-rag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend implements every capability with scripted results
type stubBackend struct {
	queryErr   error
	searchErr  error
	scrollErr  error
	hits       []Hit
	queryCalls int
	searchCall int
	scrollCall int
}

func (s *stubBackend) EnsureCollection(context.Context, string, int) error { return nil }
func (s *stubBackend) Upsert(context.Context, string, []models.IndexedChunk) error {
	return nil
}
func (s *stubBackend) Count(context.Context, string) (int, error)     { return len(s.hits), nil }
func (s *stubBackend) DeleteCollection(context.Context, string) error { return nil }

func (s *stubBackend) QueryPoints(_ context.Context, _ string, _ []float32, _ int) ([]Hit, error) {
	s.queryCalls++
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return append([]Hit(nil), s.hits...), nil
}

func (s *stubBackend) SearchPoints(_ context.Context, _ string, _ []float32, _ int) ([]Hit, error) {
	s.searchCall++
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return append([]Hit(nil), s.hits...), nil
}

func (s *stubBackend) ScrollPoints(_ context.Context, _ string, _ int) ([]Hit, error) {
	s.scrollCall++
	if s.scrollErr != nil {
		return nil, s.scrollErr
	}
	return append([]Hit(nil), s.hits...), nil
}

func sampleHits() []Hit {
	return []Hit{
		{ID: "a", Score: 0.2, Chunk: models.IndexedChunk{Section: "Intro"}},
		{ID: "b", Score: 0.9, Chunk: models.IndexedChunk{Section: "Kinematics"}},
		{ID: "c", Score: 0.5, Chunk: models.IndexedChunk{Section: "Control"}},
	}
}

func TestSearchUsesQueryFirst(t *testing.T) {
	b := &stubBackend{hits: sampleHits()}
	ix := NewIndex(b, "book_content", 2, nil)

	res, err := ix.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, MethodQuery, res.Method)
	assert.False(t, res.Degraded)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "b", res.Hits[0].ID)
	assert.Equal(t, "c", res.Hits[1].ID)
	assert.Equal(t, 0, b.searchCall)
}

func TestSearchFallsBackToSearch(t *testing.T) {
	b := &stubBackend{hits: sampleHits(), queryErr: fmt.Errorf("404: %w", models.ErrCapabilityUnavailable)}
	ix := NewIndex(b, "book_content", 2, nil)

	res, err := ix.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, MethodSearch, res.Method)
	assert.False(t, res.Degraded)
	assert.Equal(t, []Method{MethodSearch, MethodScroll}, ix.Methods())

	// the unavailable query endpoint is not probed again
	_, err = ix.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, b.queryCalls)
	assert.Equal(t, 2, b.searchCall)
}

func TestSearchTransientErrorDoesNotDisable(t *testing.T) {
	b := &stubBackend{hits: sampleHits(), queryErr: errors.New("timeout")}
	ix := NewIndex(b, "book_content", 2, nil)

	res, err := ix.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, MethodSearch, res.Method)
	assert.Equal(t, []Method{MethodQuery, MethodSearch, MethodScroll}, ix.Methods())
}

func TestSearchScrollIsDegraded(t *testing.T) {
	b := &stubBackend{
		hits:      sampleHits(),
		queryErr:  models.ErrCapabilityUnavailable,
		searchErr: models.ErrCapabilityUnavailable,
	}
	ix := NewIndex(b, "book_content", 2, nil)

	res, err := ix.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, MethodScroll, res.Method)
	assert.True(t, res.Degraded)
	require.Len(t, res.Hits, 3)
	for _, h := range res.Hits {
		assert.Zero(t, h.Score)
	}
	// storage order is kept
	assert.Equal(t, "a", res.Hits[0].ID)
}

func TestSearchAllStrategiesFail(t *testing.T) {
	boom := errors.New("connection refused")
	b := &stubBackend{queryErr: boom, searchErr: boom, scrollErr: boom}
	ix := NewIndex(b, "book_content", 2, nil)

	_, err := ix.Search(context.Background(), []float32{1, 0}, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoRetrievalCapability)
	assert.ErrorIs(t, err, boom)
}

func TestSearchRejectsWrongDimension(t *testing.T) {
	ix := NewIndex(&stubBackend{}, "book_content", 3, nil)
	_, err := ix.Search(context.Background(), []float32{1, 0}, 5)
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	ix := NewIndex(NewMemory(), "book_content", 3, nil)
	require.NoError(t, ix.EnsureCollection(context.Background()))

	err := ix.Upsert(context.Background(), []models.IndexedChunk{{ID: "x", Vector: []float32{1, 2}}})
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestMemoryBackendThroughIndex(t *testing.T) {
	ctx := context.Background()
	ix := NewIndex(NewMemory(), "book_content", 2, nil)
	require.NoError(t, ix.EnsureCollection(ctx))
	// idempotent
	require.NoError(t, ix.EnsureCollection(ctx))

	points := []models.IndexedChunk{
		{ID: "p1", Vector: []float32{1, 0}, Content: "east", Section: "A"},
		{ID: "p2", Vector: []float32{0, 1}, Content: "north", Section: "B"},
		{ID: "p3", Vector: []float32{0.7, 0.7}, Content: "north-east", Section: "C"},
	}
	require.NoError(t, ix.Upsert(ctx, points))
	require.NoError(t, ix.Upsert(ctx, points[:1]))

	n, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// memory has no query endpoint, so search is used
	assert.Equal(t, []Method{MethodSearch, MethodScroll}, ix.Methods())

	res, err := ix.Search(ctx, []float32{0, 2}, 2)
	require.NoError(t, err)
	assert.Equal(t, MethodSearch, res.Method)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "north", res.Hits[0].Chunk.Content)
	assert.InDelta(t, 1.0, res.Hits[0].Score, 1e-6)
	assert.Equal(t, "north-east", res.Hits[1].Chunk.Content)

	require.NoError(t, ix.Reset(ctx))
	n, err = ix.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSearchWithoutCapabilities(t *testing.T) {
	ix := NewIndex(bareBackend{}, "c", 2, nil)
	_, err := ix.Search(context.Background(), []float32{1, 0}, 5)
	assert.ErrorIs(t, err, models.ErrNoRetrievalCapability)
}

type bareBackend struct{}

func (bareBackend) EnsureCollection(context.Context, string, int) error         { return nil }
func (bareBackend) Upsert(context.Context, string, []models.IndexedChunk) error { return nil }
func (bareBackend) Count(context.Context, string) (int, error)                  { return 0, nil }
func (bareBackend) DeleteCollection(context.Context, string) error              { return nil }
