package vectorindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"book-rag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQdrant serves just enough of the REST API for one collection
type fakeQdrant struct {
	t            *testing.T
	exists       bool
	legacy       bool
	created      map[string]any
	upserted     []map[string]any
	lastAPIKey   string
	deleteCalled bool
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lastAPIKey = r.Header.Get("api-key")
	w.Header().Set("Content-Type", "application/json")

	point := `{"id":"7b0c","score":0.91,"payload":{"content":"Forward kinematics maps joints to pose.","file_path":"m2/kin.md","section":"Kinematics","chapter":"m2","chunk_index":3}}`

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/collections/book_content":
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found: Collection ` + "`book_content`" + ` doesn't exist!"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":{}}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/book_content":
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.created))
		f.exists = true
		_, _ = w.Write([]byte(`{"result":true}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/book_content/points":
		var body struct {
			Points []map[string]any `json:"points"`
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.upserted = append(f.upserted, body.Points...)
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case r.URL.Path == "/collections/book_content/points/query":
		if f.legacy {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`404 page not found`))
			return
		}
		_, _ = w.Write([]byte(`{"result":{"points":[` + point + `]}}`))
	case r.URL.Path == "/collections/book_content/points/search":
		_, _ = w.Write([]byte(`{"result":[` + point + `]}`))
	case r.URL.Path == "/collections/book_content/points/scroll":
		_, _ = w.Write([]byte(`{"result":{"points":[` + point + `],"next_page_offset":null}}`))
	case r.URL.Path == "/collections/book_content/points/count":
		_, _ = w.Write([]byte(`{"result":{"count":42}}`))
	case r.Method == http.MethodDelete:
		f.deleteCalled = true
		f.exists = false
		_, _ = w.Write([]byte(`{"result":true}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFakeQdrant(t *testing.T, f *fakeQdrant) *Qdrant {
	f.t = t
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewQdrant(QdrantConfig{URL: srv.URL + "/", APIKey: "secret"})
}

func TestQdrantEnsureCollectionCreatesWhenMissing(t *testing.T) {
	f := &fakeQdrant{}
	q := newFakeQdrant(t, f)

	require.NoError(t, q.EnsureCollection(context.Background(), "book_content", 1024))
	require.NotNil(t, f.created)
	vectors := f.created["vectors"].(map[string]any)
	assert.Equal(t, float64(1024), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
	assert.Equal(t, "secret", f.lastAPIKey)

	// second call finds the collection and does not recreate it
	f.created = nil
	require.NoError(t, q.EnsureCollection(context.Background(), "book_content", 1024))
	assert.Nil(t, f.created)
}

func TestQdrantUpsertSendsPayload(t *testing.T) {
	f := &fakeQdrant{exists: true}
	q := newFakeQdrant(t, f)

	err := q.Upsert(context.Background(), "book_content", []models.IndexedChunk{{
		ID: "id-1", Vector: []float32{0.5, 0.25}, Content: "text", FilePath: "a.md",
		Section: "S", Chapter: "C", ChunkIndex: 2,
	}})
	require.NoError(t, err)
	require.Len(t, f.upserted, 1)
	assert.Equal(t, "id-1", f.upserted[0]["id"])
	payload := f.upserted[0]["payload"].(map[string]any)
	assert.Equal(t, "text", payload["content"])
	assert.Equal(t, float64(2), payload["chunk_index"])
}

func TestQdrantThroughIndexQuery(t *testing.T) {
	q := newFakeQdrant(t, &fakeQdrant{exists: true})
	ix := NewIndex(q, "book_content", 2, nil)

	res, err := ix.Search(context.Background(), []float32{0.1, 0.2}, 5)
	require.NoError(t, err)
	assert.Equal(t, MethodQuery, res.Method)
	require.Len(t, res.Hits, 1)
	hit := res.Hits[0]
	assert.Equal(t, "7b0c", hit.ID)
	assert.InDelta(t, 0.91, hit.Score, 1e-9)
	assert.Equal(t, "Kinematics", hit.Chunk.Section)
	assert.Equal(t, "m2/kin.md", hit.Chunk.FilePath)
	assert.Equal(t, 3, hit.Chunk.ChunkIndex)
}

func TestQdrantLegacyServerFallsBackToSearch(t *testing.T) {
	q := newFakeQdrant(t, &fakeQdrant{exists: true, legacy: true})
	ix := NewIndex(q, "book_content", 2, nil)

	res, err := ix.Search(context.Background(), []float32{0.1, 0.2}, 5)
	require.NoError(t, err)
	assert.Equal(t, MethodSearch, res.Method)
	assert.InDelta(t, 0.91, res.Hits[0].Score, 1e-9)
	assert.NotContains(t, ix.Methods(), MethodQuery)
}

func TestQdrantCountAndDelete(t *testing.T) {
	f := &fakeQdrant{exists: true}
	q := newFakeQdrant(t, f)

	n, err := q.Count(context.Background(), "book_content")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	require.NoError(t, q.DeleteCollection(context.Background(), "book_content"))
	assert.True(t, f.deleteCalled)
}

func TestQdrantMissingCollectionIsNotACapabilityGap(t *testing.T) {
	err := capabilityError(&qdrantStatusError{Code: 404, Body: "Not found: Collection `x` doesn't exist!"})
	assert.NotErrorIs(t, err, models.ErrCapabilityUnavailable)

	err = capabilityError(&qdrantStatusError{Code: 404, Body: "404 page not found"})
	assert.ErrorIs(t, err, models.ErrCapabilityUnavailable)
}
