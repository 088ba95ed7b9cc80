package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"book-rag/internal/models"
)

// QdrantConfig configures the Qdrant REST client
type QdrantConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Qdrant is a minimal REST client to Qdrant. It supports the query endpoint
// of newer servers and the search and scroll endpoints of older ones.
type Qdrant struct {
	url    string
	apiKey string
	client *http.Client
}

func NewQdrant(cfg QdrantConfig) *Qdrant {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Qdrant{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// qdrantPoint is a point as returned by query, search and scroll
type qdrantPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// qdrantStatusError is a non-2xx reply
type qdrantStatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *qdrantStatusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.Method, e.Path, e.Code, e.Body)
}

func (s *Qdrant) collectionPath(name string, parts ...string) string {
	return "/collections/" + url.PathEscape(name) + strings.Join(parts, "")
}

func (s *Qdrant) Ping(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/collections", nil, nil)
}

func (s *Qdrant) EnsureCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}

	err := s.do(ctx, http.MethodGet, s.collectionPath(name), nil, nil)
	if err == nil {
		return nil
	}
	if !isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
		"optimizers_config": map[string]any{
			"memmap_threshold":   20000,
			"indexing_threshold": 20000,
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionPath(name), body, nil); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func (s *Qdrant) Upsert(ctx context.Context, name string, points []models.IndexedChunk) error {
	out := make([]map[string]any, len(points))
	for i, p := range points {
		out[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": payloadOf(p),
		}
	}
	body := map[string]any{"points": out}
	return s.do(ctx, http.MethodPut, s.collectionPath(name, "/points?wait=true"), body, nil)
}

func (s *Qdrant) Count(ctx context.Context, name string) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionPath(name, "/points/count"), map[string]any{"exact": true}, &resp)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Qdrant) DeleteCollection(ctx context.Context, name string) error {
	err := s.do(ctx, http.MethodDelete, s.collectionPath(name), nil, nil)
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return err
	}
	return nil
}

func (s *Qdrant) QueryPoints(ctx context.Context, name string, vector []float32, limit int) ([]Hit, error) {
	req := map[string]any{
		"query":        vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result struct {
			Points []qdrantPoint `json:"points"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionPath(name, "/points/query"), req, &resp); err != nil {
		return nil, capabilityError(err)
	}
	return toHits(resp.Result.Points), nil
}

func (s *Qdrant) SearchPoints(ctx context.Context, name string, vector []float32, limit int) ([]Hit, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionPath(name, "/points/search"), req, &resp); err != nil {
		return nil, capabilityError(err)
	}
	return toHits(resp.Result), nil
}

func (s *Qdrant) ScrollPoints(ctx context.Context, name string, limit int) ([]Hit, error) {
	req := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	var resp struct {
		Result struct {
			Points []qdrantPoint `json:"points"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionPath(name, "/points/scroll"), req, &resp); err != nil {
		return nil, capabilityError(err)
	}
	return toHits(resp.Result.Points), nil
}

func (s *Qdrant) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &qdrantStatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode qdrant response: %w", err)
		}
	}
	return nil
}

func isStatus(err error, code int) bool {
	var se *qdrantStatusError
	return errors.As(err, &se) && se.Code == code
}

// capabilityError marks endpoints the server does not have. A missing
// collection also answers 404 but names the collection in its message.
func capabilityError(err error) error {
	var se *qdrantStatusError
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case http.StatusNotFound:
		if strings.Contains(strings.ToLower(se.Body), "collection") {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrCapabilityUnavailable, err)
	case http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return fmt.Errorf("%w: %v", models.ErrCapabilityUnavailable, err)
	}
	return err
}

func payloadOf(p models.IndexedChunk) map[string]any {
	return map[string]any{
		"content":     p.Content,
		"file_path":   p.FilePath,
		"section":     p.Section,
		"chapter":     p.Chapter,
		"chunk_index": p.ChunkIndex,
	}
}

func toHits(points []qdrantPoint) []Hit {
	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		id := fmt.Sprint(p.ID)
		chunk := models.IndexedChunk{ID: id}
		if v, ok := p.Payload["content"].(string); ok {
			chunk.Content = v
		}
		if v, ok := p.Payload["file_path"].(string); ok {
			chunk.FilePath = v
		}
		if v, ok := p.Payload["section"].(string); ok {
			chunk.Section = v
		}
		if v, ok := p.Payload["chapter"].(string); ok {
			chunk.Chapter = v
		}
		if v, ok := p.Payload["chunk_index"].(float64); ok {
			chunk.ChunkIndex = int(v)
		}
		hits = append(hits, Hit{ID: id, Score: p.Score, Chunk: chunk})
	}
	return hits
}
