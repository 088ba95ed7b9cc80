package rag

import (
	"context"
	"fmt"

	"book-rag/internal/embedding"
	"book-rag/internal/models"
	"book-rag/internal/vectorindex"
)

// VectorSearcher answers similarity lookups
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int) (vectorindex.SearchResult, error)
}

// Retrieval is the context found for one query
type Retrieval struct {
	Results []models.RetrievalResult
	Method  vectorindex.Method
	// Degraded is set when results are not ranked by similarity
	Degraded bool
}

// Retriever finds the chunks relevant to a query
type Retriever struct {
	Embedder embedding.Gateway
	Index    VectorSearcher
}

func NewRetriever(embedder embedding.Gateway, index VectorSearcher) *Retriever {
	return &Retriever{Embedder: embedder, Index: index}
}

// Retrieve returns ranked context for query. In selected mode the query is the
// user's passage and is returned as the only result without touching the
// embedder or the index.
func (r *Retriever) Retrieve(ctx context.Context, query string, mode models.Mode, topK int) (Retrieval, error) {
	switch mode {
	case models.ModeSelected:
		return Retrieval{Results: []models.RetrievalResult{SelectedResult(query)}}, nil
	case models.ModeRAG:
	default:
		return Retrieval{}, &models.ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", mode)}
	}

	vectors, err := r.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return Retrieval{}, &models.RetrievalError{Op: "embed", Err: err}
	}
	if len(vectors) != 1 {
		return Retrieval{}, &models.RetrievalError{Op: "embed", Err: fmt.Errorf("got %d vectors for one query", len(vectors))}
	}

	res, err := r.Index.Search(ctx, vectors[0], topK)
	if err != nil {
		return Retrieval{}, &models.RetrievalError{Op: "search", Err: err}
	}

	out := Retrieval{Method: res.Method, Degraded: res.Degraded}
	for _, h := range res.Hits {
		out.Results = append(out.Results, models.RetrievalResult{
			Content:        h.Chunk.Content,
			FilePath:       h.Chunk.FilePath,
			Section:        h.Chunk.Section,
			Chapter:        h.Chunk.Chapter,
			RelevanceScore: h.Score,
		})
	}
	return out, nil
}

// SelectedResult wraps a user-selected passage as a retrieval result
func SelectedResult(text string) models.RetrievalResult {
	return models.RetrievalResult{
		Content:        text,
		FilePath:       "selected_text",
		Section:        "selected",
		Chapter:        "selected",
		RelevanceScore: 1.0,
	}
}

// DedupSources keeps the first result of every section, up to limit sources
func DedupSources(results []models.RetrievalResult, limit int) []models.Source {
	sources := []models.Source{}
	seen := make(map[string]bool)
	for _, r := range results {
		if limit > 0 && len(sources) >= limit {
			break
		}
		section := r.Section
		if section == "" {
			section = "Unknown"
		}
		if seen[section] {
			continue
		}
		seen[section] = true
		sources = append(sources, models.Source{
			FilePath:       r.FilePath,
			Section:        section,
			RelevanceScore: r.RelevanceScore,
		})
	}
	return sources
}
