package embedding

import (
	"context"
	"fmt"

	"book-rag/internal/models"
)

// MaxBatchSize is the largest number of texts sent in one provider call
const MaxBatchSize = 96

// Gateway turns texts into vectors, one per text, in input order
type Gateway interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Batcher splits embedding work into provider-sized batches and checks the
// shape of what comes back
type Batcher struct {
	Gateway    Gateway
	BatchSize  int
	Dimensions int
}

// NewBatcher creates a new batcher; batch sizes outside 1..96 fall back to 96
func NewBatcher(gw Gateway, batchSize, dimensions int) *Batcher {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	return &Batcher{Gateway: gw, BatchSize: batchSize, Dimensions: dimensions}
}

// Embed embeds all texts, batch by batch, and stops at the first failure
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, r := range Split(len(texts), b.BatchSize) {
		batch, err := b.EmbedBatch(ctx, texts[r.Start:r.End])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", r.Start, r.End, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedBatch embeds a single batch that must not exceed the batch size
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > b.BatchSize {
		return nil, fmt.Errorf("batch of %d texts exceeds limit of %d", len(texts), b.BatchSize)
	}

	vectors, err := b.Gateway.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts))
	}
	if b.Dimensions > 0 {
		for i, v := range vectors {
			if len(v) != b.Dimensions {
				return nil, fmt.Errorf("vector %d has %d dimensions, want %d: %w",
					i, len(v), b.Dimensions, models.ErrDimensionMismatch)
			}
		}
	}
	return vectors, nil
}

// Range is a half-open index range [Start, End)
type Range struct {
	Start, End int
}

// Split cuts n items into consecutive ranges of at most size items
func Split(n, size int) []Range {
	if size <= 0 {
		size = MaxBatchSize
	}
	var out []Range
	for start := 0; start < n; start += size {
		out = append(out, Range{Start: start, End: min(start+size, n)})
	}
	return out
}
