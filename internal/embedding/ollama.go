package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// Ollama generates embeddings using the Ollama API
type Ollama struct {
	Client     *api.Client
	Model      string
	MaxRetries int
	Timeout    time.Duration
	RetryDelay time.Duration
}

// NewOllama creates a new Ollama embedder. An empty host falls back to OLLAMA_HOST.
func NewOllama(host string, model string) (*Ollama, error) {
	hostURL := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = u
	}
	client := api.NewClient(hostURL, http.DefaultClient)

	return &Ollama{
		Client:     client,
		Model:      model,
		MaxRetries: 3,
		Timeout:    time.Second * 30,
		RetryDelay: time.Second,
	}, nil
}

// Embed generates one embedding per text
func (e *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	var err error

	for retries := 0; retries <= e.MaxRetries; retries++ {
		if retries > 0 {
			// Back off a little longer after every failure
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(retries) * e.RetryDelay):
			}
		}

		vectors, err = e.createEmbeddings(ctx, texts)
		if err == nil {
			return vectors, nil
		}
	}

	return nil, fmt.Errorf("failed to create embeddings after %d retries: %w", e.MaxRetries, err)
}

// createEmbeddings sends a single embed request
func (e *Ollama) createEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	req := api.EmbedRequest{
		Model: e.Model,
		Input: texts,
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	resp, err := e.Client.Embed(ctxWithTimeout, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	return resp.Embeddings, nil
}
