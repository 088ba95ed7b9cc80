package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// Ollama handles interactions with the Ollama generate API
type Ollama struct {
	Client *api.Client
	Model  string
}

// NewOllama creates a new Ollama client. An empty host falls back to OLLAMA_HOST.
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
		Client: client,
		Model:  model,
	}, nil
}

// Generate generates a response from the model
func (o *Ollama) Generate(ctx context.Context, r Request) (*Response, error) {
	stream := false
	options := map[string]interface{}{
		"temperature": r.Config.Temperature,
		"num_predict": r.Config.MaxOutputTokens,
	}
	if r.Config.TopP > 0 {
		options["top_p"] = r.Config.TopP
	}
	if r.Config.TopK > 0 {
		options["top_k"] = r.Config.TopK
	}

	req := api.GenerateRequest{
		Model:   o.Model,
		System:  r.System,
		Prompt:  r.Prompt,
		Stream:  &stream,
		Options: options,
	}

	var responseBuilder strings.Builder
	var doneReason string

	err := o.Client.Generate(ctx, &req, func(resp api.GenerateResponse) error {
		if resp.Done {
			doneReason = resp.DoneReason
		}
		_, err := responseBuilder.WriteString(resp.Response)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	return &Response{
		Candidates: []Candidate{{
			Parts:        []Part{{Text: responseBuilder.String()}},
			FinishReason: finishReasonFromOllama(doneReason),
		}},
	}, nil
}

func finishReasonFromOllama(reason string) FinishReason {
	switch reason {
	case "", "stop":
		return FinishStop
	case "length":
		return FinishMaxTokens
	default:
		return FinishOther
	}
}
