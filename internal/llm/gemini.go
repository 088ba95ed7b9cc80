package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini client
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint, mainly for tests
	BaseURL string
	Timeout time.Duration
}

// Gemini calls generateContent through the Google Gen AI SDK
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model not configured")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: strings.TrimRight(cfg.BaseURL, "/")},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{
		client: client,
		model:  strings.TrimPrefix(cfg.Model, "models/"),
	}, nil
}

// Generate sends one prompt and returns the raw candidates
func (g *Gemini) Generate(ctx context.Context, r Request) (*Response, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(r.Config.Temperature)),
		MaxOutputTokens: int32(r.Config.MaxOutputTokens),
	}
	if r.Config.TopP > 0 {
		config.TopP = genai.Ptr(float32(r.Config.TopP))
	}
	if r.Config.TopK > 0 {
		config.TopK = genai.Ptr(float32(r.Config.TopK))
	}
	if r.System != "" {
		config.SystemInstruction = genai.NewContentFromText(r.System, genai.RoleUser)
	}
	for _, s := range r.Safety {
		config.SafetySettings = append(config.SafetySettings, &genai.SafetySetting{
			Category:  genai.HarmCategory(s.Category),
			Threshold: genai.HarmBlockThreshold(s.Threshold),
		})
	}

	out, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(r.Prompt), config)
	if err != nil {
		return nil, fmt.Errorf("gemini generateContent failed: %w", err)
	}

	result := &Response{}
	if out.PromptFeedback != nil {
		result.PromptBlockReason = string(out.PromptFeedback.BlockReason)
	}
	for _, c := range out.Candidates {
		if c == nil {
			continue
		}
		cand := Candidate{FinishReason: FinishReason(c.FinishReason)}
		if c.Content != nil {
			for _, p := range c.Content.Parts {
				// Thought summaries are not part of the answer
				if p == nil || p.Thought {
					continue
				}
				cand.Parts = append(cand.Parts, Part{Text: p.Text})
			}
		}
		result.Candidates = append(result.Candidates, cand)
	}
	return result, nil
}
