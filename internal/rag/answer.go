package rag

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"book-rag/internal/llm"
	"book-rag/internal/metrics"
	"book-rag/internal/models"
)

// Fixed replies used when the model gives nothing usable
const (
	FallbackBlocked    = "I understand you're asking about this topic. While I'm having trouble generating a detailed response, I can tell you that the relevant information can be found in the sections listed below. Please refer to those sections for a complete explanation."
	FallbackProvider   = "I'm having trouble answering right now. Please try again or rephrase your question."
	FallbackRecitation = "I apologize, but I cannot provide that answer due to content policy restrictions. Please try rephrasing your question."
	FallbackAbnormal   = "I'm having trouble generating a response. Please try rephrasing your question."
	FallbackGeneric    = "I'm having trouble answering right now. Please try again."
)

const (
	DefaultMaxAttempts     = 3
	DefaultTemperature     = 0.7
	DefaultTemperatureStep = 0.15
	DefaultMaxOutputTokens = 1500
	DefaultTopP            = 0.95
	DefaultTopK            = 40
	DefaultAttemptTimeout  = 30 * time.Second
)

// AnswerGenerator turns a question and its context into prose. Each attempt
// sends less book text than the one before, so a reply blocked for
// recitation has a chance to succeed on the next try.
type AnswerGenerator struct {
	Model           llm.Generator
	System          string
	Domain          string
	MaxAttempts     int
	Temperature     float64
	TemperatureStep float64
	MaxOutputTokens int
	TopP            float64
	TopK            int
	Safety          []llm.SafetySetting
	AttemptTimeout  time.Duration
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

func NewAnswerGenerator(model llm.Generator, logger *slog.Logger, m *metrics.Metrics) *AnswerGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerGenerator{
		Model:           model,
		System:          SystemInstructions(DefaultSubject),
		Domain:          DefaultDomain,
		MaxAttempts:     DefaultMaxAttempts,
		Temperature:     DefaultTemperature,
		TemperatureStep: DefaultTemperatureStep,
		MaxOutputTokens: DefaultMaxOutputTokens,
		TopP:            DefaultTopP,
		TopK:            DefaultTopK,
		Safety:          llm.PermissiveSafety(),
		AttemptTimeout:  DefaultAttemptTimeout,
		Logger:          logger,
		Metrics:         m,
	}
}

// Prompt returns the prompt for a 1-based attempt number
func (g *AnswerGenerator) Prompt(attempt int, message string, chunks []models.RetrievalResult) string {
	switch {
	case attempt <= 1:
		return FullPrompt(message, chunks)
	case attempt == 2 && len(chunks) > 0:
		return ReducedPrompt(message, chunks[0])
	case attempt == 2:
		return FullPrompt(message, chunks)
	default:
		return GeneralPrompt(message, g.Domain)
	}
}

// TemperatureFor returns the sampling temperature of a 1-based attempt
func (g *AnswerGenerator) TemperatureFor(attempt int) float64 {
	return g.Temperature + float64(attempt-1)*g.TemperatureStep
}

// Generate runs the retry ladder. It always returns displayable text.
func (g *AnswerGenerator) Generate(ctx context.Context, message string, chunks []models.RetrievalResult) string {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			g.Logger.Info("retrying generation", "attempt", attempt)
		}

		resp, err := g.call(ctx, attempt, message, chunks)
		if err != nil {
			g.Metrics.GenerationAttempt(attempt, "error")
			g.Logger.Error("generation failed", "error", &models.GenerationError{Attempt: attempt, Err: err})
			return FallbackProvider
		}

		if resp.Blocked() {
			g.Metrics.GenerationAttempt(attempt, "blocked")
			g.Logger.Warn("response blocked for recitation", "attempt", attempt)
			if attempt < attempts {
				continue
			}
			g.Metrics.GenerationBlocked()
			g.Logger.Info("all generation attempts blocked, using fallback")
			return FallbackBlocked
		}

		g.Metrics.GenerationAttempt(attempt, "ok")
		return g.extract(resp)
	}
	return FallbackBlocked
}

func (g *AnswerGenerator) call(ctx context.Context, attempt int, message string, chunks []models.RetrievalResult) (*llm.Response, error) {
	timeout := g.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return g.Model.Generate(actx, llm.Request{
		System: g.System,
		Prompt: g.Prompt(attempt, message, chunks),
		Config: llm.GenerationConfig{
			Temperature:     g.TemperatureFor(attempt),
			MaxOutputTokens: g.MaxOutputTokens,
			TopP:            g.TopP,
			TopK:            g.TopK,
		},
		Safety: g.Safety,
	})
}

func (g *AnswerGenerator) extract(resp *llm.Response) string {
	text, reason := ExtractAnswer(resp)
	if reason != "" {
		g.Logger.Warn("no usable text in response", "reason", reason)
	}
	return text
}

// ExtractAnswer pulls displayable text out of a response. The second value
// explains why a fallback was used and is empty on success.
func ExtractAnswer(resp *llm.Response) (string, string) {
	if resp == nil {
		return FallbackGeneric, "empty response"
	}

	text, err := resp.Text()
	if err == nil && strings.TrimSpace(text) != "" {
		return text, ""
	}
	if err != nil && !errors.Is(err, llm.ErrTextUnavailable) {
		return FallbackGeneric, err.Error()
	}

	for _, c := range resp.Candidates {
		for _, p := range c.Parts {
			if strings.TrimSpace(p.Text) != "" {
				return p.Text, ""
			}
		}
		if c.FinishReason == llm.FinishRecitation {
			return FallbackRecitation, "recitation"
		}
		if !c.FinishReason.Normal() {
			return FallbackAbnormal, "finish reason " + string(c.FinishReason)
		}
	}
	return FallbackGeneric, "no text"
}
