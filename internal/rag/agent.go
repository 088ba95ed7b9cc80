package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"book-rag/internal/metrics"
	"book-rag/internal/models"
)

const (
	// DefaultRetrievalTopK is how many chunks are fetched per question
	DefaultRetrievalTopK = 5
	// DefaultMaxSources caps the sources attached to an answer
	DefaultMaxSources = 3
	// DefaultRequestTimeout bounds a whole turn
	DefaultRequestTimeout = 90 * time.Second
)

// ContextRetriever finds context for a question
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, mode models.Mode, topK int) (Retrieval, error)
}

// AnswerWriter produces the final answer text
type AnswerWriter interface {
	Generate(ctx context.Context, message string, chunks []models.RetrievalResult) string
}

// Agent runs one conversation turn end to end: classify, retrieve, generate
// and attach sources. It never returns an error to its caller.
type Agent struct {
	Retriever      ContextRetriever
	Writer         AnswerWriter
	Subject        string
	TopK           int
	MaxSources     int
	RequestTimeout time.Duration
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

func NewAgent(retriever ContextRetriever, writer AnswerWriter, logger *slog.Logger, m *metrics.Metrics) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		Retriever:      retriever,
		Writer:         writer,
		Subject:        DefaultSubject,
		TopK:           DefaultRetrievalTopK,
		MaxSources:     DefaultMaxSources,
		RequestTimeout: DefaultRequestTimeout,
		Logger:         logger,
		Metrics:        m,
	}
}

// Run answers a turn
func (a *Agent) Run(ctx context.Context, turn models.Turn) (answer models.Answer) {
	start := time.Now()
	intent := models.IntentKnowledge

	defer func() {
		if r := recover(); r != nil {
			a.Logger.Error("agent panicked", "panic", r)
			answer = models.Answer{Text: FallbackGeneric, Sources: []models.Source{}, Intent: intent}
		}
		a.Metrics.ObserveTurn(string(answer.Intent), time.Since(start))
	}()

	a.Logger.Info("agent run started",
		"message", preview(turn.Message, 50),
		"selected_text", turn.HasSelection())

	intent = Classify(turn.Message)
	a.Logger.Info("query classified", "intent", intent)

	if intent != models.IntentKnowledge {
		return models.Answer{
			Text:    a.cannedReply(intent, turn.Message),
			Sources: []models.Source{},
			Intent:  intent,
		}
	}

	timeout := a.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mode := models.ModeRAG
	query := turn.Message
	if turn.HasSelection() {
		mode = models.ModeSelected
		query = turn.SelectedText
	}

	topK := a.TopK
	if topK <= 0 {
		topK = DefaultRetrievalTopK
	}

	retrieval, err := a.Retriever.Retrieve(ctx, query, mode, topK)
	if err != nil {
		a.Metrics.RetrievalFailed()
		a.Logger.Error("retrieval failed, answering without context", "mode", mode, "error", err)
		retrieval = Retrieval{}
	} else if mode == models.ModeRAG {
		a.Metrics.Retrieval(string(retrieval.Method), retrieval.Degraded)
		if retrieval.Degraded {
			a.Logger.Warn("retrieval degraded to unranked listing", "hits", len(retrieval.Results))
		}
	}

	text := a.Writer.Generate(ctx, turn.Message, retrieval.Results)

	maxSources := a.MaxSources
	if maxSources <= 0 {
		maxSources = DefaultMaxSources
	}
	sources := DedupSources(retrieval.Results, maxSources)

	a.Logger.Info("agent run completed",
		"answer_length", len(text),
		"sources", len(sources),
		"duration", time.Since(start))

	return models.Answer{
		Text:        text,
		Sources:     sources,
		ContextUsed: len(retrieval.Results) > 0,
		Intent:      intent,
		Mode:        mode,
		Degraded:    retrieval.Degraded,
	}
}

func (a *Agent) cannedReply(intent models.Intent, message string) string {
	switch intent {
	case models.IntentGreeting:
		subject := a.Subject
		if subject == "" {
			subject = DefaultSubject
		}
		return fmt.Sprintf("Hello! 👋 I'm here to help you learn about %s. What would you like to know?", subject)
	case models.IntentThanks:
		return "You're welcome! Feel free to ask if you have any other questions."
	}
	return Clarify(message)
}

// Clarify asks the user to expand a query too short to answer
func Clarify(message string) string {
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "ros", "ros2", "ros 2":
		return "I'd be happy to explain ROS (Robot Operating System)! Would you like to know:\n- What ROS 2 is and its key features?\n- How it works as a communication framework?\n- Its role in humanoid robotics?"
	case "ai", "ml":
		return "I can explain AI and machine learning in robotics! Are you interested in:\n- AI architectures for humanoid robots?\n- Machine learning applications?\n- Specific AI tools like Isaac Sim?"
	}
	return fmt.Sprintf("I'd be happy to explain '%s'! Could you provide a bit more detail? For example:\n- Are you asking about its definition?\n- How it works?\n- Its applications in robotics?", message)
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
