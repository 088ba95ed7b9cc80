package rag

import (
	"context"
	"log/slog"
	"time"

	"book-rag/internal/models"

	"github.com/google/uuid"
)

// InteractionStore records answered turns and lists them back
type InteractionStore interface {
	LogInteraction(ctx context.Context, in models.Interaction) error
	ListInteractions(ctx context.Context, q models.LogQuery) (models.LogPage, error)
}

// Runner answers a single turn
type Runner interface {
	Run(ctx context.Context, turn models.Turn) models.Answer
}

// ChatResponse is the answer to a turn plus the session it belongs to
type ChatResponse struct {
	models.Answer
	SessionID string `json:"session_id"`
}

// Service validates turns, runs them and logs the result
type Service struct {
	Agent      Runner
	Store      InteractionStore
	Logger     *slog.Logger
	LogTimeout time.Duration
	now        func() time.Time
}

func NewService(agent Runner, store InteractionStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Agent:      agent,
		Store:      store,
		Logger:     logger,
		LogTimeout: 5 * time.Second,
		now:        time.Now,
	}
}

// Chat answers a turn. Only invalid input produces an error; failures to
// record the interaction are logged and otherwise ignored.
func (s *Service) Chat(ctx context.Context, turn models.Turn) (ChatResponse, error) {
	turn, err := models.NewTurn(turn.Message, turn.SelectedText, turn.SessionID)
	if err != nil {
		return ChatResponse{}, err
	}
	if turn.SessionID == "" {
		turn.SessionID = uuid.NewString()
	}

	answer := s.Agent.Run(ctx, turn)
	if answer.Sources == nil {
		answer.Sources = []models.Source{}
	}

	mode := models.ModeRAG
	if turn.HasSelection() {
		mode = models.ModeSelected
	}
	s.record(ctx, models.Interaction{
		ID:        uuid.NewString(),
		Question:  turn.Message,
		Answer:    answer.Text,
		Mode:      mode.LogMode(),
		SessionID: turn.SessionID,
		Sources:   answer.Sources,
		CreatedAt: s.now().UTC(),
	})

	return ChatResponse{Answer: answer, SessionID: turn.SessionID}, nil
}

func (s *Service) record(ctx context.Context, in models.Interaction) {
	if s.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.LogTimeout)
	defer cancel()
	if err := s.Store.LogInteraction(ctx, in); err != nil {
		s.Logger.Warn("failed to log interaction", "session_id", in.SessionID, "error", err)
	}
}

// Logs returns a page of recorded interactions
func (s *Service) Logs(ctx context.Context, q models.LogQuery) (models.LogPage, error) {
	if err := models.ValidateLogMode(q.Mode); err != nil {
		return models.LogPage{}, err
	}
	q = q.Normalize()
	if s.Store == nil {
		return models.LogPage{Logs: []models.Interaction{}, Limit: q.Limit, Offset: q.Offset}, nil
	}
	return s.Store.ListInteractions(ctx, q)
}
