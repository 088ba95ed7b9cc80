package rag

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"book-rag/internal/llm"
	"book-rag/internal/models"
	"book-rag/internal/vectorindex"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingEmbedder returns a fixed-size vector per text
type countingEmbedder struct {
	mu    sync.Mutex
	dim   int
	calls int
	texts []string
	err   error
	// failOn makes the given 1-based call fail
	failOn int
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.texts = append(e.texts, texts...)
	if e.err != nil || e.calls == e.failOn {
		if e.err != nil {
			return nil, e.err
		}
		return nil, errors.New("provider unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.dim)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

// countingSearcher returns scripted hits
type countingSearcher struct {
	calls  int
	result vectorindex.SearchResult
	err    error
}

func (s *countingSearcher) Search(_ context.Context, _ []float32, _ int) (vectorindex.SearchResult, error) {
	s.calls++
	return s.result, s.err
}

type scriptedReply struct {
	resp *llm.Response
	err  error
}

// scriptedModel replays replies in order and records every request
type scriptedModel struct {
	replies  []scriptedReply
	requests []llm.Request
}

func (m *scriptedModel) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.requests = append(m.requests, req)
	if len(m.requests) > len(m.replies) {
		return nil, errors.New("unexpected call")
	}
	r := m.replies[len(m.requests)-1]
	return r.resp, r.err
}

func textReply(text string) scriptedReply {
	return scriptedReply{resp: &llm.Response{Candidates: []llm.Candidate{{
		Parts:        []llm.Part{{Text: text}},
		FinishReason: llm.FinishStop,
	}}}}
}

func blockedReply() scriptedReply {
	return scriptedReply{resp: &llm.Response{Candidates: []llm.Candidate{{
		FinishReason: llm.FinishRecitation,
	}}}}
}

// memoryJobs is a job store kept in a map
type memoryJobs struct {
	mu   sync.Mutex
	jobs map[string]models.EmbeddingJob
}

func newMemoryJobs() *memoryJobs {
	return &memoryJobs{jobs: make(map[string]models.EmbeddingJob)}
}

func (s *memoryJobs) CreateJob(_ context.Context, job models.EmbeddingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *memoryJobs) UpdateJob(_ context.Context, id string, u models.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	u.Apply(&job)
	s.jobs[id] = job
	return nil
}

func (s *memoryJobs) GetJob(_ context.Context, id string) (models.EmbeddingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.EmbeddingJob{}, models.ErrNotFound
	}
	return job, nil
}
