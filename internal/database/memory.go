package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"book-rag/internal/models"
)

// Memory keeps interactions and jobs in process. It backs the service when
// no database is configured and is lost on restart.
type Memory struct {
	mu   sync.RWMutex
	logs []models.Interaction
	jobs map[string]models.EmbeddingJob
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]models.EmbeddingJob)}
}

func (m *Memory) LogInteraction(_ context.Context, in models.Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, in)
	return nil
}

func (m *Memory) ListInteractions(_ context.Context, q models.LogQuery) (models.LogPage, error) {
	q = q.Normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []models.Interaction
	for _, in := range m.logs {
		if q.Mode == "" || in.Mode == q.Mode {
			matched = append(matched, in)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := models.LogPage{Logs: []models.Interaction{}, Total: len(matched), Limit: q.Limit, Offset: q.Offset}
	if q.Offset < len(matched) {
		end := min(q.Offset+q.Limit, len(matched))
		page.Logs = append(page.Logs, matched[q.Offset:end]...)
	}
	return page, nil
}

func (m *Memory) CreateJob(_ context.Context, job models.EmbeddingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *Memory) UpdateJob(_ context.Context, id string, u models.JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	u.Apply(&job)
	m.jobs[id] = job
	return nil
}

func (m *Memory) GetJob(_ context.Context, id string) (models.EmbeddingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.EmbeddingJob{}, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return job, nil
}
