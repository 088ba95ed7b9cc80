package database

import (
	"context"
	"errors"
	"fmt"

	"book-rag/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB represents the database connection
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, connStr string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Ping checks that the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// LogInteraction stores one answered question
func (db *DB) LogInteraction(ctx context.Context, in models.Interaction) error {
	sources := in.Sources
	if sources == nil {
		sources = []models.Source{}
	}
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO chat_logs (id, question, answer, mode, session_id, sources, created_at)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
    `,
		in.ID,
		in.Question,
		in.Answer,
		in.Mode,
		in.SessionID,
		sources,
		in.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log interaction: %w", err)
	}
	return nil
}

// ListInteractions returns a page of logs, newest first
func (db *DB) ListInteractions(ctx context.Context, q models.LogQuery) (models.LogPage, error) {
	q = q.Normalize()
	page := models.LogPage{Logs: []models.Interaction{}, Limit: q.Limit, Offset: q.Offset}

	err := db.Pool.QueryRow(ctx, `
		SELECT count(*) FROM chat_logs WHERE ($1 = '' OR mode = $1)
	`, q.Mode).Scan(&page.Total)
	if err != nil {
		return page, fmt.Errorf("failed to count interactions: %w", err)
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id::text, question, answer, mode, COALESCE(session_id, ''), sources, created_at
		FROM chat_logs
		WHERE ($1 = '' OR mode = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, q.Mode, q.Limit, q.Offset)
	if err != nil {
		return page, fmt.Errorf("failed to query interactions: %w", err)
	}

	logs, err := processRows(rows)
	if err != nil {
		return page, err
	}
	page.Logs = append(page.Logs, logs...)
	return page, nil
}

// CreateJob stores a new embedding job
func (db *DB) CreateJob(ctx context.Context, job models.EmbeddingJob) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO embedding_jobs (
            id, source_path, status, total_files, processed_files,
            total_embeddings, start_time, end_time, error_message
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
    `,
		job.ID,
		job.SourcePath,
		string(job.Status),
		job.TotalFiles,
		job.ProcessedFiles,
		job.TotalEmbeddings,
		job.StartTime,
		job.EndTime,
		job.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// UpdateJob changes the fields set in u
func (db *DB) UpdateJob(ctx context.Context, id string, u models.JobUpdate) error {
	var status *string
	if u.Status != nil {
		s := string(*u.Status)
		status = &s
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE embedding_jobs SET
			status = COALESCE($2, status),
			total_files = COALESCE($3, total_files),
			processed_files = COALESCE($4, processed_files),
			total_embeddings = COALESCE($5, total_embeddings),
			end_time = COALESCE($6, end_time),
			error_message = COALESCE($7, error_message)
		WHERE id = $1
	`, id, status, u.TotalFiles, u.ProcessedFiles, u.TotalEmbeddings, u.EndTime, u.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// GetJob loads a job by id
func (db *DB) GetJob(ctx context.Context, id string) (models.EmbeddingJob, error) {
	var (
		job    models.EmbeddingJob
		status string
	)
	err := db.Pool.QueryRow(ctx, `
		SELECT id::text, source_path, status, total_files, processed_files,
		       total_embeddings, start_time, end_time, COALESCE(error_message, '')
		FROM embedding_jobs
		WHERE id = $1
	`, id).Scan(
		&job.ID,
		&job.SourcePath,
		&status,
		&job.TotalFiles,
		&job.ProcessedFiles,
		&job.TotalEmbeddings,
		&job.StartTime,
		&job.EndTime,
		&job.ErrorMessage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.EmbeddingJob{}, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
		}
		return models.EmbeddingJob{}, fmt.Errorf("failed to get job: %w", err)
	}
	job.Status = models.JobStatus(status)
	return job, nil
}

func processRows(rows pgx.Rows) ([]models.Interaction, error) {
	defer rows.Close()

	var logs []models.Interaction
	for rows.Next() {
		var in models.Interaction
		if err := rows.Scan(
			&in.ID,
			&in.Question,
			&in.Answer,
			&in.Mode,
			&in.SessionID,
			&in.Sources,
			&in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		logs = append(logs, in)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return logs, nil
}

// Close closes the database connection
func (db *DB) Close() {
	db.Pool.Close()
}
