package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"book-rag/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var unsafeIdentRe = regexp.MustCompile(`[^a-z0-9_]+`)

// PGVector stores each collection in its own Postgres table using the
// pgvector extension. It offers query and scroll.
type PGVector struct {
	Pool *pgxpool.Pool
}

func NewPGVector(pool *pgxpool.Pool) *PGVector {
	return &PGVector{Pool: pool}
}

// tableName maps a collection name onto a safe SQL identifier
func tableName(collection string) string {
	name := unsafeIdentRe.ReplaceAllString(strings.ToLower(collection), "_")
	return "vec_" + strings.Trim(name, "_")
}

func (p *PGVector) Ping(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}

// EnsureCollection sets up the table and its cosine index
func (p *PGVector) EnsureCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	table := tableName(name)

	if _, err := p.Pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	_, err := p.Pool.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id TEXT PRIMARY KEY,
            content TEXT NOT NULL,
            file_path TEXT NOT NULL DEFAULT '',
            section TEXT NOT NULL DEFAULT '',
            chapter TEXT NOT NULL DEFAULT '',
            chunk_index INTEGER NOT NULL DEFAULT 0,
            embedding vector(%d) NOT NULL
        )
    `, table, dim))
	if err != nil {
		return fmt.Errorf("failed to create %s table: %w", table, err)
	}

	// Create vector index. HNSW needs no training data, so it can be built
	// before the first upsert.
	_, err = p.Pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s
		USING hnsw (embedding vector_cosine_ops)
	`, table, table))
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	return nil
}

// Upsert stores points in a single batch
func (p *PGVector) Upsert(ctx context.Context, name string, points []models.IndexedChunk) error {
	table := tableName(name)
	query := fmt.Sprintf(`
        INSERT INTO %s (id, content, file_path, section, chapter, chunk_index, embedding)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            content = EXCLUDED.content,
            file_path = EXCLUDED.file_path,
            section = EXCLUDED.section,
            chapter = EXCLUDED.chapter,
            chunk_index = EXCLUDED.chunk_index,
            embedding = EXCLUDED.embedding
    `, table)

	batch := &pgx.Batch{}
	for _, pt := range points {
		batch.Queue(query,
			pt.ID,
			pt.Content,
			pt.FilePath,
			pt.Section,
			pt.Chapter,
			pt.ChunkIndex,
			pgvector.NewVector(pt.Vector))
	}

	if err := p.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

func (p *PGVector) Count(ctx context.Context, name string) (int, error) {
	var n int
	err := p.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, tableName(name))).Scan(&n)
	if err != nil {
		if isUndefinedTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return n, nil
}

func (p *PGVector) DeleteCollection(ctx context.Context, name string) error {
	if _, err := p.Pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableName(name))); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// QueryPoints finds points similar to vector. Score is cosine similarity.
func (p *PGVector) QueryPoints(ctx context.Context, name string, vector []float32, limit int) ([]Hit, error) {
	rows, err := p.Pool.Query(ctx, fmt.Sprintf(`
		SELECT id, content, file_path, section, chapter, chunk_index,
		       1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2
	`, tableName(name)), pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar chunks: %w", err)
	}
	return processRows(rows)
}

// ScrollPoints lists points in storage order with a zero score
func (p *PGVector) ScrollPoints(ctx context.Context, name string, limit int) ([]Hit, error) {
	rows, err := p.Pool.Query(ctx, fmt.Sprintf(`
		SELECT id, content, file_path, section, chapter, chunk_index,
		       0::float8 AS score
		FROM %s
		ORDER BY file_path, chunk_index
		LIMIT $1
	`, tableName(name)), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scroll chunks: %w", err)
	}
	return processRows(rows)
}

func processRows(rows pgx.Rows) ([]Hit, error) {
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		if err := rows.Scan(
			&hit.Chunk.ID,
			&hit.Chunk.Content,
			&hit.Chunk.FilePath,
			&hit.Chunk.Section,
			&hit.Chunk.Chapter,
			&hit.Chunk.ChunkIndex,
			&hit.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hit.ID = hit.Chunk.ID
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return hits, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
