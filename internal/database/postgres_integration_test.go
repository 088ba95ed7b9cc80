package database_test

import (
	"context"
	"os"
	"testing"
	"time"

	"book-rag/internal/database"
	"book-rag/internal/models"
	"book-rag/internal/vectorindex"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() || os.Getenv("BOOKRAG_INTEGRATION") != "1" {
		t.Skip("set BOOKRAG_INTEGRATION=1 to run integration tests")
	}

	ctx := context.Background()
	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("pgvector/pgvector:pg16"),
		tcPostgres.WithDatabase("bookrag"),
		tcPostgres.WithUsername("bookrag"),
		tcPostgres.WithPassword("bookrag"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresStores(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, database.Migrate(dsn, "up", 0))
	// Applying again is a no-op
	require.NoError(t, database.Migrate(dsn, "up", 0))

	db, err := database.NewDB(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	t.Run("interactions", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, db.LogInteraction(ctx, models.Interaction{
			ID:        uuid.NewString(),
			Question:  "What is ZMP?",
			Answer:    "The zero moment point.",
			Mode:      "full",
			SessionID: "s1",
			Sources:   []models.Source{{FilePath: "ch3/balance.md", Section: "Balance", RelevanceScore: 0.8}},
			CreatedAt: now,
		}))
		require.NoError(t, db.LogInteraction(ctx, models.Interaction{
			ID:        uuid.NewString(),
			Question:  "Explain this",
			Answer:    "It is about gait.",
			Mode:      "selected",
			CreatedAt: now.Add(time.Second),
		}))

		page, err := db.ListInteractions(ctx, models.LogQuery{})
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)
		require.Len(t, page.Logs, 2)
		assert.Equal(t, "Explain this", page.Logs[0].Question)
		assert.Empty(t, page.Logs[0].SessionID)

		page, err = db.ListInteractions(ctx, models.LogQuery{Mode: "full"})
		require.NoError(t, err)
		require.Len(t, page.Logs, 1)
		assert.Equal(t, "s1", page.Logs[0].SessionID)
		require.Len(t, page.Logs[0].Sources, 1)
		assert.Equal(t, "Balance", page.Logs[0].Sources[0].Section)
	})

	t.Run("jobs", func(t *testing.T) {
		id := uuid.NewString()
		require.NoError(t, db.CreateJob(ctx, models.EmbeddingJob{
			ID: id, SourcePath: "docs", Status: models.JobPending, StartTime: time.Now().UTC(),
		}))

		failed := models.JobFailed
		msg := "No markdown documents found in directory"
		end := time.Now().UTC()
		require.NoError(t, db.UpdateJob(ctx, id, models.JobUpdate{Status: &failed, ErrorMessage: &msg, EndTime: &end}))

		job, err := db.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobFailed, job.Status)
		assert.Equal(t, msg, job.ErrorMessage)
		assert.NotNil(t, job.EndTime)

		_, err = db.GetJob(ctx, uuid.NewString())
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("pgvector backend", func(t *testing.T) {
		index := vectorindex.NewIndex(vectorindex.NewPGVector(db.Pool), "book", 3, nil)
		require.NoError(t, index.EnsureCollection(ctx))

		require.NoError(t, index.Upsert(ctx, []models.IndexedChunk{
			{ID: "a", Vector: []float32{1, 0, 0}, Content: "alpha", Section: "A"},
			{ID: "b", Vector: []float32{0, 1, 0}, Content: "beta", Section: "B"},
		}))

		n, err := index.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		res, err := index.Search(ctx, []float32{0.9, 0.1, 0}, 1)
		require.NoError(t, err)
		assert.Equal(t, vectorindex.MethodQuery, res.Method)
		require.Len(t, res.Hits, 1)
		assert.Equal(t, "A", res.Hits[0].Chunk.Section)

		require.NoError(t, index.Reset(ctx))
		n, err = index.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
