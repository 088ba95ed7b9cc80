package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"book-rag/internal/embedding"
	"book-rag/internal/metrics"
	"book-rag/internal/models"
	"book-rag/internal/processor"

	"github.com/google/uuid"
)

// ErrNoMarkdown is the job error recorded when a directory has nothing to index
const ErrNoMarkdown = "No markdown documents found in directory"

// pointNamespace scopes the deterministic point ids of this application
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("book-rag/chunks"))

// DocumentSource lists and parses source files
type DocumentSource interface {
	ListFiles(ctx context.Context, dir string) ([]string, error)
	LoadFile(root, path string) (models.Document, error)
}

// ChunkStore is the write side of the vector index
type ChunkStore interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []models.IndexedChunk) error
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

// JobStore persists embedding job state
type JobStore interface {
	CreateJob(ctx context.Context, job models.EmbeddingJob) error
	UpdateJob(ctx context.Context, id string, u models.JobUpdate) error
	GetJob(ctx context.Context, id string) (models.EmbeddingJob, error)
}

// IndexStats summarizes an indexing run
type IndexStats struct {
	Files         int
	Documents     int
	Chunks        int
	Indexed       int
	Skipped       int
	FailedBatches int
	TotalChars    int
	Sections      map[string]int
}

func (s *IndexStats) add(o IndexStats) {
	s.Documents += o.Documents
	s.Chunks += o.Chunks
	s.Indexed += o.Indexed
	s.Skipped += o.Skipped
	s.FailedBatches += o.FailedBatches
	s.TotalChars += o.TotalChars
	if s.Sections == nil {
		s.Sections = make(map[string]int)
	}
	for k, v := range o.Sections {
		s.Sections[k] += v
	}
}

// ProgressFunc is told how many chunks of a run have been handled
type ProgressFunc func(done, total int)

// Indexer loads documents, chunks them, embeds the chunks and stores them
type Indexer struct {
	Source   DocumentSource
	Chunker  *processor.Chunker
	Embedder *embedding.Batcher
	Store    ChunkStore
	Jobs     JobStore
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	wg  sync.WaitGroup
	now func() time.Time
}

func NewIndexer(source DocumentSource, chunker *processor.Chunker, embedder *embedding.Batcher, store ChunkStore, jobs JobStore, logger *slog.Logger, m *metrics.Metrics) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		Source:   source,
		Chunker:  chunker,
		Embedder: embedder,
		Store:    store,
		Jobs:     jobs,
		Logger:   logger,
		Metrics:  m,
		now:      time.Now,
	}
}

// PointID derives a stable id for a chunk so that re-indexing a file
// replaces its points instead of duplicating them
func PointID(filePath string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(filePath+"#"+strconv.Itoa(chunkIndex))).String()
}

// IndexDocuments chunks, embeds and stores docs. Invalid chunks are skipped and
// a failed batch is logged and skipped; neither aborts the run.
func (ix *Indexer) IndexDocuments(ctx context.Context, docs []models.Document, progress ProgressFunc) (IndexStats, error) {
	stats := IndexStats{Sections: make(map[string]int)}

	var chunks []models.Chunk
	for _, doc := range docs {
		stats.Documents++
		for _, c := range ix.Chunker.ChunkDocument(doc) {
			stats.Chunks++
			if ok, reason := ix.Chunker.Validate(c); !ok {
				stats.Skipped++
				ix.Logger.Debug("skipping chunk", "file", c.Metadata.FilePath, "index", c.Index, "reason", reason)
				continue
			}
			stats.TotalChars += len([]rune(c.Content))
			stats.Sections[c.Metadata.Section]++
			chunks = append(chunks, c)
		}
	}
	ix.Metrics.ChunksSkipped(stats.Skipped)

	batchSize := ix.Embedder.BatchSize
	for _, r := range embedding.Split(len(chunks), batchSize) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		batch := chunks[r.Start:r.End]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := ix.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			ix.Metrics.EmbeddingBatch(false)
			ix.Logger.Warn("failed to embed batch", "start", r.Start, "end", r.End, "error", err)
			stats.FailedBatches++
			stats.Skipped += len(batch)
			continue
		}
		ix.Metrics.EmbeddingBatch(true)

		points := make([]models.IndexedChunk, len(batch))
		for i, c := range batch {
			points[i] = models.IndexedChunk{
				ID:         PointID(c.Metadata.FilePath, c.Index),
				Vector:     vectors[i],
				Content:    c.Content,
				FilePath:   c.Metadata.FilePath,
				Section:    c.Metadata.Section,
				Chapter:    c.Metadata.Chapter,
				ChunkIndex: c.Index,
			}
		}

		if err := ix.Store.Upsert(ctx, points); err != nil {
			ix.Logger.Warn("failed to store batch", "start", r.Start, "end", r.End, "error", err)
			stats.FailedBatches++
			stats.Skipped += len(batch)
			continue
		}
		stats.Indexed += len(points)
		ix.Metrics.ChunksIndexed(len(points))

		if progress != nil {
			progress(r.End, len(chunks))
		}
	}

	return stats, nil
}

// Run indexes every document under dir. When jobID is set the job record
// follows the run from processing to completed or failed.
func (ix *Indexer) Run(ctx context.Context, dir, jobID string) (IndexStats, error) {
	stats, err := ix.run(ctx, dir, jobID)
	if err != nil {
		ix.finish(ctx, jobID, models.JobFailed, nil, err.Error())
		return stats, err
	}
	return stats, nil
}

func (ix *Indexer) run(ctx context.Context, dir, jobID string) (IndexStats, error) {
	var stats IndexStats

	files, err := ix.Source.ListFiles(ctx, dir)
	if err != nil {
		return stats, err
	}
	if len(files) == 0 {
		return stats, errors.New(ErrNoMarkdown)
	}
	stats.Files = len(files)

	processing := models.JobProcessing
	total := len(files)
	ix.updateJob(ctx, jobID, models.JobUpdate{Status: &processing, TotalFiles: &total})

	if err := ix.Store.EnsureCollection(ctx); err != nil {
		return stats, fmt.Errorf("failed to prepare collection: %w", err)
	}

	for i, path := range files {
		doc, err := ix.Source.LoadFile(dir, path)
		if err != nil {
			ix.Logger.Warn("skipping unreadable file", "file", path, "error", err)
		} else {
			docStats, err := ix.IndexDocuments(ctx, []models.Document{doc}, nil)
			stats.add(docStats)
			if err != nil {
				return stats, err
			}
			ix.Logger.Info("indexed file", "file", doc.Path, "chunks", docStats.Indexed, "skipped", docStats.Skipped)
		}

		processed := i + 1
		ix.updateJob(ctx, jobID, models.JobUpdate{ProcessedFiles: &processed})
	}

	count, err := ix.Store.Count(ctx)
	if err != nil {
		ix.Logger.Warn("failed to count stored points", "error", err)
		count = stats.Indexed
	}
	ix.finish(ctx, jobID, models.JobCompleted, &count, "")

	ix.Logger.Info("indexing complete",
		"files", stats.Files,
		"documents", stats.Documents,
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"failed_batches", stats.FailedBatches,
		"points", count)
	return stats, nil
}

// Start creates a pending job and indexes dir in the background. The work is
// detached from ctx cancellation; use Wait to block until it is done.
func (ix *Indexer) Start(ctx context.Context, dir string) (models.EmbeddingJob, error) {
	if ix.Jobs == nil {
		return models.EmbeddingJob{}, errors.New("job store not configured")
	}
	job := models.EmbeddingJob{
		ID:         uuid.NewString(),
		SourcePath: dir,
		Status:     models.JobPending,
		StartTime:  ix.now().UTC(),
	}
	if err := ix.Jobs.CreateJob(ctx, job); err != nil {
		return models.EmbeddingJob{}, fmt.Errorf("failed to create job: %w", err)
	}
	ix.Metrics.IndexJob(string(models.JobPending))

	bg := context.WithoutCancel(ctx)
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				ix.Logger.Error("indexing job panicked", "job_id", job.ID, "panic", r)
				ix.finish(bg, job.ID, models.JobFailed, nil, fmt.Sprint(r))
			}
		}()
		if _, err := ix.Run(bg, dir, job.ID); err != nil {
			ix.Logger.Error("indexing job failed", "job_id", job.ID, "error", err)
		}
	}()

	return job, nil
}

// Wait blocks until all background jobs have finished
func (ix *Indexer) Wait() {
	ix.wg.Wait()
}

// Job returns the current state of a job
func (ix *Indexer) Job(ctx context.Context, id string) (models.EmbeddingJob, error) {
	if ix.Jobs == nil {
		return models.EmbeddingJob{}, models.ErrNotFound
	}
	return ix.Jobs.GetJob(ctx, id)
}

// Count returns the number of stored points
func (ix *Indexer) Count(ctx context.Context) (int, error) {
	return ix.Store.Count(ctx)
}

// Reset empties the collection
func (ix *Indexer) Reset(ctx context.Context) error {
	return ix.Store.Reset(ctx)
}

func (ix *Indexer) finish(ctx context.Context, jobID string, status models.JobStatus, embeddings *int, msg string) {
	if jobID == "" {
		return
	}
	end := ix.now().UTC()
	u := models.JobUpdate{Status: &status, EndTime: &end, TotalEmbeddings: embeddings}
	if msg != "" {
		u.ErrorMessage = &msg
	}
	ix.updateJob(ctx, jobID, u)
	ix.Metrics.IndexJob(string(status))
}

func (ix *Indexer) updateJob(ctx context.Context, jobID string, u models.JobUpdate) {
	if jobID == "" || ix.Jobs == nil {
		return
	}
	if err := ix.Jobs.UpdateJob(ctx, jobID, u); err != nil {
		ix.Logger.Warn("failed to update job", "job_id", jobID, "error", err)
	}
}
