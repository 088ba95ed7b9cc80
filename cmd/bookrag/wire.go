package main

import (
	"context"
	"fmt"
	"log/slog"

	"book-rag/internal/config"
	"book-rag/internal/database"
	"book-rag/internal/embedding"
	"book-rag/internal/llm"
	"book-rag/internal/metrics"
	"book-rag/internal/processor"
	"book-rag/internal/rag"
	"book-rag/internal/server"
	"book-rag/internal/vectorindex"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app holds the wired dependencies shared by all commands
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	index    *vectorindex.Index
	indexer  *rag.Indexer
	service  *rag.Service
	checks   map[string]server.Check
	closers  []func()
}

// store is what the service and the indexer persist to
type store interface {
	rag.InteractionStore
	rag.JobStore
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		checks:   make(map[string]server.Check),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.registry)

	// Connect to database
	var st store = database.NewMemory()
	var db *database.DB
	if cfg.Database.URL != "" {
		var err error
		db, err = database.NewDB(ctx, cfg.Database.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.checks["database"] = db.Ping
		st = db
	} else {
		logger.Warn("database.url not set, chat logs and jobs are kept in memory")
	}

	// Create embedder
	ollamaEmbedder, err := embedding.NewOllama(cfg.Embedding.Host, cfg.Embedding.Model)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	ollamaEmbedder.MaxRetries = cfg.Embedding.MaxRetries
	if cfg.Embedding.Timeout > 0 {
		ollamaEmbedder.Timeout = cfg.Embedding.Timeout
	}
	var gw embedding.Gateway = ollamaEmbedder
	if cfg.Embedding.Cache.RedisURL != "" {
		cache, err := embedding.NewRedisCache(ctx, cfg.Embedding.Cache.RedisURL, cfg.Embedding.Cache.TTL)
		if err != nil {
			logger.Warn("embedding cache unavailable, continuing without it", "error", err)
		} else {
			a.closers = append(a.closers, func() { _ = cache.Close() })
			gw = embedding.NewCached(gw, cache, cfg.Embedding.Model, logger)
		}
	}
	batcher := embedding.NewBatcher(gw, cfg.Embedding.BatchSize, cfg.Embedding.Dimensions)

	// Create vector index
	var backend vectorindex.Backend
	switch cfg.Vector.Backend {
	case "qdrant":
		backend = vectorindex.NewQdrant(vectorindex.QdrantConfig{
			URL:     cfg.Vector.Qdrant.URL,
			APIKey:  cfg.Vector.Qdrant.APIKey,
			Timeout: cfg.Vector.Qdrant.Timeout,
		})
	case "pgvector":
		if db == nil {
			a.Close()
			return nil, fmt.Errorf("pgvector backend requires database.url")
		}
		backend = vectorindex.NewPGVector(db.Pool)
	default:
		logger.Warn("using in-memory vector index, indexed chunks are lost on exit")
		backend = vectorindex.NewMemory()
	}
	a.index = vectorindex.NewIndex(backend, cfg.Vector.Collection, cfg.Embedding.Dimensions, logger)
	a.checks["vector_index"] = a.index.Ping

	// Create LLM
	model, err := newGenerator(cfg.Generation)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	writer := rag.NewAnswerGenerator(model, logger, m)
	writer.System = rag.SystemInstructions(cfg.Book.Subject)
	writer.Domain = cfg.Book.Domain
	writer.MaxAttempts = cfg.Agent.MaxAttempts
	writer.Temperature = cfg.Agent.Temperature
	writer.TemperatureStep = cfg.Agent.TemperatureStep
	writer.MaxOutputTokens = cfg.Agent.MaxOutputTokens
	writer.AttemptTimeout = cfg.Agent.AttemptTimeout

	agent := rag.NewAgent(rag.NewRetriever(batcher, a.index), writer, logger, m)
	agent.Subject = cfg.Book.Subject
	agent.TopK = cfg.Agent.TopK
	agent.MaxSources = cfg.Agent.MaxSources
	agent.RequestTimeout = cfg.Agent.RequestTimeout

	a.service = rag.NewService(agent, st, logger)

	chunker := processor.NewChunker(
		processor.WithSize(cfg.Chunker.Size),
		processor.WithOverlap(cfg.Chunker.Overlap),
	)
	loader := processor.NewLoader(processor.Format(cfg.Book.Format), logger)
	a.indexer = rag.NewIndexer(loader, chunker, batcher, a.index, st, logger, m)

	return a, nil
}

func newGenerator(cfg config.GenerationConfig) (llm.Generator, error) {
	switch cfg.Provider {
	case "ollama":
		return llm.NewOllama(cfg.Ollama.Host, cfg.Ollama.Model)
	default:
		return llm.NewGemini(llm.GeminiConfig{
			APIKey:  cfg.Gemini.APIKey,
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
			Timeout: cfg.Gemini.Timeout,
		})
	}
}

// Close releases connections in reverse order of creation
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
