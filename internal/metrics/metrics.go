// Package metrics exposes Prometheus collectors for the pipeline. All methods
// are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Turns              *prometheus.CounterVec
	GenerationAttempts *prometheus.CounterVec
	BlockedResponses   prometheus.Counter
	RetrievalMethods   *prometheus.CounterVec
	DegradedRetrievals prometheus.Counter
	RetrievalErrors    prometheus.Counter
	IndexedChunks      prometheus.Counter
	SkippedChunks      prometheus.Counter
	EmbeddingBatches   *prometheus.CounterVec
	IndexJobs          *prometheus.CounterVec
	PipelineLatency    *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookrag", Name: "turns_total",
			Help: "Conversation turns by classified intent.",
		}, []string{"intent"}),
		GenerationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookrag", Name: "generation_attempts_total",
			Help: "Generation attempts by ladder step and outcome.",
		}, []string{"attempt", "outcome"}),
		BlockedResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookrag", Name: "generation_blocked_total",
			Help: "Answers replaced by the fallback after every attempt was blocked.",
		}),
		RetrievalMethods: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookrag", Name: "retrieval_method_total",
			Help: "Vector index lookups by the method that served them.",
		}, []string{"method"}),
		DegradedRetrievals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookrag", Name: "retrieval_degraded_total",
			Help: "Lookups answered without similarity ranking.",
		}),
		RetrievalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookrag", Name: "retrieval_errors_total",
			Help: "Retrievals that failed and fell back to an empty context.",
		}),
		IndexedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookrag", Name: "indexed_chunks_total",
			Help: "Chunks stored in the vector index.",
		}),
		SkippedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookrag", Name: "skipped_chunks_total",
			Help: "Chunks rejected by validation or lost in a failed batch.",
		}),
		EmbeddingBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookrag", Name: "embedding_batches_total",
			Help: "Embedding batches by result.",
		}, []string{"result"}),
		IndexJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookrag", Name: "index_jobs_total",
			Help: "Indexing jobs by final status.",
		}, []string{"status"}),
		PipelineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bookrag", Name: "pipeline_duration_seconds",
			Help:    "Time to answer one turn.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"intent"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Turns, m.GenerationAttempts, m.BlockedResponses, m.RetrievalMethods,
			m.DegradedRetrievals, m.RetrievalErrors, m.IndexedChunks, m.SkippedChunks,
			m.EmbeddingBatches, m.IndexJobs, m.PipelineLatency,
		)
	}
	return m
}

func (m *Metrics) ObserveTurn(intent string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(intent).Inc()
	m.PipelineLatency.WithLabelValues(intent).Observe(d.Seconds())
}

func (m *Metrics) GenerationAttempt(attempt int, outcome string) {
	if m == nil {
		return
	}
	m.GenerationAttempts.WithLabelValues(attemptLabel(attempt), outcome).Inc()
}

func (m *Metrics) GenerationBlocked() {
	if m == nil {
		return
	}
	m.BlockedResponses.Inc()
}

func (m *Metrics) Retrieval(method string, degraded bool) {
	if m == nil {
		return
	}
	m.RetrievalMethods.WithLabelValues(method).Inc()
	if degraded {
		m.DegradedRetrievals.Inc()
	}
}

func (m *Metrics) RetrievalFailed() {
	if m == nil {
		return
	}
	m.RetrievalErrors.Inc()
}

func (m *Metrics) ChunksIndexed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.IndexedChunks.Add(float64(n))
}

func (m *Metrics) ChunksSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SkippedChunks.Add(float64(n))
}

func (m *Metrics) EmbeddingBatch(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.EmbeddingBatches.WithLabelValues(result).Inc()
}

func (m *Metrics) IndexJob(status string) {
	if m == nil {
		return
	}
	m.IndexJobs.WithLabelValues(status).Inc()
}

func attemptLabel(attempt int) string {
	switch attempt {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	}
	return "other"
}
