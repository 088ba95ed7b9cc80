package models

import (
	"time"
)

// Document represents a parsed source file of the book
type Document struct {
	Path           string   `json:"path"`
	Title          string   `json:"title"`
	RawText        string   `json:"raw_text"`
	SectionHeaders []string `json:"section_headers"`
	Chapter        string   `json:"chapter"`
}

// Chunk represents a bounded span of document text prepared for embedding
type Chunk struct {
	Content  string        `json:"content"`
	Index    int           `json:"index"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkMetadata contains information about where a chunk came from
type ChunkMetadata struct {
	FilePath string `json:"file_path"`
	Section  string `json:"section"`
	Chapter  string `json:"chapter"`
	Title    string `json:"title"`
}

// IndexedChunk is the payload stored next to a vector in the index
type IndexedChunk struct {
	ID         string    `json:"id"`
	Vector     []float32 `json:"-"`
	Content    string    `json:"content"`
	FilePath   string    `json:"file_path"`
	Section    string    `json:"section"`
	Chapter    string    `json:"chapter"`
	ChunkIndex int       `json:"chunk_index"`
}

// RetrievalResult is a chunk returned for a query with its relevance
type RetrievalResult struct {
	Content        string  `json:"content"`
	FilePath       string  `json:"file_path"`
	Section        string  `json:"section"`
	Chapter        string  `json:"chapter"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Intent is the category assigned to an incoming message
type Intent string

const (
	IntentGreeting   Intent = "greeting"
	IntentThanks     Intent = "thanks"
	IntentShortQuery Intent = "short_query"
	IntentKnowledge  Intent = "knowledge"
)

// Mode selects where the context for an answer comes from
type Mode string

const (
	ModeRAG      Mode = "rag"
	ModeSelected Mode = "selected"
)

// LogMode returns the label used for interaction logs
func (m Mode) LogMode() string {
	if m == ModeSelected {
		return "selected"
	}
	return "full"
}

// Source describes where part of an answer came from
type Source struct {
	FilePath       string  `json:"file_path"`
	Section        string  `json:"section"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Answer is the final response for one conversation turn
type Answer struct {
	Text        string   `json:"answer"`
	Sources     []Source `json:"sources"`
	ContextUsed bool     `json:"context_used"`
	Intent      Intent   `json:"intent"`
	Mode        Mode     `json:"mode,omitempty"`
	// Degraded is set when retrieval fell back to an unranked listing
	Degraded bool `json:"degraded,omitempty"`
}

// JobStatus is the lifecycle state of an embedding job
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// EmbeddingJob tracks one indexing run over a directory
type EmbeddingJob struct {
	ID              string     `json:"job_id"`
	SourcePath      string     `json:"source_path"`
	Status          JobStatus  `json:"status"`
	TotalFiles      int        `json:"total_files"`
	ProcessedFiles  int        `json:"processed_files"`
	TotalEmbeddings int        `json:"total_embeddings"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// JobUpdate carries the fields to change on a job; nil fields are left as is
type JobUpdate struct {
	Status          *JobStatus
	TotalFiles      *int
	ProcessedFiles  *int
	TotalEmbeddings *int
	EndTime         *time.Time
	ErrorMessage    *string
}

// Apply copies the set fields of u onto job
func (u JobUpdate) Apply(job *EmbeddingJob) {
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.TotalFiles != nil {
		job.TotalFiles = *u.TotalFiles
	}
	if u.ProcessedFiles != nil {
		job.ProcessedFiles = *u.ProcessedFiles
	}
	if u.TotalEmbeddings != nil {
		job.TotalEmbeddings = *u.TotalEmbeddings
	}
	if u.EndTime != nil {
		t := *u.EndTime
		job.EndTime = &t
	}
	if u.ErrorMessage != nil {
		job.ErrorMessage = *u.ErrorMessage
	}
}

// Interaction is one logged question and answer
type Interaction struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Mode      string    `json:"mode"`
	SessionID string    `json:"session_id,omitempty"`
	Sources   []Source  `json:"sources"`
	CreatedAt time.Time `json:"timestamp"`
}

// LogPage is one page of interaction logs
type LogPage struct {
	Logs   []Interaction `json:"logs"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// LogQuery selects a page of interaction logs; an empty Mode matches all
type LogQuery struct {
	Mode   string
	Limit  int
	Offset int
}

const (
	DefaultLogLimit = 20
	MaxLogLimit     = 100
)

// Normalize clamps the paging fields into their allowed ranges
func (q LogQuery) Normalize() LogQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultLogLimit
	}
	if q.Limit > MaxLogLimit {
		q.Limit = MaxLogLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
