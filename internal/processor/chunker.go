package processor

import (
	"regexp"
	"strings"
	"unicode"

	"book-rag/internal/models"
)

const (
	// DefaultChunkSize is the target maximum chunk length in characters
	DefaultChunkSize = 1024
	// DefaultChunkOverlap is the number of characters repeated between chunks
	DefaultChunkOverlap = 100
)

var sectionHeaderRe = regexp.MustCompile(`(?m)^##\s+(.+?)\s*$`)

// Chunker splits document text into bounded, overlapping chunks
type Chunker struct {
	Size    int
	Overlap int
}

// ChunkerOption configures a Chunker
type ChunkerOption func(*Chunker)

// WithSize sets the target chunk size
func WithSize(size int) ChunkerOption {
	return func(c *Chunker) { c.Size = size }
}

// WithOverlap sets the overlap between consecutive chunks
func WithOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) { c.Overlap = overlap }
}

// NewChunker creates a new chunker
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.Size <= 0 {
		c.Size = DefaultChunkSize
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	// An overlap as large as the window would never advance
	if c.Overlap >= c.Size {
		c.Overlap = c.Size / 4
	}
	return c
}

// span is a half-open rune range [start, end) of the source text
type span struct {
	start, end int
}

// Chunk splits text and attaches the same metadata to every chunk
func (c *Chunker) Chunk(text string, meta models.ChunkMetadata) []models.Chunk {
	runes := []rune(text)
	var chunks []models.Chunk
	for _, s := range c.spans(runes) {
		content := strings.TrimSpace(string(runes[s.start:s.end]))
		if content == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			Content:  content,
			Index:    len(chunks),
			Metadata: meta,
		})
	}
	return chunks
}

// ChunkDocument splits a document, resolving each chunk's section from the
// nearest "## " header at or before the chunk start
func (c *Chunker) ChunkDocument(doc models.Document) []models.Chunk {
	runes := []rune(doc.RawText)
	headers := sectionOffsets(doc.RawText)

	fallback := doc.Title
	if len(doc.SectionHeaders) > 0 {
		fallback = doc.SectionHeaders[0]
	}

	var chunks []models.Chunk
	for _, s := range c.spans(runes) {
		content := strings.TrimSpace(string(runes[s.start:s.end]))
		if content == "" {
			continue
		}

		section := fallback
		for _, h := range headers {
			if h.offset > s.start {
				break
			}
			section = h.title
		}

		chunks = append(chunks, models.Chunk{
			Content: content,
			Index:   len(chunks),
			Metadata: models.ChunkMetadata{
				FilePath: doc.Path,
				Section:  section,
				Chapter:  doc.Chapter,
				Title:    doc.Title,
			},
		})
	}
	return chunks
}

// Validate reports whether a chunk can be embedded
func (c *Chunker) Validate(chunk models.Chunk) (bool, string) {
	return models.ValidateChunkContent(chunk.Content)
}

// spans computes the chunk windows over runes
func (c *Chunker) spans(runes []rune) []span {
	n := len(runes)
	if n == 0 {
		return nil
	}

	var out []span
	start := 0
	for start < n {
		end := start + c.Size
		if end >= n {
			out = append(out, span{start: start, end: n})
			break
		}

		cut := c.boundary(runes, start, end)
		out = append(out, span{start: start, end: cut})

		// Re-include the tail of this chunk at the start of the next one
		next := cut - c.Overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return out
}

// boundary picks where the chunk starting at start must end, at or before end.
// Paragraph breaks win over sentence ends, which win over whitespace. A boundary
// is only usable if the chunk keeps at least 5% of the target size and reaches
// past the overlapped prefix.
func (c *Chunker) boundary(runes []rune, start, end int) int {
	minLen := max(c.Size/20, c.Overlap+1, 1)
	lowest := start + minLen

	// paragraph break
	for i := end - 2; i >= start && i+2 >= lowest; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i + 2
		}
	}

	// sentence end followed by whitespace
	for i := end - 1; i >= start && i+1 >= lowest; i-- {
		if isSentenceEnd(runes[i]) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			return i + 1
		}
	}

	// any whitespace
	for i := end - 1; i >= start && i+1 >= lowest; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}

	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

type headerOffset struct {
	offset int
	title  string
}

// sectionOffsets finds the rune offsets of all level two headers
func sectionOffsets(text string) []headerOffset {
	matches := sectionHeaderRe.FindAllStringSubmatchIndex(text, -1)
	headers := make([]headerOffset, 0, len(matches))
	for _, m := range matches {
		headers = append(headers, headerOffset{
			offset: len([]rune(text[:m[0]])),
			title:  strings.TrimSpace(text[m[2]:m[3]]),
		})
	}
	return headers
}
