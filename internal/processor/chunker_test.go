package processor

import (
	"strings"
	"testing"
	"unicode/utf8"

	"book-rag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentences(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString("The humanoid robot shifts its weight forward. ")
	}
	return sb.String()
}

func TestChunkEmptyText(t *testing.T) {
	c := NewChunker()
	assert.Empty(t, c.Chunk("", models.ChunkMetadata{}))
	assert.Empty(t, c.Chunk("   \n\n  ", models.ChunkMetadata{}))
}

func TestChunkShortTextIsSingleChunk(t *testing.T) {
	c := NewChunker()
	meta := models.ChunkMetadata{FilePath: "intro.md", Section: "Intro"}
	chunks := c.Chunk("  Robots need sensors to perceive the world around them.  ", meta)

	require.Len(t, chunks, 1)
	assert.Equal(t, "Robots need sensors to perceive the world around them.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, meta, chunks[0].Metadata)
}

func TestChunkLongTextCoversEverything(t *testing.T) {
	c := NewChunker()
	text := sentences(120)
	runes := []rune(text)

	spans := c.spans(runes)
	require.Greater(t, len(spans), 1)

	assert.Equal(t, 0, spans[0].start)
	assert.Equal(t, len(runes), spans[len(spans)-1].end)
	for i, s := range spans {
		assert.LessOrEqual(t, s.end-s.start, c.Size, "span %d too large", i)
		if i == 0 {
			continue
		}
		prev := spans[i-1]
		// no gap between consecutive spans
		assert.LessOrEqual(t, s.start, prev.end)
		assert.Greater(t, s.start, prev.start)
		assert.Equal(t, prev.end-c.Overlap, s.start)
	}

	chunks := c.Chunk(text, models.ChunkMetadata{})
	require.Len(t, chunks, len(spans))
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		ok, reason := c.Validate(ch)
		assert.True(t, ok, reason)
	}
}

func TestChunkPrefersSentenceEnd(t *testing.T) {
	c := NewChunker()
	chunks := c.Chunk(sentences(60), models.ChunkMetadata{})
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0].Content, "forward."), chunks[0].Content)
}

func TestChunkPrefersParagraphBreak(t *testing.T) {
	c := NewChunker()
	first := strings.TrimSpace(sentences(12))
	second := strings.TrimSpace(sentences(30))
	chunks := c.Chunk(first+"\n\n"+second, models.ChunkMetadata{})

	require.Greater(t, len(chunks), 1)
	assert.Equal(t, first, chunks[0].Content)
}

func TestChunkHardSplitsUnbrokenText(t *testing.T) {
	c := NewChunker()
	text := strings.Repeat("a", 3000)

	spans := c.spans([]rune(text))
	require.Len(t, spans, 4)
	assert.Equal(t, span{0, 1024}, spans[0])
	assert.Equal(t, span{924, 1948}, spans[1])
	assert.Equal(t, span{1848, 2872}, spans[2])
	assert.Equal(t, span{2772, 3000}, spans[3])
}

func TestChunkCountsRunesNotBytes(t *testing.T) {
	c := NewChunker(WithSize(200), WithOverlap(20))
	text := strings.Repeat("ロボット工学は面白い。", 80)

	for _, ch := range c.Chunk(text, models.ChunkMetadata{}) {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), 200)
		assert.True(t, utf8.ValidString(ch.Content))
	}
}

func TestNewChunkerClampsOverlap(t *testing.T) {
	c := NewChunker(WithSize(400), WithOverlap(400))
	assert.Equal(t, 100, c.Overlap)

	c = NewChunker(WithSize(-1), WithOverlap(-5))
	assert.Equal(t, DefaultChunkSize, c.Size)
	assert.Equal(t, 0, c.Overlap)
}

func TestValidateChunk(t *testing.T) {
	c := NewChunker()
	tests := []struct {
		name    string
		content string
		valid   bool
		reason  string
	}{
		{"too short", strings.Repeat("x", 49), false, "chunk too short"},
		{"lower bound", strings.Repeat("x", 50), true, ""},
		{"upper bound", strings.Repeat("x", 2000), true, ""},
		{"too long", strings.Repeat("x", 2001), false, "chunk too long"},
		{"blank", "   ", false, "chunk is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := c.Validate(models.Chunk{Content: tt.content})
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestChunkDocumentResolvesSections(t *testing.T) {
	c := NewChunker(WithSize(300), WithOverlap(30))
	text := "# Kinematics\n\nIntro text about the chapter that is long enough to matter here.\n\n" +
		"## Forward Kinematics\n\n" + strings.TrimSpace(sentences(8)) + "\n\n" +
		"## Inverse Kinematics\n\n" + strings.TrimSpace(sentences(8))
	doc := ParseMarkdown("module-2/kinematics.md", text)

	chunks := c.ChunkDocument(doc)
	require.NotEmpty(t, chunks)

	// before any level two header the first section is used
	assert.Equal(t, "Forward Kinematics", chunks[0].Metadata.Section)
	assert.Equal(t, "Inverse Kinematics", chunks[len(chunks)-1].Metadata.Section)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, "module-2/kinematics.md", ch.Metadata.FilePath)
		assert.Equal(t, "module-2", ch.Metadata.Chapter)
		assert.Equal(t, "Kinematics", ch.Metadata.Title)
	}
}

func TestChunkDocumentFallsBackToTitle(t *testing.T) {
	c := NewChunker()
	doc := ParseMarkdown("notes.md", "# Notes\n\nSome plain notes without any subsections at all.")

	chunks := c.ChunkDocument(doc)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Notes", chunks[0].Metadata.Section)
	assert.Equal(t, "", chunks[0].Metadata.Chapter)
}
