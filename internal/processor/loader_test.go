package processor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParseMarkdown(t *testing.T) {
	doc := ParseMarkdown("module-1/ros2.md", "# ROS 2 Basics\n\nIntro.\n\n## Nodes\n\ntext\n\n### Detail\n\n## Topics\n\nmore")

	assert.Equal(t, "module-1/ros2.md", doc.Path)
	assert.Equal(t, "ROS 2 Basics", doc.Title)
	assert.Equal(t, []string{"Nodes", "Topics"}, doc.SectionHeaders)
	assert.Equal(t, "module-1", doc.Chapter)
}

func TestParseMarkdownTitleFallbacks(t *testing.T) {
	t.Run("front matter wins", func(t *testing.T) {
		doc := ParseMarkdown("a/sensors.md", "---\nid: sensors\ntitle: Sensor Fusion\n---\n# Ignored\n\nBody")
		assert.Equal(t, "Sensor Fusion", doc.Title)
		assert.Equal(t, "# Ignored\n\nBody", doc.RawText)
	})

	t.Run("file stem", func(t *testing.T) {
		doc := ParseMarkdown("a/locomotion.md", "No headers here.")
		assert.Equal(t, "locomotion", doc.Title)
		assert.Empty(t, doc.SectionHeaders)
	})

	t.Run("broken front matter is kept as text", func(t *testing.T) {
		text := "---\ntitle: [unclosed\n---\nBody"
		doc := ParseMarkdown("a/x.md", text)
		assert.Equal(t, text, doc.RawText)
		assert.Equal(t, "x", doc.Title)
	})
}

func TestLoaderLoadDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "intro.md"), "# Introduction\n\nWelcome.")
	writeFile(t, filepath.Join(root, "module-1", "ros2.md"), "# ROS 2\n\n## Nodes\n\nNodes talk.")
	writeFile(t, filepath.Join(root, "module-1", "image.png"), "binary")
	writeFile(t, filepath.Join(root, "module-2", "sim.MDX"), "# Simulation\n\nGazebo.")

	loader := NewLoader(FormatMarkdown, nil)
	docs, err := loader.LoadDir(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "intro.md", docs[0].Path)
	assert.Equal(t, filepath.Base(root), docs[0].Chapter)
	assert.Equal(t, "module-1/ros2.md", docs[1].Path)
	assert.Equal(t, "module-1", docs[1].Chapter)
	assert.Equal(t, []string{"Nodes"}, docs[1].SectionHeaders)
	assert.Equal(t, "module-2/sim.MDX", docs[2].Path)
	assert.Equal(t, "Simulation", docs[2].Title)
}

func TestLoaderRejectsMissingDir(t *testing.T) {
	loader := NewLoader(FormatMarkdown, nil)
	_, err := loader.LoadDir(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoaderHonorsCancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "# A")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader(FormatMarkdown, nil).LoadDir(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoaderPDFFormatOnlyListsPDFs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "book.md"), "# Book")
	writeFile(t, filepath.Join(root, "book.pdf"), "%PDF-1.4")

	files, err := NewLoader(FormatPDF, nil).ListFiles(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "book.pdf")}, files)
}

func TestNormalizeWhitespace(t *testing.T) {
	got := normalizeWhitespace("  Robots\t\tmove.  \n \n\n\nThey   balance. ")
	assert.Equal(t, "Robots move.\n\nThey balance.", got)
}
