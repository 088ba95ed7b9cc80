package processor

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"book-rag/internal/models"

	"gopkg.in/yaml.v3"
)

// Format is the markup format of the book sources
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
)

var (
	titleRe = regexp.MustCompile(`(?m)^#\s+(.+?)\s*$`)

	markdownExts = map[string]bool{".md": true, ".markdown": true, ".mdx": true}
)

// frontMatter holds the fields read from a markdown YAML header
type frontMatter struct {
	Title        string `yaml:"title"`
	SidebarLabel string `yaml:"sidebar_label"`
}

// Loader discovers and parses the source files of the book
type Loader struct {
	Format Format
	Logger *slog.Logger
}

// NewLoader creates a loader for the given format
func NewLoader(format Format, logger *slog.Logger) *Loader {
	if format == "" {
		format = FormatMarkdown
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{Format: format, Logger: logger}
}

// ListFiles returns the source files below dir in lexical order
func (l *Loader) ListFiles(ctx context.Context, dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path %s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.Logger.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		if l.accepts(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// LoadDir parses every source file below dir. Files that fail to parse are
// logged and skipped.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]models.Document, error) {
	files, err := l.ListFiles(ctx, dir)
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := l.LoadFile(dir, path)
		if err != nil {
			l.Logger.Warn("error parsing file", "path", path, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadFile parses a single file; root is used to compute the relative path
func (l *Loader) LoadFile(root, path string) (models.Document, error) {
	if l.Format == FormatPDF {
		return parsePDF(root, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc := ParseMarkdown(relativePath(root, path), string(data))
	doc.Chapter = filepath.Base(filepath.Dir(path))
	return doc, nil
}

func (l *Loader) accepts(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if l.Format == FormatPDF {
		return ext == ".pdf"
	}
	return markdownExts[ext]
}

// ParseMarkdown builds a document from an in-memory markdown file.
// The title comes from the front matter, then the first H1, then the file name.
func ParseMarkdown(path, text string) models.Document {
	meta, body := splitFrontMatter(text)

	title := strings.TrimSpace(meta.Title)
	if title == "" {
		if m := titleRe.FindStringSubmatch(body); m != nil {
			title = strings.TrimSpace(m[1])
		}
	}
	if title == "" {
		title = strings.TrimSpace(meta.SidebarLabel)
	}
	if title == "" {
		base := filepath.Base(filepath.FromSlash(path))
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	var sections []string
	for _, m := range sectionHeaderRe.FindAllStringSubmatch(body, -1) {
		sections = append(sections, strings.TrimSpace(m[1]))
	}

	chapter := ""
	if dir := filepath.Dir(filepath.FromSlash(path)); dir != "." {
		chapter = filepath.Base(dir)
	}
	return models.Document{
		Path:           path,
		Title:          title,
		RawText:        body,
		SectionHeaders: sections,
		Chapter:        chapter,
	}
}

// splitFrontMatter separates a leading YAML block delimited by "---" lines
func splitFrontMatter(text string) (frontMatter, string) {
	var meta frontMatter
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return meta, text
	}

	rest := normalized[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return meta, text
	}

	header := rest[:end]
	body := rest[end+len("\n---"):]
	// Drop the remainder of the closing delimiter line
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}

	if err := yaml.Unmarshal([]byte(header), &meta); err != nil {
		// Not YAML after all, keep the text untouched
		return frontMatter{}, text
	}
	return meta, body
}

// relativePath returns path relative to root in slash form
func relativePath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
