package processor

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"book-rag/internal/models"

	"github.com/ledongthuc/pdf"
)

var (
	horizontalSpaceRe = regexp.MustCompile(`[ \t\f\r\v]+`)
	lineEdgeSpaceRe   = regexp.MustCompile(` *\n *`)
	paragraphSepRe    = regexp.MustCompile(`\n\s*\n+`)
)

// ExtractPDFText extracts plain text from a PDF file
func ExtractPDFText(filePath string) (string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	b, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract plain text: %w", err)
	}

	_, err = buf.ReadFrom(b)
	if err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}

	return buf.String(), nil
}

// parsePDF turns a PDF file into a document
func parsePDF(root, path string) (models.Document, error) {
	text, err := ExtractPDFText(path)
	if err != nil {
		return models.Document{}, err
	}
	text = normalizeWhitespace(text)

	rel := relativePath(root, path)
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if line, _, _ := strings.Cut(text, "\n"); strings.TrimSpace(line) != "" {
		title = truncateRunes(strings.TrimSpace(line), 120)
	}

	return models.Document{
		Path:    rel,
		Title:   title,
		RawText: text,
		Chapter: filepath.Base(filepath.Dir(path)),
	}, nil
}

// normalizeWhitespace collapses runs of spaces and keeps paragraphs separated
// by exactly one blank line
func normalizeWhitespace(text string) string {
	text = horizontalSpaceRe.ReplaceAllString(text, " ")
	text = lineEdgeSpaceRe.ReplaceAllString(text, "\n")
	text = paragraphSepRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
