package rag

import (
	"fmt"
	"strings"

	"book-rag/internal/models"
)

const (
	// DefaultSubject is what the book teaches; it appears in canned replies and prompts
	DefaultSubject = "Physical AI and Humanoid Robotics"
	// DefaultDomain frames the general-knowledge attempt of the ladder
	DefaultDomain = "robotics and humanoid systems"

	promptChunks       = 3
	promptChunkRunes   = 300
	referenceRunes     = 150
	truncationEllipsis = "..."
)

// SystemInstructions sets the assistant's tone for every generation call
func SystemInstructions(subject string) string {
	return fmt.Sprintf(`You are a friendly AI assistant helping students learn about %s.

CORE BEHAVIOR:
- Be conversational, clear, and professional
- Provide helpful explanations based on the textbook content
- Write in natural paragraphs (not bullet points unless listing specific items)
- Never mention "RAG", "chunks", "tools", "embeddings", or internal processes
- Never show similarity scores, debug info, or technical artifacts

RESPONSE FORMAT:
- Start directly with your answer (no meta-commentary)
- Use 2-3 clear paragraphs to explain concepts
- Sound like a knowledgeable tutor, not a robot
- Keep explanations accessible but accurate`, subject)
}

// FormatContext renders the top chunks as labelled, truncated excerpts
func FormatContext(chunks []models.RetrievalResult) string {
	var parts []string
	for i, c := range chunks {
		if i >= promptChunks {
			break
		}
		if c.Content == "" {
			continue
		}
		section := c.Section
		if section == "" {
			section = "Unknown"
		}
		parts = append(parts, fmt.Sprintf("[Source %d - %s]:\n%s", i+1, section, clip(c.Content, promptChunkRunes)))
	}
	return strings.Join(parts, "\n\n")
}

// FullPrompt asks for a tutor-style answer grounded on the formatted context
func FullPrompt(message string, chunks []models.RetrievalResult) string {
	return fmt.Sprintf(`You are a helpful tutor. A student asks: "%s"

Here's relevant information from the textbook:
%s

Provide a clear, natural explanation in 2-3 paragraphs. Write conversationally - no bullet points, no meta-commentary, no mention of "sources" or "context". Just explain the concept clearly.`,
		message, FormatContext(chunks))
}

// ReducedPrompt quotes only the start of the best chunk
func ReducedPrompt(message string, top models.RetrievalResult) string {
	runes := []rune(top.Content)
	if len(runes) > referenceRunes {
		runes = runes[:referenceRunes]
	}
	return fmt.Sprintf(`A student asks: "%s"

Reference: %s%s

Explain this naturally in 2 paragraphs.`, message, string(runes), truncationEllipsis)
}

// GeneralPrompt carries no book content at all
func GeneralPrompt(message, domain string) string {
	return fmt.Sprintf(`Explain "%s" in the context of %s. Write 2 clear, helpful paragraphs.`, message, domain)
}

// clip truncates s to n runes and marks the cut
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + truncationEllipsis
}
