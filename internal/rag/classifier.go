package rag

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"book-rag/internal/models"
)

var (
	greetingTokens = []string{"hi", "hello", "hey", "greetings", "good morning", "good afternoon", "good evening", "howdy"}
	thanksWords    = []string{"thanks", "thx", "ty", "appreciate"}
	thanksPhrases  = []string{"thank you"}
)

// Classify assigns an intent to a message. Rules are checked in priority
// order: greeting, thanks, short query, then knowledge.
func Classify(message string) models.Intent {
	lower := strings.ToLower(strings.TrimSpace(message))
	words := strings.Fields(lower)
	bare := make([]string, len(words))
	for i, w := range words {
		bare[i] = strings.TrimFunc(w, unicode.IsPunct)
	}
	normalized := strings.Join(bare, " ")

	for _, g := range greetingTokens {
		if normalized == g || (len(words) <= 2 && contains(bare, g)) {
			return models.IntentGreeting
		}
	}

	if len(words) <= 3 {
		for _, t := range thanksWords {
			if contains(bare, t) {
				return models.IntentThanks
			}
		}
		for _, p := range thanksPhrases {
			if strings.Contains(normalized, p) {
				return models.IntentThanks
			}
		}
	}

	trimmed := strings.TrimSpace(message)
	if n := utf8.RuneCountInString(trimmed); n > 0 && n <= 3 && isAlpha(trimmed) {
		return models.IntentShortQuery
	}
	if len(words) == 1 && utf8.RuneCountInString(trimmed) > 3 {
		return models.IntentShortQuery
	}

	return models.IntentKnowledge
}

func contains(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
