package models

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageLength      = 1000
	MinSelectedTextLength = 10
	MaxSelectedTextLength = 5000
	MinChunkLength        = 50
	MaxChunkLength        = 2000
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Turn is one independent user message
type Turn struct {
	Message      string `json:"message"`
	SelectedText string `json:"selected_text,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

// HasSelection reports whether the caller supplied a passage to answer from
func (t Turn) HasSelection() bool {
	return strings.TrimSpace(t.SelectedText) != ""
}

// NewTurn builds a validated Turn
func NewTurn(message, selectedText, sessionID string) (Turn, error) {
	t := Turn{
		Message:      strings.TrimSpace(message),
		SelectedText: strings.TrimSpace(selectedText),
		SessionID:    strings.TrimSpace(sessionID),
	}
	if err := t.Validate(); err != nil {
		return Turn{}, err
	}
	return t, nil
}

// Validate checks the length and format rules of a Turn
func (t Turn) Validate() error {
	msgLen := utf8.RuneCountInString(strings.TrimSpace(t.Message))
	if msgLen == 0 {
		return &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if msgLen > MaxMessageLength {
		return &ValidationError{Field: "message", Reason: "must be at most 1000 characters"}
	}

	if t.SelectedText != "" {
		selLen := utf8.RuneCountInString(strings.TrimSpace(t.SelectedText))
		if selLen < MinSelectedTextLength || selLen > MaxSelectedTextLength {
			return &ValidationError{Field: "selected_text", Reason: "must be between 10 and 5000 characters"}
		}
	}

	if t.SessionID != "" && !sessionIDPattern.MatchString(t.SessionID) {
		return &ValidationError{Field: "session_id", Reason: "may only contain letters, digits, '-' and '_'"}
	}
	return nil
}

// ValidateChunkContent checks that chunk text is within embeddable bounds
func ValidateChunkContent(content string) (bool, string) {
	n := utf8.RuneCountInString(content)
	switch {
	case strings.TrimSpace(content) == "":
		return false, "chunk is empty"
	case n < MinChunkLength:
		return false, "chunk too short"
	case n > MaxChunkLength:
		return false, "chunk too long"
	}
	return true, ""
}

// ValidateLogMode checks the mode filter of a log listing
func ValidateLogMode(mode string) error {
	switch mode {
	case "", "full", "selected":
		return nil
	}
	return &ValidationError{Field: "mode", Reason: "must be 'full' or 'selected'"}
}
