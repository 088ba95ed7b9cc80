// Package llm talks to text generation providers.
package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrTextUnavailable is returned by Response.Text when the provider removed
// or never produced the text, for example because of safety filtering
var ErrTextUnavailable = errors.New("response text unavailable")

// FinishReason is why a candidate stopped generating
type FinishReason string

const (
	FinishUnspecified FinishReason = ""
	FinishStop        FinishReason = "STOP"
	FinishMaxTokens   FinishReason = "MAX_TOKENS"
	FinishSafety      FinishReason = "SAFETY"
	// FinishRecitation signals suspected reproduction of copyrighted text
	FinishRecitation FinishReason = "RECITATION"
	FinishOther      FinishReason = "OTHER"
)

// Normal reports whether the reason is a regular end of generation
func (f FinishReason) Normal() bool {
	return f == FinishStop || f == FinishUnspecified || f == "FINISH_REASON_UNSPECIFIED"
}

// GenerationConfig holds sampling parameters
type GenerationConfig struct {
	Temperature     float64
	MaxOutputTokens int
	TopP            float64
	TopK            int
}

// SafetySetting sets the block threshold for one harm category
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// PermissiveSafety disables blocking on the four configurable harm categories
func PermissiveSafety() []SafetySetting {
	return []SafetySetting{
		{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
		{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
		{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
		{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
	}
}

// Request is a single generation call
type Request struct {
	System string
	Prompt string
	Config GenerationConfig
	Safety []SafetySetting
}

// Part is a piece of generated content
type Part struct {
	Text string
}

// Candidate is one generated alternative
type Candidate struct {
	Parts        []Part
	FinishReason FinishReason
}

// Response is what a provider returned
type Response struct {
	Candidates        []Candidate
	PromptBlockReason string
}

// Text returns the text of the first candidate
func (r *Response) Text() (string, error) {
	if r == nil || r.PromptBlockReason != "" || len(r.Candidates) == 0 {
		return "", ErrTextUnavailable
	}
	c := r.Candidates[0]
	if len(c.Parts) == 0 {
		return "", ErrTextUnavailable
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// Blocked reports whether any candidate was stopped for recitation
func (r *Response) Blocked() bool {
	if r == nil {
		return false
	}
	for _, c := range r.Candidates {
		if c.FinishReason == FinishRecitation {
			return true
		}
	}
	return false
}

// Generator produces text for a prompt
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
