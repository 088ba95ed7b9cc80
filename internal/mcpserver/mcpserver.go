// Package mcpserver exposes the book assistant as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"book-rag/internal/models"
	"book-rag/internal/rag"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverName = "bookrag"

// Chatter answers a single turn
type Chatter interface {
	Chat(ctx context.Context, turn models.Turn) (rag.ChatResponse, error)
}

// Counter reports how many chunks are indexed
type Counter interface {
	Count(ctx context.Context) (int, error)
}

type AskBookInput struct {
	Message      string `json:"message" jsonschema:"Question about the book"`
	SelectedText string `json:"selected_text,omitempty" jsonschema:"Passage to answer from instead of searching the whole book (optional)"`
	SessionID    string `json:"session_id,omitempty" jsonschema:"Session identifier to group questions (optional)"`
}

type AskBookOutput struct {
	Answer      string          `json:"answer"`
	Sources     []models.Source `json:"sources"`
	ContextUsed bool            `json:"context_used"`
	SessionID   string          `json:"session_id"`
}

type EmbeddingCountInput struct{}

type EmbeddingCountOutput struct {
	Count      int    `json:"count"`
	Collection string `json:"collection_name"`
}

// Tools holds the dependencies of the tool handlers
type Tools struct {
	Chat       Chatter
	Index      Counter
	Collection string
	Logger     *slog.Logger
}

// New creates an MCP server with the book tools registered
func New(version string, tools *Tools) *mcp.Server {
	if tools.Logger == nil {
		tools.Logger = slog.Default()
	}
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "ask_book",
			Description: "Ask a question about the book. Answers are grounded on the indexed chapters, or on selected_text when given, and list the sections they came from.",
		},
		tools.AskBook,
	)
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "embedding_count",
			Description: "Number of book chunks currently stored in the vector index.",
		},
		tools.EmbeddingCount,
	)
	return server
}

// AskBook runs one conversation turn
func (t *Tools) AskBook(ctx context.Context, req *mcp.CallToolRequest, input AskBookInput) (*mcp.CallToolResult, AskBookOutput, error) {
	resp, err := t.Chat.Chat(ctx, models.Turn{
		Message:      input.Message,
		SelectedText: input.SelectedText,
		SessionID:    input.SessionID,
	})
	if err != nil {
		return nil, AskBookOutput{}, err
	}
	return nil, AskBookOutput{
		Answer:      resp.Text,
		Sources:     resp.Sources,
		ContextUsed: resp.ContextUsed,
		SessionID:   resp.SessionID,
	}, nil
}

// EmbeddingCount reports the size of the index
func (t *Tools) EmbeddingCount(ctx context.Context, req *mcp.CallToolRequest, _ EmbeddingCountInput) (*mcp.CallToolResult, EmbeddingCountOutput, error) {
	n, err := t.Index.Count(ctx)
	if err != nil {
		t.Logger.Error("failed to count embeddings", "error", err)
		return nil, EmbeddingCountOutput{}, fmt.Errorf("vector index unavailable")
	}
	return nil, EmbeddingCountOutput{Count: n, Collection: t.Collection}, nil
}

// Serve runs the server over stdio until the client disconnects
func Serve(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
