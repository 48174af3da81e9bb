// Package llm provides the chat provider abstraction: an OpenAI-compatible
// HTTP client, a deterministic mock, and a privacy-mode router over a local
// and a cloud backend.
package llm

import (
	"context"

	"github.com/cutline/orchestrator/internal/domain"
	"github.com/cutline/orchestrator/internal/tools"
)

// ChatRequest is one turn sent to the chat provider: the engine's system
// prompt, the bounded conversation history, and the tool surface the model
// may call.
type ChatRequest struct {
	SystemPrompt string
	Messages     []domain.Message
	Tools        []tools.Spec
	Temperature  *float64
}

// ChatResponse is the provider's answer: free text, requested tool calls,
// or both.
type ChatResponse struct {
	Content      string
	ToolCalls    []domain.ToolCall
	FinishReason string
}

// ChatProvider abstracts the chat backend.
type ChatProvider interface {
	// Chat sends one completion request (non-streaming).
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// IsAvailable reports whether the backend currently answers.
	IsAvailable(ctx context.Context) bool
}

var (
	_ ChatProvider = (*Client)(nil)
	_ ChatProvider = (*MockClient)(nil)
	_ ChatProvider = (*Router)(nil)
)
