package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cutline/orchestrator/internal/domain"
)

// MockClient is a deterministic chat provider for local development and
// tests. It routes the last user message by keyword to a fixed tool-call
// script and closes the turn with a text answer once tool results arrive.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// After tool results the turn is closed with a plain answer, so the
	// orchestrator loop always terminates.
	if len(req.Messages) > 0 && req.Messages[len(req.Messages)-1].Role == "tool" {
		last := req.Messages[len(req.Messages)-1]
		return &ChatResponse{
			Content:      fmt.Sprintf("Done. %s", last.Content),
			FinishReason: "stop",
		}, nil
	}

	var lastUser string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUser = req.Messages[i].Content
			break
		}
	}

	calls := m.script(strings.ToLower(lastUser))
	if len(calls) == 0 {
		return &ChatResponse{
			Content:      fmt.Sprintf("I can edit the timeline for you. You said: %q", truncate(lastUser, 100)),
			FinishReason: "stop",
		}, nil
	}
	return &ChatResponse{
		ToolCalls:    calls,
		FinishReason: "tool_calls",
	}, nil
}

func (m *MockClient) IsAvailable(ctx context.Context) bool { return true }

// script maps message keywords to tool-call sequences.
func (m *MockClient) script(msg string) []domain.ToolCall {
	switch {
	case strings.Contains(msg, "highlight") || strings.Contains(msg, "clip"):
		return []domain.ToolCall{
			call("score_highlights", map[string]any{"videoAssetId": "timeline"}),
			call("generate_highlight_plan", map[string]any{
				"videoAssetId": "timeline", "targetDuration": 60.0, "tolerance": 0.2, "includeHook": true,
			}),
			call("apply_highlight_cut", map[string]any{"videoAssetId": "timeline"}),
		}
	case strings.Contains(msg, "filler"):
		return []domain.ToolCall{call("remove_filler_words", map[string]any{})}
	case strings.Contains(msg, "caption") || strings.Contains(msg, "subtitle"):
		return []domain.ToolCall{call("generate_captions", map[string]any{"source": "timeline"})}
	case strings.Contains(msg, "silence"):
		return []domain.ToolCall{call("trim_silence", map[string]any{"minGap": 0.5})}
	case strings.Contains(msg, "summary") || strings.Contains(msg, "what's on"):
		return []domain.ToolCall{call("get_timeline_summary", map[string]any{})}
	}
	return nil
}

func call(name string, args map[string]any) domain.ToolCall {
	return domain.ToolCall{
		ID:        "call_" + uuid.New().String()[:8],
		Name:      name,
		Arguments: args,
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
