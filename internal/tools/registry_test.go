package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cutline/orchestrator/internal/domain"
	"github.com/cutline/orchestrator/internal/editor"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

func speechDocument() *editor.Document {
	return editor.NewDocumentWithTracks([]domain.Track{
		{ID: "video-1", Kind: domain.TrackKindVideo, Elements: []domain.Element{
			{ID: "v1", Start: 0, Duration: 60, AssetID: "asset-1"},
		}},
		{ID: "audio-1", Kind: domain.TrackKindAudio, Elements: []domain.Element{
			{
				ID: "a1", Start: 0, Duration: 60, AssetID: "asset-1",
				Transcript: "Welcome to the show. This is the most important secret. Um, let me think. The best part is the ending.",
				Words: []domain.Word{
					{Text: "Welcome", Start: 0, End: 0.5},
					{Text: "um", Start: 10, End: 10.3, Filler: true},
					{Text: "secret", Start: 20, End: 20.5},
				},
			},
		}},
	})
}

func TestExecuteRejectsUnknownTool(t *testing.T) {
	r := newTestRegistry(t)
	res := r.Execute(context.Background(), editor.NewDocument(), "no_such_tool", nil)
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.ErrorCode() != domain.ErrCodeValidationError {
		t.Fatalf("expected VALIDATION_ERROR, got %q", res.ErrorCode())
	}
}

func TestExecuteValidatesArguments(t *testing.T) {
	r := newTestRegistry(t)
	doc := editor.NewDocument()

	// Missing required field.
	res := r.Execute(context.Background(), doc, "seek_to", map[string]any{})
	if res.Success || res.ErrorCode() != domain.ErrCodeValidationError {
		t.Fatalf("expected validation failure, got %+v", res)
	}

	// Wrong type.
	res = r.Execute(context.Background(), doc, "seek_to", map[string]any{"time": "five"})
	if res.Success || res.ErrorCode() != domain.ErrCodeValidationError {
		t.Fatalf("expected validation failure, got %+v", res)
	}

	// Unknown property.
	res = r.Execute(context.Background(), doc, "seek_to", map[string]any{"time": 1, "warp": true})
	if res.Success || res.ErrorCode() != domain.ErrCodeValidationError {
		t.Fatalf("expected validation failure, got %+v", res)
	}

	// Valid call.
	res = r.Execute(context.Background(), doc, "seek_to", map[string]any{"time": 1.5})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
}

func TestExecuteCancelledBeforeBody(t *testing.T) {
	r := newTestRegistry(t)
	doc := speechDocument()
	before := doc.Revision()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := r.Execute(ctx, doc, "generate_captions", map[string]any{"source": "timeline"})
	if res.Success {
		t.Fatalf("expected cancelled result")
	}
	if res.ErrorCode() != domain.ErrCodeExecutionCancelled {
		t.Fatalf("expected EXECUTION_CANCELLED, got %q", res.ErrorCode())
	}
	if doc.Revision() != before {
		t.Fatalf("cancelled call must not mutate the document")
	}
}

func TestExecuteTimeoutReportsProviderUnavailable(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Definition{
		Name:      "slow_tool",
		Operation: domain.OperationRead,
		Execute: func(ctx context.Context, doc editor.DocumentMutator, args map[string]any) domain.ToolResult {
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			return domain.ToolResult{Success: true}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := r.Execute(ctx, editor.NewDocument(), "slow_tool", nil)
	if res.Success {
		t.Fatalf("expected timeout failure")
	}
	if res.ErrorCode() != domain.ErrCodeProviderUnavailable {
		t.Fatalf("expected PROVIDER_UNAVAILABLE, got %q", res.ErrorCode())
	}
}

func TestIsCancellationError(t *testing.T) {
	if !IsCancellationError(context.Canceled) {
		t.Fatalf("context.Canceled must be a cancellation error")
	}
	if !IsCancellationError(errors.New("AbortError: operation aborted")) {
		t.Fatalf("abort-shaped errors must be cancellation errors")
	}
	if IsCancellationError(errors.New("disk full")) {
		t.Fatalf("ordinary errors are not cancellation errors")
	}
	if IsCancellationError(nil) {
		t.Fatalf("nil is not a cancellation error")
	}
}
