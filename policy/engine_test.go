package policy

import (
	"context"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}
	return e
}

func TestDefaultPolicyDecisions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input Input
		want  string
	}{
		{
			name:  "reads run automatically",
			input: Input{ToolName: "get_timeline_summary", Operation: "read"},
			want:  DecisionAuto,
		},
		{
			name:  "writes need confirmation",
			input: Input{ToolName: "generate_captions", Operation: "write", Args: map[string]any{"source": "timeline"}},
			want:  DecisionConfirm,
		},
		{
			name: "destructive short cut is blocked",
			input: Input{
				ToolName:  "apply_highlight_cut",
				Operation: "write",
				Args:      map[string]any{"targetDuration": 2.0},
			},
			want: DecisionBlock,
		},
		{
			name: "normal cut needs confirmation",
			input: Input{
				ToolName:  "apply_highlight_cut",
				Operation: "write",
				Args:      map[string]any{"targetDuration": 60.0},
			},
			want: DecisionConfirm,
		},
		{
			name:  "cut without a target falls back to confirm",
			input: Input{ToolName: "apply_highlight_cut", Operation: "write", Args: map[string]any{}},
			want:  DecisionConfirm,
		},
	}

	for _, c := range cases {
		got, err := e.Evaluate(ctx, c.input)
		if err != nil {
			t.Fatalf("%s: evaluate failed: %v", c.name, err)
		}
		if got != c.want {
			t.Fatalf("%s: decision = %q, want %q", c.name, got, c.want)
		}
	}
}
