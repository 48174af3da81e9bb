// Package policy evaluates the confirmation policy for planned tool calls.
// The decision is made per call while the plan is assembled: auto-approved
// calls run directly, confirm forces the plan into the confirmation gate,
// block rejects the plan outright.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by Evaluate.
const (
	DecisionAuto    = "auto"
	DecisionConfirm = "confirm"
	DecisionBlock   = "block"
)

// Input is the per-call policy input document.
type Input struct {
	ToolName  string         `json:"tool_name"`
	Operation string         `json:"operation"`
	Args      map[string]any `json:"args"`
	Kind      string         `json:"kind,omitempty"` // message or workflow
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.confirmation.decision"),
		rego.Module("confirmation.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate decides how one planned tool call is gated.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy is expected to define a default; without one, confirm
		// is the safe fallback for anything that mutates.
		return DecisionConfirm, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return DecisionConfirm, nil
}

// DefaultPolicy is the default confirmation policy: reads run without
// asking, writes are gated behind confirmation, and a highlight cut with an
// absurdly short target is blocked before it can destroy the timeline.
const DefaultPolicy = `
package confirmation

import rego.v1

default decision := "confirm"

decision := "auto" if {
	input.operation == "read"
}

decision := "block" if {
	input.tool_name == "apply_highlight_cut"
	input.args.targetDuration < 5
}
`
