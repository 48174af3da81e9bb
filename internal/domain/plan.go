package domain

import "time"

// PlanStep is one pending tool invocation inside an execution plan or a
// resolved workflow. DependsOn may only reference earlier step IDs of the
// same plan; two pending write steps sharing a resource lock token are never
// executed concurrently.
type PlanStep struct {
	ID                   string         `json:"id"`
	ToolName             string         `json:"tool_name"`
	Arguments            map[string]any `json:"arguments"`
	Summary              string         `json:"summary"`
	Operation            Operation      `json:"operation"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
	DependsOn            []string       `json:"depends_on,omitempty"`
	ResourceLocks        []string       `json:"resource_locks,omitempty"`
	Optional             bool           `json:"optional,omitempty"`
}

// ExecutionPlan is a set of tool calls held for explicit user confirmation.
// It is immutable except through the step update/removal operations, and is
// discarded once confirmed, cancelled, or its request ends.
type ExecutionPlan struct {
	PlanID    string     `json:"plan_id"`
	RequestID string     `json:"request_id"`
	SessionID string     `json:"session_id"`
	Steps     []PlanStep `json:"steps"`
	CreatedAt time.Time  `json:"created_at"`
}

// Step returns the step with the given ID, or nil.
func (p *ExecutionPlan) Step(stepID string) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].ID == stepID {
			return &p.Steps[i]
		}
	}
	return nil
}

// RequiresConfirmation reports whether any step of the plan needs user
// confirmation before execution.
func (p *ExecutionPlan) RequiresConfirmation() bool {
	for _, s := range p.Steps {
		if s.RequiresConfirmation {
			return true
		}
	}
	return false
}
