package domain

// ProcessMessageRequest is the body for processing one user message.
type ProcessMessageRequest struct {
	Content   string            `json:"content"`
	RequestID string            `json:"request_id,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}

// UpdatePlanStepRequest edits the arguments of one pending plan step.
type UpdatePlanStepRequest struct {
	Arguments map[string]any `json:"arguments"`
}

// RunWorkflowRequest starts a named workflow with optional step overrides
// and quality-loop configuration.
type RunWorkflowRequest struct {
	StepOverrides []StepOverride     `json:"step_overrides,omitempty"`
	QualityLoop   *QualityLoopConfig `json:"quality_loop,omitempty"`
}

// ListWorkflowsResponse lists the available workflow templates.
type ListWorkflowsResponse struct {
	Workflows []Workflow `json:"workflows"`
}
