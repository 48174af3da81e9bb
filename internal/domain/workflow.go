package domain

// FieldSchema declares the validation bounds for one overridable workflow
// step argument. Either the numeric Min/Max bounds or the Enum set applies.
type FieldSchema struct {
	Type string    `json:"type" yaml:"type"` // number, boolean, string
	Min  *float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max  *float64  `json:"max,omitempty" yaml:"max,omitempty"`
	Enum []any     `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// WorkflowStep is one templated step of a workflow with its default
// arguments and per-field override schema.
type WorkflowStep struct {
	ID                   string                 `json:"id" yaml:"id"`
	ToolName             string                 `json:"tool_name" yaml:"tool_name"`
	Arguments            map[string]any         `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	ArgumentSchema       map[string]FieldSchema `json:"argument_schema,omitempty" yaml:"argument_schema,omitempty"`
	Summary              string                 `json:"summary,omitempty" yaml:"summary,omitempty"`
	DependsOn            []string               `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	ResourceLocks        []string               `json:"resource_locks,omitempty" yaml:"resource_locks,omitempty"`
	Optional             bool                   `json:"optional,omitempty" yaml:"optional,omitempty"`
	RequiresConfirmation bool                   `json:"requires_confirmation,omitempty" yaml:"requires_confirmation,omitempty"`
}

// Workflow is a named, versioned, reusable ordered template of steps.
type Workflow struct {
	Name                string         `json:"name" yaml:"name"`
	Version             int            `json:"version" yaml:"version"`
	Description         string         `json:"description" yaml:"description"`
	Scenario            string         `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	TemplateDescription string         `json:"template_description,omitempty" yaml:"template_description,omitempty"`
	Steps               []WorkflowStep `json:"steps" yaml:"steps"`
}

// StepOverride carries user-supplied argument overrides for one step,
// addressed by step ID or positional index.
type StepOverride struct {
	StepID    string         `json:"step_id,omitempty"`
	Index     *int           `json:"index,omitempty"`
	Arguments map[string]any `json:"arguments"`
}

// ResolvedWorkflow is a fully concrete workflow instance: defaults merged
// with validated overrides, step order and dependency metadata preserved.
type ResolvedWorkflow struct {
	Name    string     `json:"name"`
	Version int        `json:"version"`
	Steps   []PlanStep `json:"steps"`
}
