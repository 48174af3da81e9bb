package domain

import "encoding/json"

// AgentEvent is one entry of the append-only execution telemetry stream.
// Events are created at request start, appended to throughout processing,
// and never mutated retroactively.
type AgentEvent struct {
	EventID   string          `json:"event_id"`
	RequestID string          `json:"request_id"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// RequestStartedPayload is the payload for request_started events.
type RequestStartedPayload struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Content   string `json:"content,omitempty"`
	Workflow  string `json:"workflow,omitempty"`
}

// PlanCreatedPayload is the payload for plan_created events.
type PlanCreatedPayload struct {
	PlanID     string `json:"plan_id"`
	TotalSteps int    `json:"total_steps"`
}

// ToolEventPayload is the payload for tool_started, tool_progress, and
// tool_completed events.
type ToolEventPayload struct {
	ToolCallID string      `json:"tool_call_id"`
	ToolName   string      `json:"tool_name"`
	StepIndex  int         `json:"step_index"`
	TotalSteps int         `json:"total_steps"`
	Progress   string      `json:"progress,omitempty"`
	Result     *ToolResult `json:"result,omitempty"`
}

// RecoveryEventPayload is the payload for the recovery_* events.
type RecoveryEventPayload struct {
	ToolCallID   string `json:"tool_call_id"`
	ToolName     string `json:"tool_name"`
	ErrorCode    string `json:"error_code"`
	PolicyID     string `json:"policy_id,omitempty"`
	RetryCount   int    `json:"retry_count"`
	DelayMs      int64  `json:"delay_ms,omitempty"`
	Prerequisite string `json:"prerequisite,omitempty"`
}

// RequestCompletedPayload is the payload for request_completed events.
type RequestCompletedPayload struct {
	Status    RequestStatus `json:"status"`
	ErrorCode string        `json:"error_code,omitempty"`
	Message   string        `json:"message,omitempty"`
}
