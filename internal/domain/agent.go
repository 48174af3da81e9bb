package domain

import (
	"encoding/json"
	"time"
)

// ToolCall is a named, argument-bearing request to perform one timeline
// mutation or query. The ID is unique per in-flight request.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the structured outcome of executing a tool call. Tool
// failures are returned as results, never as Go errors, so callers can
// inspect Data["errorCode"] deterministically.
type ToolResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// ErrorCode returns the machine-readable error code carried in Data, or ""
// when none is set.
func (r ToolResult) ErrorCode() string {
	if r.Data == nil {
		return ""
	}
	code, _ := r.Data["errorCode"].(string)
	return code
}

// CancelledResult is the standardized result for a call aborted before or
// during execution.
func CancelledResult(toolName string) ToolResult {
	return ToolResult{
		Success: false,
		Message: "execution of " + toolName + " was cancelled",
		Data:    map[string]any{"errorCode": ErrCodeExecutionCancelled},
	}
}

// AgentResponse is the terminal answer for one orchestrator operation.
type AgentResponse struct {
	RequestID     string          `json:"request_id"`
	SessionID     string          `json:"session_id"`
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	ErrorCode     string          `json:"error_code,omitempty"`
	Plan          *ExecutionPlan  `json:"plan,omitempty"`
	ToolResults   []ToolResult    `json:"tool_results,omitempty"`
	QualityReport *QualityReport  `json:"quality_report,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// Request represents one agent request (a conversational turn, a plan
// confirmation, or a workflow run) against a session.
type Request struct {
	RequestID string          `json:"request_id"`
	SessionID string          `json:"session_id"`
	Kind      string          `json:"kind"` // message, plan, workflow
	Status    RequestStatus   `json:"status"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}

// Session groups requests, messages, and the timeline document of one editor
// user.
type Session struct {
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	CreatedAt time.Time       `json:"created_at"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Message is one entry of the bounded conversation history.
type Message struct {
	MessageID  string    `json:"message_id"`
	SessionID  string    `json:"session_id"`
	RequestID  string    `json:"request_id,omitempty"`
	Role       string    `json:"role"` // system, user, assistant, tool
	Content    string    `json:"content"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
