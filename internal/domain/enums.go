// Package domain defines the core domain models for the agent orchestrator.
package domain

// RequestStatus represents the status of an agent request.
type RequestStatus string

const (
	RequestStatusCreated              RequestStatus = "CREATED"
	RequestStatusRunning              RequestStatus = "RUNNING"
	RequestStatusAwaitingConfirmation RequestStatus = "AWAITING_CONFIRMATION"
	RequestStatusCompleted            RequestStatus = "COMPLETED"
	RequestStatusFailed               RequestStatus = "FAILED"
	RequestStatusCancelled            RequestStatus = "CANCELLED"
)

// IsTerminal reports whether the status is a terminal request status.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusCompleted, RequestStatusFailed, RequestStatusCancelled:
		return true
	}
	return false
}

// EventType represents the type of an agent execution event.
type EventType string

const (
	EventTypeRequestStarted                EventType = "request_started"
	EventTypePlanCreated                   EventType = "plan_created"
	EventTypeToolStarted                   EventType = "tool_started"
	EventTypeToolProgress                  EventType = "tool_progress"
	EventTypeRecoveryStarted               EventType = "recovery_started"
	EventTypeRecoveryPrerequisiteStarted   EventType = "recovery_prerequisite_started"
	EventTypeRecoveryPrerequisiteCompleted EventType = "recovery_prerequisite_completed"
	EventTypeRecoveryRetrying              EventType = "recovery_retrying"
	EventTypeRecoveryExhausted             EventType = "recovery_exhausted"
	EventTypeToolCompleted                 EventType = "tool_completed"
	EventTypeRequestCompleted              EventType = "request_completed"
)

// Operation classifies a tool as reading or mutating the timeline document.
type Operation string

const (
	OperationRead  Operation = "read"
	OperationWrite Operation = "write"
)

// PrivacyMode selects which chat provider backend is tried first.
type PrivacyMode string

const (
	PrivacyModeLocalOnly      PrivacyMode = "local_only"
	PrivacyModeHybrid         PrivacyMode = "hybrid"
	PrivacyModeCloudPreferred PrivacyMode = "cloud_preferred"
)

// Well-known tool error codes.
const (
	ErrCodeNoTranscript         = "NO_TRANSCRIPT"
	ErrCodeProviderUnavailable  = "PROVIDER_UNAVAILABLE"
	ErrCodeHighlightCacheStale  = "HIGHLIGHT_CACHE_STALE"
	ErrCodeHighlightPlanMissing = "HIGHLIGHT_PLAN_MISSING"
	ErrCodeExecutionCancelled   = "EXECUTION_CANCELLED"
	ErrCodeQualityTargetNotMet  = "QUALITY_TARGET_NOT_MET"
	ErrCodeValidationError      = "VALIDATION_ERROR"
	ErrCodePolicyBlocked        = "POLICY_BLOCKED"
	ErrCodePlanPending          = "PLAN_PENDING_CONFIRMATION"
)
