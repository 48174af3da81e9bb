// Package recovery classifies tool failures and produces bounded,
// prerequisite-aware retry decisions. The engine is a pure lookup: it never
// performs I/O and never mutates the calls it is given.
package recovery

import (
	"fmt"
	"strings"

	"github.com/cutline/orchestrator/internal/domain"
)

// Decision tells the orchestrator how to recover one failed tool call:
// execute PrerequisiteCalls in order, wait DelayMs, then retry the original
// call. A nil decision means no further recovery.
type Decision struct {
	PolicyID          string            `json:"policy_id"`
	MaxRetries        int               `json:"max_retries"`
	DelayMs           int64             `json:"delay_ms"`
	PrerequisiteCalls []domain.ToolCall `json:"prerequisite_calls,omitempty"`
}

// Input identifies one failure occurrence.
type Input struct {
	ToolCall   domain.ToolCall
	ErrorCode  string
	RetryCount int
}

// Policy maps one error code to a retry strategy. Delay and Prerequisites
// may be nil for immediate, prerequisite-free retries.
type Policy struct {
	ID            string
	MaxRetries    int
	Delay         func(retryCount int) int64
	Prerequisites func(call domain.ToolCall) []domain.ToolCall
}

// Engine holds the registerable error-code → policy table.
type Engine struct {
	policies map[string]Policy
}

// DefaultBackoffBaseMs is the provider-backoff base delay when none is
// configured.
const DefaultBackoffBaseMs = 500

// NewEngine creates an engine with the built-in policy table installed.
// backoffBaseMs tunes the provider-backoff exponential delay.
func NewEngine(backoffBaseMs int64) *Engine {
	if backoffBaseMs <= 0 {
		backoffBaseMs = DefaultBackoffBaseMs
	}

	e := &Engine{policies: make(map[string]Policy)}

	e.Register(domain.ErrCodeNoTranscript, Policy{
		ID:         "transcript-bootstrap",
		MaxRetries: 1,
		Prerequisites: func(call domain.ToolCall) []domain.ToolCall {
			return []domain.ToolCall{{
				ID:        call.ID + "-pre-1",
				Name:      "generate_captions",
				Arguments: map[string]any{"source": "timeline"},
			}}
		},
	})

	e.Register(domain.ErrCodeProviderUnavailable, Policy{
		ID:         "provider-backoff",
		MaxRetries: 2,
		Delay: func(retryCount int) int64 {
			return backoffBaseMs << retryCount
		},
	})

	e.Register(domain.ErrCodeHighlightCacheStale, Policy{
		ID:         "highlight-score-refresh",
		MaxRetries: 1,
		Prerequisites: func(call domain.ToolCall) []domain.ToolCall {
			return []domain.ToolCall{{
				ID:        call.ID + "-pre-1",
				Name:      "score_highlights",
				Arguments: passThrough(call.Arguments, "videoAssetId"),
			}}
		},
	})

	e.Register(domain.ErrCodeHighlightPlanMissing, Policy{
		ID:         "highlight-plan-rebuild",
		MaxRetries: 1,
		Prerequisites: func(call domain.ToolCall) []domain.ToolCall {
			// score_highlights must run before generate_highlight_plan.
			return []domain.ToolCall{
				{
					ID:        call.ID + "-pre-1",
					Name:      "score_highlights",
					Arguments: passThrough(call.Arguments, "videoAssetId"),
				},
				{
					ID:        call.ID + "-pre-2",
					Name:      "generate_highlight_plan",
					Arguments: passThrough(call.Arguments, "targetDuration", "tolerance", "includeHook"),
				},
			}
		},
	})

	return e
}

// Register installs or replaces the policy for an error code.
func (e *Engine) Register(errorCode string, policy Policy) {
	e.policies[errorCode] = policy
}

// Resolve returns the recovery decision for one failure occurrence, or nil
// when the error code is unrecognized or retries are exhausted.
func (e *Engine) Resolve(in Input) *Decision {
	policy, ok := e.policies[in.ErrorCode]
	if !ok {
		return nil
	}
	if in.RetryCount >= policy.MaxRetries {
		return nil
	}

	d := &Decision{
		PolicyID:   policy.ID,
		MaxRetries: policy.MaxRetries,
	}
	if policy.Delay != nil {
		d.DelayMs = policy.Delay(in.RetryCount)
	}
	if policy.Prerequisites != nil {
		d.PrerequisiteCalls = policy.Prerequisites(in.ToolCall)
	}
	return d
}

// ExtractToolErrorCode pulls the taxonomy key out of a tool result's data.
// Missing, empty, or whitespace-only values yield "".
func ExtractToolErrorCode(data map[string]any) string {
	if data == nil {
		return ""
	}
	raw, ok := data["errorCode"]
	if !ok || raw == nil {
		return ""
	}
	code, ok := raw.(string)
	if !ok {
		code = fmt.Sprintf("%v", raw)
	}
	return strings.TrimSpace(code)
}

// passThrough copies the named keys from the original call's arguments.
// Absent keys are simply omitted.
func passThrough(args map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := args[k]; ok {
			out[k] = v
		}
	}
	return out
}
