package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cutline/orchestrator/internal/domain"
	"github.com/cutline/orchestrator/internal/editor"
	"github.com/cutline/orchestrator/internal/recovery"
	"github.com/cutline/orchestrator/internal/tools"
)

// stepFailure reports the terminally failed step that aborted execution.
type stepFailure struct {
	Step   domain.PlanStep
	Result domain.ToolResult
}

// orderSteps produces an execution order honoring dependsOn while keeping
// the declared order for independent steps. Unknown or cyclic dependencies
// are rejected.
func orderSteps(steps []domain.PlanStep) ([]domain.PlanStep, error) {
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		index[s.ID] = i
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make([]int, len(steps))
	ordered := make([]domain.PlanStep, 0, len(steps))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("step %q is part of a dependency cycle", steps[i].ID)
		}
		state[i] = visiting
		for _, dep := range steps[i].DependsOn {
			j, ok := index[dep]
			if !ok {
				return fmt.Errorf("step %q depends on unknown step %q", steps[i].ID, dep)
			}
			if err := visit(j); err != nil {
				return err
			}
		}
		state[i] = done
		ordered = append(ordered, steps[i])
		return nil
	}

	for i := range steps {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// executeSteps runs a plan's steps in dependency order. Execution is
// serialized, so steps sharing a resource lock can never overlap, and a
// step's dependencies have always completed before it starts. A required
// step that fails terminally aborts the remainder; optional steps and steps
// depending on a failed step are skipped.
func (s *Service) executeSteps(ctx context.Context, doc editor.DocumentMutator, sessionID, requestID string, steps []domain.PlanStep) ([]domain.ToolResult, *stepFailure) {
	ordered, err := orderSteps(steps)
	if err != nil {
		res := domain.ToolResult{
			Success: false,
			Message: err.Error(),
			Data:    map[string]any{"errorCode": domain.ErrCodeValidationError},
		}
		return []domain.ToolResult{res}, &stepFailure{Result: res}
	}

	failed := make(map[string]bool, len(ordered))
	var results []domain.ToolResult

	for i, step := range ordered {
		if ctx.Err() != nil {
			res := domain.CancelledResult(step.ToolName)
			results = append(results, res)
			return results, &stepFailure{Step: step, Result: res}
		}

		if dep := firstFailedDep(step, failed); dep != "" {
			res := domain.ToolResult{
				Success: false,
				Message: fmt.Sprintf("skipped: dependency %q did not complete", dep),
			}
			results = append(results, res)
			failed[step.ID] = true
			if !step.Optional {
				return results, &stepFailure{Step: step, Result: res}
			}
			continue
		}

		call := domain.ToolCall{
			ID:        "call_" + step.ID,
			Name:      step.ToolName,
			Arguments: step.Arguments,
		}
		s.recordToolEvent(ctx, sessionID, requestID, domain.EventTypeToolStarted, call, i, len(ordered), nil)

		res := s.executeWithRecovery(ctx, doc, sessionID, requestID, call)
		s.recordToolEvent(ctx, sessionID, requestID, domain.EventTypeToolCompleted, call, i, len(ordered), &res)
		results = append(results, res)

		if res.Success {
			continue
		}
		failed[step.ID] = true
		if res.ErrorCode() == domain.ErrCodeExecutionCancelled {
			return results, &stepFailure{Step: step, Result: res}
		}
		if !step.Optional {
			return results, &stepFailure{Step: step, Result: res}
		}
		log.Printf("WARN: optional step %s failed: %s", step.ID, res.Message)
	}
	return results, nil
}

func firstFailedDep(step domain.PlanStep, failed map[string]bool) string {
	for _, dep := range step.DependsOn {
		if failed[dep] {
			return dep
		}
	}
	return ""
}

// executeWithRecovery runs one tool call and drives the recovery loop on
// failure: prerequisites in order, then the delay, then the retry. Retries
// are counted per error code; a cancelled call is never retried.
func (s *Service) executeWithRecovery(ctx context.Context, doc editor.DocumentMutator, sessionID, requestID string, call domain.ToolCall) domain.ToolResult {
	retries := map[string]int{}

	for {
		res := s.executeOnce(ctx, doc, sessionID, requestID, call)
		if res.Success {
			return res
		}

		code := recovery.ExtractToolErrorCode(res.Data)
		if code == "" || code == domain.ErrCodeExecutionCancelled {
			return res
		}

		decision := s.recovery.Resolve(recovery.Input{
			ToolCall:   call,
			ErrorCode:  code,
			RetryCount: retries[code],
		})
		if decision == nil {
			if retries[code] > 0 {
				s.recordRecoveryEvent(ctx, sessionID, requestID, domain.EventTypeRecoveryExhausted, call, code, "", retries[code], 0, "")
			}
			return res
		}

		s.recordRecoveryEvent(ctx, sessionID, requestID, domain.EventTypeRecoveryStarted, call, code, decision.PolicyID, retries[code], decision.DelayMs, "")

		prereqsOK := true
		for _, pre := range decision.PrerequisiteCalls {
			s.recordRecoveryEvent(ctx, sessionID, requestID, domain.EventTypeRecoveryPrerequisiteStarted, call, code, decision.PolicyID, retries[code], 0, pre.Name)
			preRes := s.executeOnce(ctx, doc, sessionID, requestID, pre)
			s.recordRecoveryEvent(ctx, sessionID, requestID, domain.EventTypeRecoveryPrerequisiteCompleted, call, code, decision.PolicyID, retries[code], 0, pre.Name)

			if preRes.ErrorCode() == domain.ErrCodeExecutionCancelled {
				return preRes
			}
			if !preRes.Success {
				log.Printf("WARN: recovery prerequisite %s failed: %s", pre.Name, preRes.Message)
				prereqsOK = false
				break
			}
		}
		if !prereqsOK {
			return res
		}

		if decision.DelayMs > 0 {
			select {
			case <-ctx.Done():
				return domain.CancelledResult(call.Name)
			case <-time.After(time.Duration(decision.DelayMs) * time.Millisecond):
			}
		}

		retries[code]++
		s.recordRecoveryEvent(ctx, sessionID, requestID, domain.EventTypeRecoveryRetrying, call, code, decision.PolicyID, retries[code], 0, "")
	}
}

// executeOnce runs a tool call under the configured per-call timeout.
// Progress notes from the tool body surface as tool_progress events.
func (s *Service) executeOnce(ctx context.Context, doc editor.DocumentMutator, sessionID, requestID string, call domain.ToolCall) domain.ToolResult {
	timeout := 60 * time.Second
	if s.config != nil && s.config.ToolTimeout > 0 {
		timeout = s.config.ToolTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callCtx = tools.WithProgress(callCtx, func(note string) {
		if err := s.recordEvent(ctx, sessionID, requestID, domain.EventTypeToolProgress, domain.ToolEventPayload{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Progress:   note,
		}); err != nil {
			log.Printf("ERROR: failed to record tool_progress event: %v", err)
		}
	})
	return s.registry.Execute(callCtx, doc, call.Name, call.Arguments)
}

func (s *Service) recordToolEvent(ctx context.Context, sessionID, requestID string, eventType domain.EventType, call domain.ToolCall, stepIndex, totalSteps int, result *domain.ToolResult) {
	if err := s.recordEvent(ctx, sessionID, requestID, eventType, domain.ToolEventPayload{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		StepIndex:  stepIndex,
		TotalSteps: totalSteps,
		Result:     result,
	}); err != nil {
		log.Printf("ERROR: failed to record %s event: %v", eventType, err)
	}
}

func (s *Service) recordRecoveryEvent(ctx context.Context, sessionID, requestID string, eventType domain.EventType, call domain.ToolCall, errorCode, policyID string, retryCount int, delayMs int64, prerequisite string) {
	if err := s.recordEvent(ctx, sessionID, requestID, eventType, domain.RecoveryEventPayload{
		ToolCallID:   call.ID,
		ToolName:     call.Name,
		ErrorCode:    errorCode,
		PolicyID:     policyID,
		RetryCount:   retryCount,
		DelayMs:      delayMs,
		Prerequisite: prerequisite,
	}); err != nil {
		log.Printf("ERROR: failed to record %s event: %v", eventType, err)
	}
}
