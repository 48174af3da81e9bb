package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cutline/orchestrator/internal/domain"
	store "github.com/cutline/orchestrator/internal/repository"
)

// ErrPlanNotPending is returned when a plan operation races a confirmation,
// cancellation, or request cancellation that already consumed the plan.
var ErrPlanNotPending = errors.New("plan is no longer pending")

// ErrInvalidArguments is returned when a step edit fails schema validation.
var ErrInvalidArguments = errors.New("invalid arguments")

// getPendingPlanFor loads a plan and checks it belongs to the session.
func (s *Service) getPendingPlanFor(ctx context.Context, sessionID, planID string) (*domain.ExecutionPlan, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if plan == nil || plan.SessionID != sessionID {
		return nil, fmt.Errorf("plan %s: %w", planID, ErrNotFound)
	}
	return plan, nil
}

// ConfirmPlan executes a held plan. The status flip to CONFIRMED is the
// serialization point: whichever of confirm and cancel lands first wins, the
// other gets ErrPlanNotPending.
func (s *Service) ConfirmPlan(ctx context.Context, sessionID, planID string) (*domain.AgentResponse, error) {
	plan, err := s.getPendingPlanFor(ctx, sessionID, planID)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.UpdatePlanStatus(ctx, planID, store.PlanStatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm plan: %w", err)
	}
	if !ok {
		return nil, ErrPlanNotPending
	}
	meta, _ := s.takePlanMeta(planID)

	if err := s.store.UpdateRequestStatus(ctx, plan.RequestID, domain.RequestStatusRunning); err != nil {
		return nil, fmt.Errorf("failed to resume request: %w", err)
	}

	execCtx, release := s.beginExecution(plan.RequestID)
	defer release()

	return s.runPlanWithQuality(execCtx, sessionID, plan.RequestID, plan.Steps, meta)
}

// CancelPlan discards a held plan and finalizes its request as cancelled.
func (s *Service) CancelPlan(ctx context.Context, sessionID, planID string) (*domain.AgentResponse, error) {
	plan, err := s.getPendingPlanFor(ctx, sessionID, planID)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.UpdatePlanStatus(ctx, planID, store.PlanStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel plan: %w", err)
	}
	if !ok {
		return nil, ErrPlanNotPending
	}
	s.takePlanMeta(planID)

	if err := s.finishRequest(ctx, sessionID, plan.RequestID, domain.RequestStatusCancelled, domain.ErrCodeExecutionCancelled, "plan cancelled by user"); err != nil {
		log.Printf("ERROR: failed to finalize request %s: %v", plan.RequestID, err)
	}
	return &domain.AgentResponse{
		RequestID: plan.RequestID,
		SessionID: sessionID,
		Success:   true,
		Message:   "plan cancelled",
	}, nil
}

// UpdatePlanStep replaces the arguments of one step of a pending plan. The
// new arguments are validated against the tool's schema before anything is
// written.
func (s *Service) UpdatePlanStep(ctx context.Context, sessionID, planID, stepID string, args map[string]any) (*domain.ExecutionPlan, error) {
	plan, err := s.getPendingPlanFor(ctx, sessionID, planID)
	if err != nil {
		return nil, err
	}
	step := plan.Step(stepID)
	if step == nil {
		return nil, fmt.Errorf("step %q: %w", stepID, ErrNotFound)
	}

	if err := s.registry.Validate(step.ToolName, args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	step.Arguments = args
	if err := s.store.UpdatePlanSteps(ctx, planID, plan.Steps); err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}
	return plan, nil
}

// RemovePlanStep removes one step from a pending plan. A step another step
// depends on cannot be removed; removing the last step cancels the plan.
func (s *Service) RemovePlanStep(ctx context.Context, sessionID, planID, stepID string) (*domain.ExecutionPlan, error) {
	plan, err := s.getPendingPlanFor(ctx, sessionID, planID)
	if err != nil {
		return nil, err
	}
	if plan.Step(stepID) == nil {
		return nil, fmt.Errorf("step %q: %w", stepID, ErrNotFound)
	}

	kept := make([]domain.PlanStep, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		if step.ID == stepID {
			continue
		}
		for _, dep := range step.DependsOn {
			if dep == stepID {
				return nil, fmt.Errorf("%w: step %q depends on %q", ErrInvalidArguments, step.ID, stepID)
			}
		}
		kept = append(kept, step)
	}

	if len(kept) == 0 {
		if _, err := s.CancelPlan(ctx, sessionID, planID); err != nil {
			return nil, err
		}
		plan.Steps = nil
		return plan, nil
	}

	if err := s.store.UpdatePlanSteps(ctx, planID, kept); err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}
	plan.Steps = kept
	return plan, nil
}
