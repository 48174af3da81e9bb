package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cutline/orchestrator/internal/domain"
	"github.com/cutline/orchestrator/internal/quality"
	"github.com/cutline/orchestrator/internal/workflow"
)

// ListWorkflows returns the available workflow templates.
func (s *Service) ListWorkflows() []domain.Workflow {
	return s.catalog.List()
}

// RunWorkflow resolves a named workflow template against user overrides and
// executes it, gated by the confirmation policy and wrapped in the quality
// loop when requested.
func (s *Service) RunWorkflow(ctx context.Context, sessionID, name string, run *domain.RunWorkflowRequest) (*domain.AgentResponse, error) {
	session, err := s.store.GetOrCreateSession(ctx, sessionID, "default_user")
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if pending, err := s.store.GetPendingPlan(ctx, session.SessionID); err != nil {
		return nil, fmt.Errorf("failed to check pending plan: %w", err)
	} else if pending != nil {
		return &domain.AgentResponse{
			RequestID: pending.RequestID,
			SessionID: session.SessionID,
			Success:   false,
			ErrorCode: domain.ErrCodePlanPending,
			Message:   "a plan is awaiting confirmation; confirm or cancel it first",
			Plan:      pending,
		}, nil
	}
	if active, err := s.store.GetActiveRequest(ctx, session.SessionID); err != nil {
		return nil, fmt.Errorf("failed to check active request: %w", err)
	} else if active != nil {
		return nil, ErrSessionBusy
	}

	var overrides []domain.StepOverride
	var meta planMeta
	if run != nil {
		overrides = run.StepOverrides
		if run.QualityLoop != nil {
			meta.Quality = *run.QualityLoop
		}
	}
	meta.Workflow = name

	resolved, err := s.resolver.Resolve(name, overrides)
	if err != nil {
		var verr *workflow.ValidationError
		if errors.As(err, &verr) {
			return &domain.AgentResponse{
				SessionID: session.SessionID,
				Success:   false,
				ErrorCode: domain.ErrCodeValidationError,
				Message:   verr.Error(),
			}, nil
		}
		return nil, err
	}

	requestID := "req_" + uuid.New().String()[:8]
	request := &domain.Request{
		RequestID: requestID,
		SessionID: session.SessionID,
		Kind:      "workflow",
		Status:    domain.RequestStatusRunning,
		StartedAt: time.Now(),
	}
	if err := s.store.CreateRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := s.recordEvent(ctx, session.SessionID, requestID, domain.EventTypeRequestStarted, domain.RequestStartedPayload{
		SessionID: session.SessionID,
		Kind:      "workflow",
		Workflow:  name,
	}); err != nil {
		log.Printf("ERROR: failed to record request_started event: %v", err)
	}

	gate, err := s.gateWorkflowSteps(ctx, resolved.Steps)
	if err != nil {
		return nil, err
	}
	switch gate {
	case policyBlock:
		return s.failResponse(ctx, session.SessionID, requestID, domain.RequestStatusFailed,
			domain.ErrCodePolicyBlocked, "a workflow step is blocked by policy", nil)

	case policyConfirm:
		plan, err := s.holdPlan(ctx, session.SessionID, requestID, resolved.Steps, meta)
		if err != nil {
			return nil, err
		}
		return &domain.AgentResponse{
			RequestID: requestID,
			SessionID: session.SessionID,
			Success:   true,
			Message:   fmt.Sprintf("workflow %s needs your confirmation", name),
			Plan:      plan,
		}, nil
	}

	execCtx, release := s.beginExecution(requestID)
	defer release()

	return s.runPlanWithQuality(execCtx, session.SessionID, requestID, resolved.Steps, meta)
}

// gateWorkflowSteps evaluates the confirmation policy over resolved workflow
// steps. Template-declared requires_confirmation forces the gate even when
// policy would auto-approve.
func (s *Service) gateWorkflowSteps(ctx context.Context, steps []domain.PlanStep) (policyGate, error) {
	gate := policyAuto
	for i := range steps {
		step := &steps[i]
		call := domain.ToolCall{ID: step.ID, Name: step.ToolName, Arguments: step.Arguments}

		decision, err := s.policy.Evaluate(ctx, policyInput(call, step.Operation, "workflow"))
		if err != nil {
			return policyAuto, fmt.Errorf("failed to evaluate policy: %w", err)
		}
		switch decision {
		case "block":
			return policyBlock, nil
		case "confirm":
			step.RequiresConfirmation = true
		}
		if step.RequiresConfirmation {
			gate = policyConfirm
		}
	}
	return gate, nil
}

// runPlanWithQuality executes plan steps, then scores the result and re-runs
// the steps until the composite passes or the iteration budget is spent.
// Without a quality-loop config the steps run exactly once.
func (s *Service) runPlanWithQuality(ctx context.Context, sessionID, requestID string, steps []domain.PlanStep, meta planMeta) (*domain.AgentResponse, error) {
	doc := s.docs.Get(sessionID)

	iterations := 1
	evaluator := s.evaluator
	if meta.Quality.Enabled {
		iterations = quality.ClampIterations(meta.Quality.MaxIterations)
		if meta.Quality.PassThreshold != nil {
			evaluator = quality.NewEvaluator(*meta.Quality.PassThreshold)
		}
	}
	target, tolerance := qualityTarget(meta.Quality, steps)

	var results []domain.ToolResult
	var report *domain.QualityReport

	for i := 1; i <= iterations; i++ {
		iterResults, failure := s.executeSteps(ctx, doc, sessionID, requestID, steps)
		results = append(results, iterResults...)
		if failure != nil {
			status := domain.RequestStatusFailed
			code := failure.Result.ErrorCode()
			if code == domain.ErrCodeExecutionCancelled {
				status = domain.RequestStatusCancelled
			}
			if code == "" {
				code = domain.ErrCodeValidationError
			}
			return s.failResponse(ctx, sessionID, requestID, status, code, failure.Result.Message, results)
		}

		if !meta.Quality.Enabled {
			break
		}

		r := evaluator.Evaluate(doc, target, tolerance)
		report = &r
		if err := s.store.SaveQualityReport(ctx, requestID, i, report); err != nil {
			log.Printf("ERROR: failed to save quality report: %v", err)
		}
		if report.Passed {
			break
		}
		if i == iterations {
			resp, err := s.failResponse(ctx, sessionID, requestID, domain.RequestStatusFailed,
				domain.ErrCodeQualityTargetNotMet,
				fmt.Sprintf("quality score %.2f is below the pass threshold after %d iterations", report.CompositeScore, iterations),
				results)
			if resp != nil {
				resp.QualityReport = report
			}
			return resp, err
		}
		log.Printf("WARN: quality score %.2f below threshold, re-running workflow steps (iteration %d/%d)", report.CompositeScore, i, iterations)
	}

	if err := s.finishRequest(ctx, sessionID, requestID, domain.RequestStatusCompleted, "", ""); err != nil {
		log.Printf("ERROR: failed to finalize request %s: %v", requestID, err)
	}
	message := "plan executed"
	if meta.Workflow != "" {
		message = fmt.Sprintf("workflow %s completed", meta.Workflow)
	}
	return &domain.AgentResponse{
		RequestID:     requestID,
		SessionID:     sessionID,
		Success:       true,
		Message:       message,
		ToolResults:   results,
		QualityReport: report,
	}, nil
}

// qualityTarget derives the duration target for scoring: an explicit
// quality-loop override wins, else the plan-generation step's arguments.
func qualityTarget(cfg domain.QualityLoopConfig, steps []domain.PlanStep) (target, tolerance float64) {
	tolerance = 0.2
	if cfg.TargetDuration != nil {
		target = *cfg.TargetDuration
	}
	if cfg.Tolerance != nil {
		tolerance = *cfg.Tolerance
	}
	if target > 0 {
		return target, tolerance
	}

	for _, step := range steps {
		if step.ToolName != "generate_highlight_plan" {
			continue
		}
		if v, ok := step.Arguments["targetDuration"].(float64); ok {
			target = v
		}
		if cfg.Tolerance == nil {
			if v, ok := step.Arguments["tolerance"].(float64); ok {
				tolerance = v
			}
		}
		break
	}
	return target, tolerance
}
