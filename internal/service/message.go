package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cutline/orchestrator/internal/adapter/llm"
	"github.com/cutline/orchestrator/internal/domain"
	"github.com/cutline/orchestrator/policy"
)

// ErrSessionBusy is returned when a session already has a running request.
var ErrSessionBusy = errors.New("session already has a running request")

// maxChatRounds bounds the tool-call loop of a single conversational turn.
const maxChatRounds = 8

// systemPrompt frames every turn sent to the chat provider.
const systemPrompt = "You are the editing assistant inside a media timeline editor. " +
	"Use the available tools to inspect and modify the user's timeline. " +
	"Call tools only when the request needs them; otherwise answer directly and concisely. " +
	"Never invent element or asset identifiers."

// ProcessMessage handles one conversational turn: it feeds the bounded
// history plus the tool surface to the chat provider, executes auto-approved
// tool calls with recovery, and parks plans that need confirmation. Only one
// request may be active per session.
func (s *Service) ProcessMessage(ctx context.Context, sessionID string, msg *domain.ProcessMessageRequest) (*domain.AgentResponse, error) {
	userID := msg.Context["user_id"]
	if userID == "" {
		userID = "default_user"
	}
	session, err := s.store.GetOrCreateSession(ctx, sessionID, userID)
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

	requestID := msg.RequestID
	if requestID == "" {
		requestID = "req_" + uuid.New().String()[:8]
	}
	request := &domain.Request{
		RequestID: requestID,
		SessionID: session.SessionID,
		Kind:      "message",
		Status:    domain.RequestStatusRunning,
		StartedAt: time.Now(),
	}
	if err := s.store.CreateRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := s.recordEvent(ctx, session.SessionID, requestID, domain.EventTypeRequestStarted, domain.RequestStartedPayload{
		SessionID: session.SessionID,
		Kind:      "message",
		Content:   msg.Content,
	}); err != nil {
		log.Printf("ERROR: failed to record request_started event: %v", err)
	}

	if err := s.saveMessage(ctx, session.SessionID, requestID, "user", msg.Content, "", ""); err != nil {
		return nil, err
	}

	execCtx, release := s.beginExecution(requestID)
	defer release()

	return s.runChatLoop(execCtx, session.SessionID, requestID)
}

// runChatLoop drives provider rounds until the model answers without tool
// calls, a plan is parked for confirmation, or the round limit is hit.
func (s *Service) runChatLoop(ctx context.Context, sessionID, requestID string) (*domain.AgentResponse, error) {
	doc := s.docs.Get(sessionID)
	var allResults []domain.ToolResult

	for round := 0; round < maxChatRounds; round++ {
		history, err := s.store.GetRecentMessages(ctx, sessionID, s.config.HistoryWindow)
		if err != nil {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}

		resp, err := s.provider.Chat(ctx, &llm.ChatRequest{
			SystemPrompt: systemPrompt,
			Messages:     history,
			Tools:        s.registry.Specs(),
		})
		if err != nil {
			if ctx.Err() != nil {
				return s.failResponse(ctx, sessionID, requestID, domain.RequestStatusCancelled,
					domain.ErrCodeExecutionCancelled, "request was cancelled", allResults)
			}
			log.Printf("ERROR: chat provider failed: %v", err)
			return s.failResponse(ctx, sessionID, requestID, domain.RequestStatusFailed,
				domain.ErrCodeProviderUnavailable, "chat provider is unavailable", allResults)
		}

		if len(resp.ToolCalls) == 0 {
			if err := s.saveMessage(ctx, sessionID, requestID, "assistant", resp.Content, "", ""); err != nil {
				return nil, err
			}
			if err := s.finishRequest(ctx, sessionID, requestID, domain.RequestStatusCompleted, "", ""); err != nil {
				log.Printf("ERROR: failed to finalize request %s: %v", requestID, err)
			}
			return &domain.AgentResponse{
				RequestID:   requestID,
				SessionID:   sessionID,
				Success:     true,
				Message:     resp.Content,
				ToolResults: allResults,
			}, nil
		}

		if resp.Content != "" {
			if err := s.saveMessage(ctx, sessionID, requestID, "assistant", resp.Content, "", ""); err != nil {
				return nil, err
			}
		}

		steps, gate, err := s.gateToolCalls(ctx, resp.ToolCalls)
		if err != nil {
			return nil, err
		}
		switch gate {
		case policyBlock:
			return s.failResponse(ctx, sessionID, requestID, domain.RequestStatusFailed,
				domain.ErrCodePolicyBlocked, "a requested operation is blocked by policy", allResults)

		case policyConfirm:
			plan, err := s.holdPlan(ctx, sessionID, requestID, steps, planMeta{})
			if err != nil {
				return nil, err
			}
			return &domain.AgentResponse{
				RequestID: requestID,
				SessionID: sessionID,
				Success:   true,
				Message:   "the proposed changes need your confirmation",
				Plan:      plan,
			}, nil
		}

		for _, call := range resp.ToolCalls {
			res := s.executeWithRecovery(ctx, doc, sessionID, requestID, call)
			allResults = append(allResults, res)

			content := res.Message
			if raw, err := json.Marshal(res); err == nil {
				content = string(raw)
			}
			if err := s.saveMessage(ctx, sessionID, requestID, "tool", content, call.ID, call.Name); err != nil {
				return nil, err
			}

			if res.ErrorCode() == domain.ErrCodeExecutionCancelled {
				return s.failResponse(ctx, sessionID, requestID, domain.RequestStatusCancelled,
					domain.ErrCodeExecutionCancelled, "request was cancelled", allResults)
			}
		}
	}

	if err := s.finishRequest(ctx, sessionID, requestID, domain.RequestStatusCompleted, "", ""); err != nil {
		log.Printf("ERROR: failed to finalize request %s: %v", requestID, err)
	}
	return &domain.AgentResponse{
		RequestID:   requestID,
		SessionID:   sessionID,
		Success:     true,
		Message:     "stopped after the maximum number of tool rounds",
		ToolResults: allResults,
	}, nil
}

type policyGate int

const (
	policyAuto policyGate = iota
	policyConfirm
	policyBlock
)

// gateToolCalls evaluates the confirmation policy for a batch of tool calls
// and builds plan steps from them. One blocked call blocks the batch; one
// call needing confirmation parks the whole batch as a plan.
func (s *Service) gateToolCalls(ctx context.Context, calls []domain.ToolCall) ([]domain.PlanStep, policyGate, error) {
	gate := policyAuto
	steps := make([]domain.PlanStep, 0, len(calls))

	for _, call := range calls {
		def, ok := s.registry.Get(call.Name)
		if !ok {
			return nil, policyAuto, fmt.Errorf("unknown tool %q", call.Name)
		}

		decision, err := s.policy.Evaluate(ctx, policyInput(call, def.Operation, "message"))
		if err != nil {
			return nil, policyAuto, fmt.Errorf("failed to evaluate policy: %w", err)
		}

		step := domain.PlanStep{
			ID:        call.ID,
			ToolName:  call.Name,
			Arguments: call.Arguments,
			Summary:   def.Description,
			Operation: def.Operation,
		}
		switch decision {
		case "block":
			return nil, policyBlock, nil
		case "confirm":
			step.RequiresConfirmation = true
			gate = policyConfirm
		}
		steps = append(steps, step)
	}
	return steps, gate, nil
}

// holdPlan persists a plan, parks the request on confirmation, and records
// the plan_created event.
func (s *Service) holdPlan(ctx context.Context, sessionID, requestID string, steps []domain.PlanStep, meta planMeta) (*domain.ExecutionPlan, error) {
	plan := &domain.ExecutionPlan{
		PlanID:    "plan_" + uuid.New().String()[:8],
		RequestID: requestID,
		SessionID: sessionID,
		Steps:     steps,
		CreatedAt: time.Now(),
	}
	if err := s.store.SavePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to save plan: %w", err)
	}
	if err := s.store.UpdateRequestStatus(ctx, requestID, domain.RequestStatusAwaitingConfirmation); err != nil {
		return nil, fmt.Errorf("failed to park request: %w", err)
	}
	s.setPlanMeta(plan.PlanID, meta)

	if err := s.recordEvent(ctx, sessionID, requestID, domain.EventTypePlanCreated, domain.PlanCreatedPayload{
		PlanID:     plan.PlanID,
		TotalSteps: len(plan.Steps),
	}); err != nil {
		log.Printf("ERROR: failed to record plan_created event: %v", err)
	}
	return plan, nil
}

// failResponse moves the request to a terminal failure state and shapes the
// matching response.
func (s *Service) failResponse(ctx context.Context, sessionID, requestID string, status domain.RequestStatus, errorCode, message string, results []domain.ToolResult) (*domain.AgentResponse, error) {
	finishCtx := ctx
	if finishCtx.Err() != nil {
		var cancel context.CancelFunc
		finishCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := s.finishRequest(finishCtx, sessionID, requestID, status, errorCode, message); err != nil {
		log.Printf("ERROR: failed to finalize request %s: %v", requestID, err)
	}
	return &domain.AgentResponse{
		RequestID:   requestID,
		SessionID:   sessionID,
		Success:     false,
		ErrorCode:   errorCode,
		Message:     message,
		ToolResults: results,
	}, nil
}

func (s *Service) saveMessage(ctx context.Context, sessionID, requestID, role, content, toolCallID, toolName string) error {
	saveCtx := ctx
	if saveCtx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	err := s.store.CreateMessage(saveCtx, &domain.Message{
		MessageID:  "msg_" + uuid.New().String()[:8],
		SessionID:  sessionID,
		RequestID:  requestID,
		Role:       role,
		Content:    content,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save %s message: %w", role, err)
	}
	return nil
}

// policyInput shapes the per-call confirmation policy input document.
func policyInput(call domain.ToolCall, op domain.Operation, kind string) policy.Input {
	return policy.Input{
		ToolName:  call.Name,
		Operation: string(op),
		Args:      call.Arguments,
		Kind:      kind,
	}
}
