// Package service implements the agent execution engine: request lifecycle,
// plan confirmation, step execution with recovery, workflow runs, and the
// quality loop.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cutline/orchestrator/internal/adapter/llm"
	"github.com/cutline/orchestrator/internal/adapter/uipush"
	"github.com/cutline/orchestrator/internal/config"
	"github.com/cutline/orchestrator/internal/domain"
	"github.com/cutline/orchestrator/internal/editor"
	"github.com/cutline/orchestrator/internal/quality"
	"github.com/cutline/orchestrator/internal/recovery"
	store "github.com/cutline/orchestrator/internal/repository"
	"github.com/cutline/orchestrator/internal/tools"
	"github.com/cutline/orchestrator/internal/workflow"
	"github.com/cutline/orchestrator/policy"
)

// planMeta carries the execution context a held plan needs once confirmed.
type planMeta struct {
	Workflow string
	Quality  domain.QualityLoopConfig
}

type Service struct {
	store     store.Store
	docs      *editor.Store
	registry  *tools.Registry
	recovery  *recovery.Engine
	catalog   *workflow.Catalog
	resolver  *workflow.Resolver
	evaluator *quality.Evaluator
	provider  llm.ChatProvider
	push      *uipush.Client
	policy    *policy.Engine
	config    *config.Config

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	planMeta map[string]planMeta
}

func New(
	st store.Store,
	docs *editor.Store,
	registry *tools.Registry,
	recoveryEngine *recovery.Engine,
	catalog *workflow.Catalog,
	resolver *workflow.Resolver,
	evaluator *quality.Evaluator,
	provider llm.ChatProvider,
	push *uipush.Client,
	policyEngine *policy.Engine,
	cfg *config.Config,
) *Service {
	return &Service{
		store:     st,
		docs:      docs,
		registry:  registry,
		recovery:  recoveryEngine,
		catalog:   catalog,
		resolver:  resolver,
		evaluator: evaluator,
		provider:  provider,
		push:      push,
		policy:    policyEngine,
		config:    cfg,
		cancels:   make(map[string]context.CancelFunc),
		planMeta:  make(map[string]planMeta),
	}
}

// beginExecution derives the cancellable execution context for a request and
// registers its cancel func so CancelRequest can reach it.
func (s *Service) beginExecution(requestID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.cancels[requestID] = cancel
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		delete(s.cancels, requestID)
		s.mu.Unlock()
		cancel()
	}
}

// cancelExecution fires the cancel func of an in-flight request, if any.
func (s *Service) cancelExecution(requestID string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[requestID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (s *Service) setPlanMeta(planID string, meta planMeta) {
	s.mu.Lock()
	s.planMeta[planID] = meta
	s.mu.Unlock()
}

func (s *Service) takePlanMeta(planID string) (planMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.planMeta[planID]
	delete(s.planMeta, planID)
	return meta, ok
}

// recordEvent appends an event to the request's telemetry stream and pushes
// it to the UI gateway on a best-effort basis.
func (s *Service) recordEvent(ctx context.Context, sessionID, requestID string, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.AgentEvent{
		EventID:   "evt_" + uuid.New().String()[:8],
		RequestID: requestID,
		Ts:        time.Now().UnixMilli(),
		Type:      eventType,
		Payload:   payloadBytes,
	}

	if err := s.store.AppendEvent(ctx, event); err != nil {
		return err
	}
	if s.push != nil {
		_ = s.push.PushEvent(sessionID, *event)
	}
	return nil
}

// ErrNotFound marks lookups of requests, plans, or steps that do not exist.
var ErrNotFound = errors.New("not found")

// GetRequest retrieves one request.
func (s *Service) GetRequest(ctx context.Context, requestID string) (*domain.Request, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	return req, nil
}

// GetMessages retrieves the most recent messages of a session, oldest first.
func (s *Service) GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	messages, err := s.store.GetRecentMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}

// PendingPlan returns the session's plan awaiting confirmation, or nil.
func (s *Service) PendingPlan(ctx context.Context, sessionID string) (*domain.ExecutionPlan, error) {
	plan, err := s.store.GetPendingPlan(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending plan: %w", err)
	}
	return plan, nil
}

// GetEvents retrieves a request's telemetry stream.
func (s *Service) GetEvents(ctx context.Context, requestID string, afterTs int64, types []string, limit int) ([]domain.AgentEvent, error) {
	events, err := s.store.GetEvents(ctx, requestID, afterTs, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return events, nil
}

// CancelRequest cancels an in-flight request cooperatively: execution stops
// at the next suspension point, and a held plan is discarded.
func (s *Service) CancelRequest(ctx context.Context, requestID string) error {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to get request: %w", err)
	}
	if req == nil {
		return fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	if req.Status.IsTerminal() {
		return nil
	}

	// A running request finalizes itself when its context fires; a request
	// parked on confirmation has nothing running, so finalize it here.
	if s.cancelExecution(requestID) {
		return nil
	}

	if plan, err := s.store.GetPendingPlan(ctx, req.SessionID); err == nil && plan != nil && plan.RequestID == requestID {
		_, _ = s.store.UpdatePlanStatus(ctx, plan.PlanID, store.PlanStatusCancelled)
		s.takePlanMeta(plan.PlanID)
	}
	return s.finishRequest(ctx, req.SessionID, requestID, domain.RequestStatusCancelled, domain.ErrCodeExecutionCancelled, "cancelled by user")
}

// finishRequest moves a request to a terminal state and records the
// request_completed event.
func (s *Service) finishRequest(ctx context.Context, sessionID, requestID string, status domain.RequestStatus, errorCode, message string) error {
	var errData []byte
	if errorCode != "" || message != "" {
		errData, _ = json.Marshal(map[string]string{"errorCode": errorCode, "message": message})
	}
	if err := s.store.UpdateRequestCompleted(ctx, requestID, status, errData); err != nil {
		return fmt.Errorf("failed to finalize request: %w", err)
	}
	return s.recordEvent(ctx, sessionID, requestID, domain.EventTypeRequestCompleted, domain.RequestCompletedPayload{
		Status:    status,
		ErrorCode: errorCode,
		Message:   message,
	})
}
