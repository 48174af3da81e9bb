package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cutline/orchestrator/internal/adapter/llm"
	"github.com/cutline/orchestrator/internal/config"
	"github.com/cutline/orchestrator/internal/domain"
	"github.com/cutline/orchestrator/internal/editor"
	"github.com/cutline/orchestrator/internal/quality"
	"github.com/cutline/orchestrator/internal/recovery"
	"github.com/cutline/orchestrator/internal/tools"
	"github.com/cutline/orchestrator/internal/workflow"
	"github.com/cutline/orchestrator/policy"
	"github.com/cutline/orchestrator/tests/helpers"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	st := helpers.NewTestSQLiteStore(t)

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)

	catalog := workflow.NewCatalog()
	resolver := workflow.NewResolver(catalog, registry)

	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	cfg := &config.Config{
		HistoryWindow:     30,
		ToolTimeout:       5 * time.Second,
		QualityThreshold:  0.75,
		QualityIterations: 2,
	}

	return New(
		st,
		editor.NewStore(),
		registry,
		recovery.NewEngine(1), // near-zero backoff keeps tests fast
		catalog,
		resolver,
		quality.NewEvaluator(0.75),
		llm.NewMockClient(),
		nil,
		policyEngine,
		cfg,
	)
}

// seedPodcast installs a two-minute recording with a transcribed audio track.
func seedPodcast(svc *Service, sessionID string) {
	transcript := "This is the best opening ever. We talk about the key secret. Um some filler chatter here. The most important lesson follows. Never skip this amazing part. A quiet closing thought."
	svc.docs.Put(sessionID, editor.NewDocumentWithTracks([]domain.Track{
		{ID: "video-1", Kind: domain.TrackKindVideo, Elements: []domain.Element{
			{ID: "v1", Start: 0, Duration: 120, AssetID: "asset-v"},
		}},
		{ID: "audio-1", Kind: domain.TrackKindAudio, Elements: []domain.Element{
			{ID: "a1", Start: 0, Duration: 120, AssetID: "asset-a", Transcript: transcript},
		}},
	}))
}

func eventTypes(t *testing.T, svc *Service, requestID string) map[domain.EventType]int {
	t.Helper()
	events, err := svc.GetEvents(context.Background(), requestID, 0, nil, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	types := make(map[domain.EventType]int)
	for _, e := range events {
		types[e.Type]++
	}
	return types
}

func TestProcessMessagePlainAnswer(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	resp, err := svc.ProcessMessage(ctx, "sess-1", &domain.ProcessMessageRequest{Content: "hello there"})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got error %q: %s", resp.ErrorCode, resp.Message)
	}
	if resp.Message == "" {
		t.Fatal("expected a text answer")
	}

	req, err := svc.GetRequest(ctx, resp.RequestID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if req.Status != domain.RequestStatusCompleted {
		t.Fatalf("request status = %s, want COMPLETED", req.Status)
	}

	types := eventTypes(t, svc, resp.RequestID)
	if types[domain.EventTypeRequestStarted] != 1 || types[domain.EventTypeRequestCompleted] != 1 {
		t.Fatalf("expected request_started and request_completed events, got %v", types)
	}
}

func TestProcessMessageParksHighlightPlan(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedPodcast(svc, "sess-1")

	resp, err := svc.ProcessMessage(ctx, "sess-1", &domain.ProcessMessageRequest{Content: "make highlight clips"})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if resp.Plan == nil {
		t.Fatalf("expected a parked plan, got message %q", resp.Message)
	}
	if len(resp.Plan.Steps) != 3 {
		t.Fatalf("plan has %d steps, want 3", len(resp.Plan.Steps))
	}
	for _, step := range resp.Plan.Steps {
		if !step.RequiresConfirmation {
			t.Fatalf("step %s should require confirmation", step.ToolName)
		}
	}

	req, err := svc.GetRequest(ctx, resp.RequestID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if req.Status != domain.RequestStatusAwaitingConfirmation {
		t.Fatalf("request status = %s, want AWAITING_CONFIRMATION", req.Status)
	}

	// A second message is rejected while the plan is pending.
	second, err := svc.ProcessMessage(ctx, "sess-1", &domain.ProcessMessageRequest{Content: "hello"})
	if err != nil {
		t.Fatalf("second ProcessMessage failed: %v", err)
	}
	if second.Success || second.ErrorCode != domain.ErrCodePlanPending {
		t.Fatalf("expected PLAN_PENDING_CONFIRMATION, got success=%v code=%q", second.Success, second.ErrorCode)
	}
}

func TestConfirmPlanExecutesSteps(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedPodcast(svc, "sess-1")

	parked, err := svc.ProcessMessage(ctx, "sess-1", &domain.ProcessMessageRequest{Content: "make highlight clips"})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if parked.Plan == nil {
		t.Fatal("expected a parked plan")
	}

	resp, err := svc.ConfirmPlan(ctx, "sess-1", parked.Plan.PlanID)
	if err != nil {
		t.Fatalf("ConfirmPlan failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("plan execution failed with %q: %s", resp.ErrorCode, resp.Message)
	}
	if len(resp.ToolResults) != 3 {
		t.Fatalf("got %d tool results, want 3", len(resp.ToolResults))
	}
	for _, r := range resp.ToolResults {
		if !r.Success {
			t.Fatalf("tool failed: %s", r.Message)
		}
	}

	total := svc.docs.Get("sess-1").GetTotalDuration()
	if total < 40 || total > 80 {
		t.Fatalf("cut timeline is %.1fs, want roughly 60s", total)
	}

	req, err := svc.GetRequest(ctx, resp.RequestID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if req.Status != domain.RequestStatusCompleted {
		t.Fatalf("request status = %s, want COMPLETED", req.Status)
	}
	if pending, _ := svc.store.GetPendingPlan(ctx, "sess-1"); pending != nil {
		t.Fatal("plan should no longer be pending after confirmation")
	}

	types := eventTypes(t, svc, resp.RequestID)
	if types[domain.EventTypeToolStarted] == 0 || types[domain.EventTypeToolCompleted] == 0 {
		t.Fatalf("expected tool events, got %v", types)
	}
	if types[domain.EventTypeToolProgress] == 0 {
		t.Fatalf("expected tool_progress events from the scoring step, got %v", types)
	}
}

func TestConfirmPlanRecoversFromMissingCaptions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedPodcast(svc, "sess-1")

	parked, err := svc.ProcessMessage(ctx, "sess-1", &domain.ProcessMessageRequest{Content: "remove the filler words"})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if parked.Plan == nil || len(parked.Plan.Steps) != 1 {
		t.Fatalf("expected a one-step plan, got %+v", parked.Plan)
	}

	// No caption track exists, so the first attempt fails with NO_TRANSCRIPT
	// and recovery bootstraps captions before retrying.
	resp, err := svc.ConfirmPlan(ctx, "sess-1", parked.Plan.PlanID)
	if err != nil {
		t.Fatalf("ConfirmPlan failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected recovery to succeed, got %q: %s", resp.ErrorCode, resp.Message)
	}

	types := eventTypes(t, svc, resp.RequestID)
	for _, want := range []domain.EventType{
		domain.EventTypeRecoveryStarted,
		domain.EventTypeRecoveryPrerequisiteStarted,
		domain.EventTypeRecoveryPrerequisiteCompleted,
		domain.EventTypeRecoveryRetrying,
	} {
		if types[want] == 0 {
			t.Fatalf("missing %s event, got %v", want, types)
		}
	}

	for _, track := range svc.docs.Get("sess-1").GetTracks() {
		if track.Kind != domain.TrackKindCaption {
			continue
		}
		for _, e := range track.Elements {
			if strings.Contains(strings.ToLower(e.Text), "um ") {
				t.Fatalf("caption still contains filler: %q", e.Text)
			}
		}
		return
	}
	t.Fatal("recovery should have created a caption track")
}

func TestCancelPlan(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedPodcast(svc, "sess-1")

	parked, err := svc.ProcessMessage(ctx, "sess-1", &domain.ProcessMessageRequest{Content: "make highlight clips"})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	if _, err := svc.CancelPlan(ctx, "sess-1", parked.Plan.PlanID); err != nil {
		t.Fatalf("CancelPlan failed: %v", err)
	}

	req, err := svc.GetRequest(ctx, parked.RequestID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if req.Status != domain.RequestStatusCancelled {
		t.Fatalf("request status = %s, want CANCELLED", req.Status)
	}

	// Double cancel and late confirm both lose the race.
	if _, err := svc.CancelPlan(ctx, "sess-1", parked.Plan.PlanID); err != ErrPlanNotPending {
		t.Fatalf("second cancel: got %v, want ErrPlanNotPending", err)
	}
	if _, err := svc.ConfirmPlan(ctx, "sess-1", parked.Plan.PlanID); err != ErrPlanNotPending {
		t.Fatalf("late confirm: got %v, want ErrPlanNotPending", err)
	}

	// The session is free again.
	resp, err := svc.ProcessMessage(ctx, "sess-1", &domain.ProcessMessageRequest{Content: "hello"})
	if err != nil {
		t.Fatalf("ProcessMessage after cancel failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected the session to accept messages again, got %q", resp.ErrorCode)
	}
}

func TestCancelRequestDiscardsParkedPlan(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedPodcast(svc, "sess-1")

	parked, err := svc.ProcessMessage(ctx, "sess-1", &domain.ProcessMessageRequest{Content: "make highlight clips"})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	if err := svc.CancelRequest(ctx, parked.RequestID); err != nil {
		t.Fatalf("CancelRequest failed: %v", err)
	}

	req, err := svc.GetRequest(ctx, parked.RequestID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if req.Status != domain.RequestStatusCancelled {
		t.Fatalf("request status = %s, want CANCELLED", req.Status)
	}
	if pending, _ := svc.store.GetPendingPlan(ctx, "sess-1"); pending != nil {
		t.Fatal("pending plan should be discarded with its request")
	}
}

func TestUpdateAndRemovePlanSteps(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedPodcast(svc, "sess-w")

	parked, err := svc.RunWorkflow(ctx, "sess-w", "podcast-to-clips", nil)
	if err != nil {
		t.Fatalf("RunWorkflow failed: %v", err)
	}
	if parked.Plan == nil {
		t.Fatalf("expected the workflow to park on confirmation, got %q", parked.Message)
	}
	planID := parked.Plan.PlanID

	// Arguments violating the tool schema are rejected before any write.
	if _, err := svc.UpdatePlanStep(ctx, "sess-w", planID, "generate-plan", map[string]any{"targetDuration": 0.5}); err == nil {
		t.Fatal("expected a schema violation for targetDuration 0.5")
	}

	updated, err := svc.UpdatePlanStep(ctx, "sess-w", planID, "generate-plan", map[string]any{
		"videoAssetId":   "timeline",
		"targetDuration": 45.0,
		"tolerance":      0.2,
	})
	if err != nil {
		t.Fatalf("UpdatePlanStep failed: %v", err)
	}
	if got := updated.Step("generate-plan").Arguments["targetDuration"]; got != 45.0 {
		t.Fatalf("targetDuration = %v, want 45", got)
	}

	// A step others depend on cannot be removed.
	if _, err := svc.RemovePlanStep(ctx, "sess-w", planID, "apply-cut"); err == nil {
		t.Fatal("expected removal of apply-cut to be rejected")
	}

	trimmed, err := svc.RemovePlanStep(ctx, "sess-w", planID, "cleanup-captions")
	if err != nil {
		t.Fatalf("RemovePlanStep failed: %v", err)
	}
	if len(trimmed.Steps) != 5 {
		t.Fatalf("plan has %d steps after removal, want 5", len(trimmed.Steps))
	}

	stored, err := svc.store.GetPlan(ctx, planID)
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if len(stored.Steps) != 5 || stored.Step("generate-plan").Arguments["targetDuration"] != 45.0 {
		t.Fatalf("edits were not persisted: %+v", stored.Steps)
	}
}

func TestRunWorkflowRejectsInvalidOverrides(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	resp, err := svc.RunWorkflow(ctx, "sess-w", "podcast-to-clips", &domain.RunWorkflowRequest{
		StepOverrides: []domain.StepOverride{
			{StepID: "generate-plan", Arguments: map[string]any{"targetDuration": 999.0}},
		},
	})
	if err != nil {
		t.Fatalf("RunWorkflow failed: %v", err)
	}
	if resp.Success || resp.ErrorCode != domain.ErrCodeValidationError {
		t.Fatalf("expected VALIDATION_ERROR, got success=%v code=%q", resp.Success, resp.ErrorCode)
	}
	if !strings.Contains(resp.Message, "targetDuration") {
		t.Fatalf("error message should name the bad field: %s", resp.Message)
	}
}

func TestRunWorkflowWithQualityLoopPasses(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedPodcast(svc, "sess-w")

	parked, err := svc.RunWorkflow(ctx, "sess-w", "podcast-to-clips", &domain.RunWorkflowRequest{
		QualityLoop: &domain.QualityLoopConfig{Enabled: true, MaxIterations: 2},
	})
	if err != nil {
		t.Fatalf("RunWorkflow failed: %v", err)
	}
	if parked.Plan == nil {
		t.Fatalf("expected confirmation gate, got %q", parked.Message)
	}

	resp, err := svc.ConfirmPlan(ctx, "sess-w", parked.Plan.PlanID)
	if err != nil {
		t.Fatalf("ConfirmPlan failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("workflow failed with %q: %s", resp.ErrorCode, resp.Message)
	}
	if resp.QualityReport == nil || !resp.QualityReport.Passed {
		t.Fatalf("expected a passing quality report, got %+v", resp.QualityReport)
	}

	reports, err := svc.store.GetQualityReports(ctx, resp.RequestID)
	if err != nil {
		t.Fatalf("GetQualityReports failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d quality reports, want 1 (passed on first iteration)", len(reports))
	}
}

func TestRunWorkflowQualityTargetNotMet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedPodcast(svc, "sess-w")

	// The plan step cuts to ~60s but the quality target demands ~20s, so the
	// duration metric zeroes out and the composite stays under the raised
	// threshold on every iteration.
	threshold := 0.95
	target := 20.0
	tolerance := 0.05
	parked, err := svc.RunWorkflow(ctx, "sess-w", "podcast-to-clips", &domain.RunWorkflowRequest{
		QualityLoop: &domain.QualityLoopConfig{
			Enabled:        true,
			MaxIterations:  2,
			PassThreshold:  &threshold,
			TargetDuration: &target,
			Tolerance:      &tolerance,
		},
	})
	if err != nil {
		t.Fatalf("RunWorkflow failed: %v", err)
	}
	if parked.Plan == nil {
		t.Fatalf("expected confirmation gate, got %q", parked.Message)
	}

	resp, err := svc.ConfirmPlan(ctx, "sess-w", parked.Plan.PlanID)
	if err != nil {
		t.Fatalf("ConfirmPlan failed: %v", err)
	}
	if resp.Success || resp.ErrorCode != domain.ErrCodeQualityTargetNotMet {
		t.Fatalf("expected QUALITY_TARGET_NOT_MET, got success=%v code=%q", resp.Success, resp.ErrorCode)
	}
	if resp.QualityReport == nil || resp.QualityReport.Passed {
		t.Fatalf("expected a failing quality report, got %+v", resp.QualityReport)
	}

	reports, err := svc.store.GetQualityReports(ctx, resp.RequestID)
	if err != nil {
		t.Fatalf("GetQualityReports failed: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d quality reports, want one per iteration", len(reports))
	}

	req, err := svc.GetRequest(ctx, resp.RequestID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if req.Status != domain.RequestStatusFailed {
		t.Fatalf("request status = %s, want FAILED", req.Status)
	}
}

func TestListWorkflows(t *testing.T) {
	svc := newTestService(t)
	names := map[string]bool{}
	for _, w := range svc.ListWorkflows() {
		names[w.Name] = true
	}
	if !names["podcast-to-clips"] || !names["caption-cleanup"] {
		t.Fatalf("missing builtin workflows, got %v", names)
	}
}

func TestOrderStepsRejectsCycles(t *testing.T) {
	_, err := orderSteps([]domain.PlanStep{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	})
	if err == nil {
		t.Fatal("expected a cycle error")
	}

	_, err = orderSteps([]domain.PlanStep{{ID: "a", DependsOn: []string{"ghost"}}})
	if err == nil {
		t.Fatal("expected an unknown-dependency error")
	}
}

func TestRecoveryHandlesPaddedErrorCodes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	attempts := 0
	svc.registry.MustRegister(tools.Definition{
		Name:        "reindex_assets",
		Description: "Rebuild the asset index.",
		Operation:   domain.OperationWrite,
		Parameters: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{},
			"additionalProperties": false,
		},
		Execute: func(ctx context.Context, doc editor.DocumentMutator, args map[string]any) domain.ToolResult {
			attempts++
			if attempts == 1 {
				return domain.ToolResult{
					Success: false,
					Message: "asset index is out of date",
					Data:    map[string]any{"errorCode": " ASSET_INDEX_STALE \n"},
				}
			}
			return domain.ToolResult{Success: true, Message: "asset index rebuilt"}
		},
	})
	svc.recovery.Register("ASSET_INDEX_STALE", recovery.Policy{
		ID:         "asset-index-rebuild",
		MaxRetries: 1,
	})

	if _, err := svc.store.GetOrCreateSession(ctx, "sess-1", "default_user"); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := svc.store.CreateRequest(ctx, &domain.Request{
		RequestID: "req_padded",
		SessionID: "sess-1",
		Kind:      "message",
		Status:    domain.RequestStatusRunning,
		StartedAt: time.Now(),
	}); err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	doc := svc.docs.Get("sess-1")
	res := svc.executeWithRecovery(ctx, doc, "sess-1", "req_padded", domain.ToolCall{
		ID: "call_reindex", Name: "reindex_assets", Arguments: map[string]any{},
	})
	if !res.Success {
		t.Fatalf("expected a retry despite the padded error code, got %q: %s", res.ErrorCode(), res.Message)
	}
	if attempts != 2 {
		t.Fatalf("tool ran %d times, want 2", attempts)
	}

	types := eventTypes(t, svc, "req_padded")
	if types[domain.EventTypeRecoveryRetrying] != 1 {
		t.Fatalf("expected one recovery_retrying event, got %v", types)
	}
}

type captureProvider struct {
	last *llm.ChatRequest
}

func (c *captureProvider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	c.last = req
	return &llm.ChatResponse{Content: "ok", FinishReason: "stop"}, nil
}

func (c *captureProvider) IsAvailable(ctx context.Context) bool { return true }

func TestChatTurnCarriesSystemPrompt(t *testing.T) {
	svc := newTestService(t)
	provider := &captureProvider{}
	svc.provider = provider

	resp, err := svc.ProcessMessage(context.Background(), "sess-1", &domain.ProcessMessageRequest{Content: "hello"})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %q: %s", resp.ErrorCode, resp.Message)
	}

	if provider.last == nil {
		t.Fatal("provider was never called")
	}
	if provider.last.SystemPrompt == "" {
		t.Fatal("chat request is missing the system prompt")
	}
	if len(provider.last.Tools) == 0 {
		t.Fatal("chat request is missing the tool surface")
	}
}
