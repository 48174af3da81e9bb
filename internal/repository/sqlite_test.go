package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cutline/orchestrator/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestSQLiteStoreSessionAndMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	session := &domain.Session{
		SessionID: "s1",
		UserID:    "u1",
		CreatedAt: time.Now(),
		Metadata:  json.RawMessage(`{"tier":"pro"}`),
	}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	gotSession, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if gotSession == nil || gotSession.UserID != "u1" {
		t.Fatalf("unexpected session: %+v", gotSession)
	}

	base := time.Now()
	for i, m := range []domain.Message{
		{MessageID: "m1", Role: "user", Content: "caption this"},
		{MessageID: "m2", Role: "assistant", Content: "", ToolCallID: "call_1", ToolName: "generate_captions"},
		{MessageID: "m3", Role: "tool", Content: "generated 4 captions", ToolCallID: "call_1", ToolName: "generate_captions"},
		{MessageID: "m4", Role: "assistant", Content: "done"},
	} {
		m.SessionID = "s1"
		m.RequestID = "req_1"
		m.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := store.CreateMessage(ctx, &m); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	messages, err := store.GetRecentMessages(ctx, "s1", 3)
	if err != nil {
		t.Fatalf("GetRecentMessages failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	// Window keeps the newest, returned oldest-first.
	if messages[0].MessageID != "m2" || messages[2].MessageID != "m4" {
		t.Fatalf("window order wrong: %v, %v", messages[0].MessageID, messages[2].MessageID)
	}
	if messages[1].ToolCallID != "call_1" || messages[1].ToolName != "generate_captions" {
		t.Fatalf("tool linkage lost: %+v", messages[1])
	}
}

func TestSQLiteStoreRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if _, err := store.GetOrCreateSession(ctx, "s1", "u1"); err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}

	req := &domain.Request{
		RequestID: "req_1",
		SessionID: "s1",
		Kind:      "message",
		Status:    domain.RequestStatusCreated,
		StartedAt: time.Now(),
	}
	if err := store.CreateRequest(ctx, req); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	if err := store.UpdateRequestStatus(ctx, "req_1", domain.RequestStatusRunning); err != nil {
		t.Fatalf("UpdateRequestStatus failed: %v", err)
	}

	active, err := store.GetActiveRequest(ctx, "s1")
	if err != nil {
		t.Fatalf("GetActiveRequest failed: %v", err)
	}
	if active == nil || active.RequestID != "req_1" {
		t.Fatalf("expected req_1 active, got %+v", active)
	}

	errData, _ := json.Marshal(map[string]string{"errorCode": domain.ErrCodeQualityTargetNotMet})
	if err := store.UpdateRequestCompleted(ctx, "req_1", domain.RequestStatusFailed, errData); err != nil {
		t.Fatalf("UpdateRequestCompleted failed: %v", err)
	}

	got, err := store.GetRequest(ctx, "req_1")
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if got.Status != domain.RequestStatusFailed || got.EndedAt == nil || got.Error == nil {
		t.Fatalf("terminal state not recorded: %+v", got)
	}

	active, err = store.GetActiveRequest(ctx, "s1")
	if err != nil {
		t.Fatalf("GetActiveRequest failed: %v", err)
	}
	if active != nil {
		t.Fatalf("terminal request must not be active: %+v", active)
	}
}

func TestSQLiteStorePlans(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if _, err := store.GetOrCreateSession(ctx, "s1", "u1"); err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	req := &domain.Request{RequestID: "req_1", SessionID: "s1", Kind: "message", Status: domain.RequestStatusRunning, StartedAt: time.Now()}
	if err := store.CreateRequest(ctx, req); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	plan := &domain.ExecutionPlan{
		PlanID:    "plan_1",
		RequestID: "req_1",
		SessionID: "s1",
		Steps: []domain.PlanStep{
			{ID: "step-1", ToolName: "apply_highlight_cut", Operation: domain.OperationWrite, RequiresConfirmation: true},
		},
		CreatedAt: time.Now(),
	}
	if err := store.SavePlan(ctx, plan); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}

	pending, err := store.GetPendingPlan(ctx, "s1")
	if err != nil {
		t.Fatalf("GetPendingPlan failed: %v", err)
	}
	if pending == nil || pending.PlanID != "plan_1" || len(pending.Steps) != 1 {
		t.Fatalf("unexpected pending plan: %+v", pending)
	}
	if !pending.Steps[0].RequiresConfirmation {
		t.Fatalf("step flags lost in round trip: %+v", pending.Steps[0])
	}

	pending.Steps[0].Arguments = map[string]any{"videoAssetId": "timeline"}
	if err := store.UpdatePlanSteps(ctx, "plan_1", pending.Steps); err != nil {
		t.Fatalf("UpdatePlanSteps failed: %v", err)
	}

	ok, err := store.UpdatePlanStatus(ctx, "plan_1", PlanStatusConfirmed)
	if err != nil || !ok {
		t.Fatalf("UpdatePlanStatus failed: ok=%v err=%v", ok, err)
	}

	// Confirming twice must fail: the plan is no longer pending.
	ok, err = store.UpdatePlanStatus(ctx, "plan_1", PlanStatusConfirmed)
	if err != nil {
		t.Fatalf("UpdatePlanStatus failed: %v", err)
	}
	if ok {
		t.Fatalf("confirmed plan must not be confirmable again")
	}

	if err := store.UpdatePlanSteps(ctx, "plan_1", pending.Steps); err == nil {
		t.Fatalf("editing a confirmed plan must fail")
	}

	pending, err = store.GetPendingPlan(ctx, "s1")
	if err != nil {
		t.Fatalf("GetPendingPlan failed: %v", err)
	}
	if pending != nil {
		t.Fatalf("no plan should be pending after confirmation: %+v", pending)
	}
}

func TestSQLiteStoreEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if _, err := store.GetOrCreateSession(ctx, "s1", "u1"); err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	req := &domain.Request{RequestID: "req_1", SessionID: "s1", Kind: "workflow", Status: domain.RequestStatusRunning, StartedAt: time.Now()}
	if err := store.CreateRequest(ctx, req); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	events := []domain.AgentEvent{
		{EventID: "e1", RequestID: "req_1", Ts: 100, Type: domain.EventTypeRequestStarted},
		{EventID: "e2", RequestID: "req_1", Ts: 200, Type: domain.EventTypeToolStarted, Payload: json.RawMessage(`{"tool_name":"score_highlights"}`)},
		{EventID: "e3", RequestID: "req_1", Ts: 300, Type: domain.EventTypeToolCompleted},
		{EventID: "e4", RequestID: "req_1", Ts: 400, Type: domain.EventTypeRequestCompleted},
	}
	for i := range events {
		if err := store.AppendEvent(ctx, &events[i]); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	got, err := store.GetEvents(ctx, "req_1", 0, nil, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(got) != 4 || got[0].EventID != "e1" || got[3].EventID != "e4" {
		t.Fatalf("event order wrong: %+v", got)
	}

	got, err = store.GetEvents(ctx, "req_1", 150, []string{string(domain.EventTypeToolStarted)}, 10)
	if err != nil {
		t.Fatalf("GetEvents with filter failed: %v", err)
	}
	if len(got) != 1 || got[0].EventID != "e2" {
		t.Fatalf("event filter wrong: %+v", got)
	}
	if got[0].Payload == nil {
		t.Fatalf("payload lost in round trip")
	}
}

func TestSQLiteStoreQualityReports(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if _, err := store.GetOrCreateSession(ctx, "s1", "u1"); err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	req := &domain.Request{RequestID: "req_1", SessionID: "s1", Kind: "workflow", Status: domain.RequestStatusRunning, StartedAt: time.Now()}
	if err := store.CreateRequest(ctx, req); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	first := &domain.QualityReport{CompositeScore: 0.61, Passed: false, Reasons: []string{"duration off target"}}
	second := &domain.QualityReport{CompositeScore: 0.82, Passed: true}
	if err := store.SaveQualityReport(ctx, "req_1", 1, first); err != nil {
		t.Fatalf("SaveQualityReport failed: %v", err)
	}
	if err := store.SaveQualityReport(ctx, "req_1", 2, second); err != nil {
		t.Fatalf("SaveQualityReport failed: %v", err)
	}

	reports, err := store.GetQualityReports(ctx, "req_1")
	if err != nil {
		t.Fatalf("GetQualityReports failed: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Passed || !reports[1].Passed {
		t.Fatalf("iteration order wrong: %+v", reports)
	}
	if len(reports[0].Reasons) != 1 {
		t.Fatalf("reasons lost in round trip: %+v", reports[0])
	}
}
