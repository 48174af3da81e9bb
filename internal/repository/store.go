// Package store defines the storage interface and its SQLite implementation.
package store

import (
	"context"

	"github.com/cutline/orchestrator/internal/domain"
)

// Plan lifecycle states.
const (
	PlanStatusPending   = "PENDING"
	PlanStatusConfirmed = "CONFIRMED"
	PlanStatusCancelled = "CANCELLED"
)

// Store defines the interface for data persistence.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetOrCreateSession(ctx context.Context, sessionID, userID string) (*domain.Session, error)

	// Message operations
	CreateMessage(ctx context.Context, message *domain.Message) error
	GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)

	// Request operations
	CreateRequest(ctx context.Context, request *domain.Request) error
	GetRequest(ctx context.Context, requestID string) (*domain.Request, error)
	GetActiveRequest(ctx context.Context, sessionID string) (*domain.Request, error)
	UpdateRequestStatus(ctx context.Context, requestID string, status domain.RequestStatus) error
	UpdateRequestCompleted(ctx context.Context, requestID string, status domain.RequestStatus, errData []byte) error

	// Plan operations
	SavePlan(ctx context.Context, plan *domain.ExecutionPlan) error
	GetPlan(ctx context.Context, planID string) (*domain.ExecutionPlan, error)
	GetPendingPlan(ctx context.Context, sessionID string) (*domain.ExecutionPlan, error)
	UpdatePlanSteps(ctx context.Context, planID string, steps []domain.PlanStep) error
	UpdatePlanStatus(ctx context.Context, planID string, status string) (bool, error)

	// Event operations
	AppendEvent(ctx context.Context, event *domain.AgentEvent) error
	GetEvents(ctx context.Context, requestID string, afterTs int64, types []string, limit int) ([]domain.AgentEvent, error)

	// Quality report operations
	SaveQualityReport(ctx context.Context, requestID string, iteration int, report *domain.QualityReport) error
	GetQualityReports(ctx context.Context, requestID string) ([]domain.QualityReport, error)

	// Lifecycle
	Close() error
}
