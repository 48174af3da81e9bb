// Package v1 provides the HTTP handlers of the agent engine API.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cutline/orchestrator/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Conversation
	e.POST("/v1/sessions/:session_id/messages", h.ProcessMessage)
	e.GET("/v1/sessions/:session_id/messages", h.GetSessionMessages)

	// Pending plan of a session
	e.GET("/v1/sessions/:session_id/plan", h.GetPendingPlan)
	e.POST("/v1/sessions/:session_id/plan/confirm", h.ConfirmPlan)
	e.POST("/v1/sessions/:session_id/plan/cancel", h.CancelPlan)
	e.PATCH("/v1/sessions/:session_id/plan/steps/:step_id", h.UpdatePlanStep)
	e.DELETE("/v1/sessions/:session_id/plan/steps/:step_id", h.RemovePlanStep)

	// Workflows
	e.GET("/v1/workflows", h.ListWorkflows)
	e.POST("/v1/sessions/:session_id/workflows/:name/run", h.RunWorkflow)

	// Requests
	e.GET("/v1/requests/:request_id", h.GetRequest)
	e.GET("/v1/requests/:request_id/events", h.GetRequestEvents)
	e.POST("/v1/requests/:request_id/cancel", h.CancelRequest)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// errorJSON maps service errors to HTTP status codes.
func errorJSON(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrSessionBusy):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrPlanNotPending):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidArguments):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
