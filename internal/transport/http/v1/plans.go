package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cutline/orchestrator/internal/domain"
)

// GetPendingPlan returns the session's plan awaiting confirmation.
// GET /v1/sessions/:session_id/plan
func (h *Handler) GetPendingPlan(c echo.Context) error {
	sessionID := c.Param("session_id")

	plan, err := h.service.PendingPlan(c.Request().Context(), sessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	if plan == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no pending plan"})
	}
	return c.JSON(http.StatusOK, plan)
}

// ConfirmPlan confirms and executes the session's pending plan.
// POST /v1/sessions/:session_id/plan/confirm
func (h *Handler) ConfirmPlan(c echo.Context) error {
	sessionID := c.Param("session_id")

	plan, err := h.service.PendingPlan(c.Request().Context(), sessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	if plan == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no pending plan"})
	}

	resp, err := h.service.ConfirmPlan(c.Request().Context(), sessionID, plan.PlanID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// CancelPlan discards the session's pending plan.
// POST /v1/sessions/:session_id/plan/cancel
func (h *Handler) CancelPlan(c echo.Context) error {
	sessionID := c.Param("session_id")

	plan, err := h.service.PendingPlan(c.Request().Context(), sessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	if plan == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no pending plan"})
	}

	resp, err := h.service.CancelPlan(c.Request().Context(), sessionID, plan.PlanID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// UpdatePlanStep edits the arguments of one pending plan step.
// PATCH /v1/sessions/:session_id/plan/steps/:step_id
func (h *Handler) UpdatePlanStep(c echo.Context) error {
	sessionID := c.Param("session_id")
	stepID := c.Param("step_id")

	var body domain.UpdatePlanStepRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	plan, err := h.service.PendingPlan(c.Request().Context(), sessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	if plan == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no pending plan"})
	}

	updated, err := h.service.UpdatePlanStep(c.Request().Context(), sessionID, plan.PlanID, stepID, body.Arguments)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// RemovePlanStep removes one step from the pending plan.
// DELETE /v1/sessions/:session_id/plan/steps/:step_id
func (h *Handler) RemovePlanStep(c echo.Context) error {
	sessionID := c.Param("session_id")
	stepID := c.Param("step_id")

	plan, err := h.service.PendingPlan(c.Request().Context(), sessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	if plan == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no pending plan"})
	}

	updated, err := h.service.RemovePlanStep(c.Request().Context(), sessionID, plan.PlanID, stepID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}
