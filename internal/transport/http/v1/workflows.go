package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cutline/orchestrator/internal/domain"
)

// ListWorkflows lists the available workflow templates.
// GET /v1/workflows
func (h *Handler) ListWorkflows(c echo.Context) error {
	return c.JSON(http.StatusOK, domain.ListWorkflowsResponse{
		Workflows: h.service.ListWorkflows(),
	})
}

// RunWorkflow starts a named workflow for a session.
// POST /v1/sessions/:session_id/workflows/:name/run
func (h *Handler) RunWorkflow(c echo.Context) error {
	sessionID := c.Param("session_id")
	name := c.Param("name")

	var body domain.RunWorkflowRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.RunWorkflow(c.Request().Context(), sessionID, name, &body)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}
