package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// GetRequest retrieves one request.
// GET /v1/requests/:request_id
func (h *Handler) GetRequest(c echo.Context) error {
	requestID := c.Param("request_id")

	req, err := h.service.GetRequest(c.Request().Context(), requestID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// GetRequestEvents retrieves the telemetry stream of a request.
// GET /v1/requests/:request_id/events?after_ts&types&limit
func (h *Handler) GetRequestEvents(c echo.Context) error {
	requestID := c.Param("request_id")

	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	var afterTs int64
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}
	var types []string
	if raw := c.QueryParam("types"); raw != "" {
		types = strings.Split(raw, ",")
	}

	events, err := h.service.GetEvents(c.Request().Context(), requestID, afterTs, types, limit)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

// CancelRequest cancels an in-flight request cooperatively.
// POST /v1/requests/:request_id/cancel
func (h *Handler) CancelRequest(c echo.Context) error {
	requestID := c.Param("request_id")

	if err := h.service.CancelRequest(c.Request().Context(), requestID); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelling"})
}
