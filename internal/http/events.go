package http

import (
	"encoding/json"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/doananhhung/livechat-sub002/internal/http/middleware"
	"github.com/doananhhung/livechat-sub002/internal/service/events"
)

type publishEventReq struct {
	Trigger string          `json:"trigger"`
	Payload json.RawMessage `json:"payload"`
}

// publishEventHandler is the direct (non-outbox) producer surface for
// lower-criticality events: the event is written straight to the bus
// and may be lost on broker failure.
func publishEventHandler(emitter *events.Emitter) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID, ok := middleware.ProjectIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req publishEventReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.Trigger = strings.TrimSpace(req.Trigger)
		if req.Trigger == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "trigger is required"})
		}
		if len(req.Payload) == 0 {
			req.Payload = json.RawMessage(`{}`)
		}

		if err := emitter.PublishDirect(c.Request().Context(), projectID, req.Trigger, req.Payload); err != nil {
			log.Errorf("direct publish failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "publish failed"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{"published": true, "trigger": req.Trigger})
	}
}
