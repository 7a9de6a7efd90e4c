package http

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/doananhhung/livechat-sub002/internal/http/middleware"
	"github.com/doananhhung/livechat-sub002/internal/model"
	"github.com/doananhhung/livechat-sub002/internal/service/subscriptions"
)

type createWebhookReq struct {
	URL           string   `json:"url"`
	EventTriggers []string `json:"event_triggers"`
	IsActive      *bool    `json:"is_active"`
}

type webhookResp struct {
	ID            string   `json:"id"`
	URL           string   `json:"url"`
	EventTriggers []string `json:"event_triggers"`
	IsActive      bool     `json:"is_active"`
	CreatedAt     string   `json:"created_at"`
	Secret        string   `json:"secret,omitempty"` // only on create
}

func toWebhookResp(sub model.Subscription, withSecret bool) webhookResp {
	r := webhookResp{
		ID:            sub.ID,
		URL:           sub.URL,
		EventTriggers: sub.EventTriggers,
		IsActive:      sub.IsActive,
		CreatedAt:     sub.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if withSecret {
		r.Secret = sub.Secret
	}
	return r
}

// createWebhookHandler registers a subscription. The signing secret is
// included in this response only; no later read returns it.
func createWebhookHandler(svc *subscriptions.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID, ok := middleware.ProjectIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req createWebhookReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		active := true
		if req.IsActive != nil {
			active = *req.IsActive
		}

		triggers := make([]string, 0, len(req.EventTriggers))
		for _, t := range req.EventTriggers {
			if t = strings.TrimSpace(t); t != "" {
				triggers = append(triggers, t)
			}
		}

		sub, err := svc.Create(c.Request().Context(), projectID, req.URL, triggers, active)
		if err != nil {
			if verr, ok := err.(*subscriptions.ValidationError); ok {
				return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": verr.Reason})
			}
			log.Errorf("create webhook failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusCreated, toWebhookResp(*sub, true))
	}
}

func listWebhooksHandler(svc *subscriptions.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID, ok := middleware.ProjectIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		subs, err := svc.List(c.Request().Context(), projectID)
		if err != nil {
			log.Errorf("list webhooks failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		out := make([]webhookResp, 0, len(subs))
		for _, s := range subs {
			out = append(out, toWebhookResp(s, false))
		}
		return c.JSON(http.StatusOK, map[string]any{"count": len(out), "results": out})
	}
}

func getWebhookHandler(svc *subscriptions.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID, ok := middleware.ProjectIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		sub, err := svc.Get(c.Request().Context(), c.Param("id"), projectID)
		if err != nil {
			log.Errorf("get webhook failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if sub == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		return c.JSON(http.StatusOK, toWebhookResp(*sub, false))
	}
}

func deleteWebhookHandler(svc *subscriptions.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID, ok := middleware.ProjectIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		deleted, err := svc.Delete(c.Request().Context(), c.Param("id"), projectID)
		if err != nil {
			log.Errorf("delete webhook failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if !deleted {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}
