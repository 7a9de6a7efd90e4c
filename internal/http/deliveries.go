package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/doananhhung/livechat-sub002/internal/http/middleware"
	"github.com/doananhhung/livechat-sub002/internal/model"
	"github.com/doananhhung/livechat-sub002/internal/repository"
)

type deliveryResp struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"subscription_id"`
	EventID        string          `json:"event_id"`
	Status         string          `json:"status"`
	RequestPayload json.RawMessage `json:"request_payload"`
	ResponseStatus *int            `json:"response_status"`
	Error          *string         `json:"error"`
	CreatedAt      string          `json:"created_at"`
}

// listDeliveriesHandler exposes the attempt ledger read-only to the
// owning tenant, newest first.
func listDeliveriesHandler(deliveries repository.DeliveriesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID, ok := middleware.ProjectIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		rows, err := deliveries.ListBySubscription(c.Request().Context(), c.Param("id"), projectID, limit, offset)
		if err != nil {
			log.Errorf("list deliveries failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		out := make([]deliveryResp, 0, len(rows))
		for _, d := range rows {
			out = append(out, toDeliveryResp(d))
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(out),
			"results": out,
		})
	}
}

func toDeliveryResp(d model.Delivery) deliveryResp {
	return deliveryResp{
		ID:             d.ID,
		SubscriptionID: d.SubscriptionID,
		EventID:        d.EventID,
		Status:         d.Status.String(),
		RequestPayload: json.RawMessage(d.RequestPayload),
		ResponseStatus: d.ResponseStatus,
		Error:          d.Error,
		CreatedAt:      d.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
