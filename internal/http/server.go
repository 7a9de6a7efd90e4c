package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/doananhhung/livechat-sub002/internal/config"
	"github.com/doananhhung/livechat-sub002/internal/http/middleware"
	"github.com/doananhhung/livechat-sub002/internal/kafka"
	"github.com/doananhhung/livechat-sub002/internal/metrics"
	"github.com/doananhhung/livechat-sub002/internal/repository"
	"github.com/doananhhung/livechat-sub002/internal/service/events"
	"github.com/doananhhung/livechat-sub002/internal/service/subscriptions"
	"github.com/doananhhung/livechat-sub002/internal/ssrf"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, pg *sqlx.DB, rds *redis.Client, producer *kafka.Producer) *Server {
	// repos
	projectsRepo := repository.NewProjectsRepository(pg)
	subsRepo := repository.NewSubscriptionsRepository(pg)
	deliveriesRepo := repository.NewDeliveriesRepository(pg)
	outboxRepo := repository.NewOutboxRepository()

	// services
	subsSvc := subscriptions.New(subsRepo, ssrf.NewValidator(cfg.Webhooks.TestMode))
	emitter := events.NewEmitter(outboxRepo, producer, cfg.Relay.Channel)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.ProjectAuthMiddleware(projectsRepo)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:     rds,
		RPS:       cfg.RateLimit.RPS,
		KeyPrefix: "rl:proj:",
		Window:    time.Second,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/webhooks", createWebhookHandler(subsSvc))
	v1.GET("/webhooks", listWebhooksHandler(subsSvc))
	v1.GET("/webhooks/:id", getWebhookHandler(subsSvc))
	v1.DELETE("/webhooks/:id", deleteWebhookHandler(subsSvc))
	v1.GET("/webhooks/:id/deliveries", listDeliveriesHandler(deliveriesRepo))
	v1.POST("/events", publishEventHandler(emitter))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
