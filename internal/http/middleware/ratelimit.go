package middleware

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig config for Redis-based RPS limiter.
type RateLimitConfig struct {
	Redis     *redis.Client
	RPS       int           // requests per window per project
	KeyPrefix string        // e.g. "rl:proj:"
	Window    time.Duration // usually 1s
}

// RateLimitMiddleware applies a simple fixed-window per-project RPS limit.
// It expects project_id in echo.Context (set by ProjectAuthMiddleware).
func RateLimitMiddleware(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl:proj:"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			projectID, ok := ProjectIDFromCtx(c)
			if !ok || cfg.RPS <= 0 || cfg.Redis == nil {
				// no limit configured or redis missing (dev): allow
				return next(c)
			}

			// fixed-window key: rl:proj:{id}:{unix_sec}
			now := time.Now()
			key := cfg.KeyPrefix + projectID + ":" + strconv.FormatInt(now.Unix(), 10)

			pipe := cfg.Redis.Pipeline()
			cnt := pipe.Incr(c.Request().Context(), key)
			pipe.Expire(c.Request().Context(), key, cfg.Window*2)
			_, err := pipe.Exec(c.Request().Context())
			if err != nil {
				return next(c)
			}

			if cnt.Val() > int64(cfg.RPS) {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
			}
			return next(c)
		}
	}
}
