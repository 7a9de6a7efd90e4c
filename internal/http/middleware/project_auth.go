package middleware

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/doananhhung/livechat-sub002/internal/repository"
)

// ProjectIDFromCtx extracts the authenticated project id set by ProjectAuthMiddleware.
func ProjectIDFromCtx(c echo.Context) (string, bool) {
	v := c.Get("project_id")
	id, ok := v.(string)
	return id, ok && id != ""
}

// ProjectAuthMiddleware authenticates requests using the X-API-Key
// header and stores the owning project id in context. Every route
// behind it is tenant-scoped.
func ProjectAuthMiddleware(projects repository.ProjectsRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			p, err := projects.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if p == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set("project_id", p.ID)
			return next(c)
		}
	}
}
