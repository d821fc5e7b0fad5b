package api

import (
	echo "github.com/labstack/echo/v5"

	"github.com/weightwave/taskcast/pkg/taskauth"
	"github.com/weightwave/taskcast/pkg/taskcast"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

const authContextKey = "taskcast_auth"

// requireScope authenticates the request's bearer token and rejects it unless the resulting
// AuthContext grants scope for the request's :id path parameter (empty string if the route has
// none, which Allow treats as "no task-id restriction applies").
func requireScope(authorizer *taskauth.Authorizer, scope taskcast.PermissionScope) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			authCtx, err := authorizer.Authenticate(c.Request().Header.Get("Authorization"))
			if err != nil {
				return mapEngineError(err)
			}
			taskID := c.Param("id")
			if !taskauth.Allow(authCtx, scope, taskID) {
				return mapEngineError(taskcast.Forbidden("token does not grant " + string(scope)))
			}
			c.Set(authContextKey, authCtx)
			return next(c)
		}
	}
}
