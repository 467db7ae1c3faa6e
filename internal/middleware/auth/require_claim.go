package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/eventbook/internal/logging"
)

// RequireClaim must run after RequireAuth.
func RequireClaim(typ, value string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := Claims(c)
			if !ok || !claims.Has(typ, value) {
				logging.FromContext(c.Request().Context()).Warn("auth_forbidden",
					"status", 403, "reason", "missing claim", "claim", typ)
				return echo.NewHTTPError(http.StatusForbidden, "not enough rights")
			}
			return next(c)
		}
	}
}
