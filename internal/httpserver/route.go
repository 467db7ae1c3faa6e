package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	authmw "github.com/Skotchmaster/eventbook/internal/middleware/auth"
	"github.com/Skotchmaster/eventbook/internal/service"
)

const (
	IdentityPath     = "/api/v1/identity"
	PageElementsPath = "/api/v1/pageelements"
)

type Deps struct {
	IdentityHandler    *IdentityHTTP
	PageElementHandler *PageElementHTTP
	Auth               *authmw.BearerAuth
	// Ready backs /health/ready; nil means always ready.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	if e.Validator == nil {
		e.Validator = NewRequestValidator()
	}

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})

	identity := e.Group(IdentityPath)
	identity.POST("/register", d.IdentityHandler.Register)
	identity.POST("/login", d.IdentityHandler.Login)
	identity.POST("/refresh", d.IdentityHandler.Refresh)
	identity.POST("/logout", d.IdentityHandler.Logout, d.Auth.RequireAuth)

	elements := e.Group(PageElementsPath)
	elements.GET("", d.PageElementHandler.GetAll)
	elements.GET("/search", d.PageElementHandler.Search)
	elements.GET("/:"+pageElementIDParam, d.PageElementHandler.Get)

	elements.POST("", d.PageElementHandler.Create, d.Auth.RequireAuth)
	elements.PUT("/:"+pageElementIDParam, d.PageElementHandler.Update, d.Auth.RequireAuth)
	elements.DELETE("/:"+pageElementIDParam, d.PageElementHandler.Delete,
		d.Auth.RequireAuth, authmw.RequireClaim(service.ClaimDeleteEnabled, "true"))
}
