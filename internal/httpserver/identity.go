package httpserver

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/eventbook/internal/logging"
	authmw "github.com/Skotchmaster/eventbook/internal/middleware/auth"
	"github.com/Skotchmaster/eventbook/internal/service"
	"github.com/Skotchmaster/eventbook/internal/transport"
)

type IdentityHTTP struct {
	Svc *service.IdentityService
}

func authResponse(c echo.Context, res service.AuthenticationResult) error {
	if !res.Success {
		return c.JSON(http.StatusBadRequest, transport.AuthFailedResponse{Errors: res.Errors})
	}
	return c.JSON(http.StatusOK, transport.AuthSuccessResponse{
		Token:        res.Token,
		RefreshToken: res.RefreshToken,
	})
}

func (h *IdentityHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "identity.register")

	var req transport.UserRegistrationRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		l.Warn("register_error", "status", 400, "reason", "validation failed", "error", err)
		return c.JSON(http.StatusBadRequest, validationResponse(err))
	}

	res, err := h.Svc.Register(ctx, req.Email, req.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot register user", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot register user")
	}
	return authResponse(c, res)
}

func (h *IdentityHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "identity.login")

	var req transport.UserLoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		l.Warn("login_error", "status", 400, "reason", "validation failed", "error", err)
		return c.JSON(http.StatusBadRequest, validationResponse(err))
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		l.Error("login_error", "status", 500, "reason", "cannot log in", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot log in")
	}
	return authResponse(c, res)
}

func (h *IdentityHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "identity.refresh")

	var req transport.RefreshTokenRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("refresh_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		l.Warn("refresh_error", "status", 400, "reason", "validation failed", "error", err)
		return c.JSON(http.StatusBadRequest, validationResponse(err))
	}

	// an unparsable id can never be in the ledger
	refreshID, err := uuid.Parse(req.RefreshToken)
	if err != nil {
		refreshID = uuid.Nil
	}

	res, err := h.Svc.RefreshToken(ctx, req.Token, refreshID)
	if err != nil {
		l.Error("refresh_error", "status", 500, "reason", "cannot refresh token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot refresh token")
	}
	return authResponse(c, res)
}

func (h *IdentityHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "identity.logout")

	userID, ok := authmw.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	var req transport.LogoutRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("logout_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		l.Warn("logout_error", "status", 400, "reason", "validation failed", "error", err)
		return c.JSON(http.StatusBadRequest, validationResponse(err))
	}

	refreshID, err := uuid.Parse(req.RefreshToken)
	if err != nil {
		l.Warn("logout_error", "status", 400, "reason", "refresh token is not a uuid", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "refresh token is not a uuid")
	}

	if err := h.Svc.Logout(ctx, userID, refreshID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "refresh token not found")
		}
		l.Error("logout_error", "status", 500, "reason", "cannot invalidate refresh token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot log out")
	}

	l.Info("logout_success")
	return c.NoContent(http.StatusNoContent)
}
