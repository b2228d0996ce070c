package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/middleware"
)

type Handler struct {
	svc     *Service
	grants  auth.GrantChecker
	limiter *middleware.RateLimiter
}

func NewHandler(svc *Service, grants auth.GrantChecker, limiter *middleware.RateLimiter) *Handler {
	return &Handler{svc: svc, grants: grants, limiter: limiter}
}

// RegisterRoutes mounts v1/auth. Login and MFA verification are public and
// use the auth throttle; the account endpoints require authn.
func (h *Handler) RegisterRoutes(v1 *echo.Group, authn echo.MiddlewareFunc) {
	g := v1.Group("/auth")
	login := h.limiter.Throttle("auth")
	api := h.limiter.Throttle("api")

	g.POST("/login", h.Login, login)
	g.POST("/mfa/verify", h.VerifyMFA, login)

	g.GET("/me", h.Me, authn, api)
	g.GET("/devices", h.ListDevices, authn, api)
	g.DELETE("/devices/:id", h.RevokeDevice, authn, api)
}

func clientInfo(c echo.Context) ClientInfo {
	return ClientInfo{IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()}
}

func authError(code, message string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusUnauthorized, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "email and password are required")
	}
	if req.DeviceID == "" {
		req.DeviceID = c.Request().Header.Get("X-Device-ID")
	}

	res, err := h.svc.Login(c.Request().Context(), req, clientInfo(c))
	if errors.Is(err, ErrInvalidCredentials) {
		return authError("INVALID_CREDENTIALS", "The provided credentials are incorrect")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) VerifyMFA(c echo.Context) error {
	var req VerifyMFARequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.MFAToken == "" || req.Code == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "mfa_token and code are required")
	}
	if req.DeviceID == "" {
		req.DeviceID = c.Request().Header.Get("X-Device-ID")
	}

	res, err := h.svc.VerifyMFA(c.Request().Context(), req, clientInfo(c))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, res)
	case errors.Is(err, auth.ErrChallengeNotFound), errors.Is(err, auth.ErrMFAExpired):
		return authError("MFA_EXPIRED", "The verification code has expired. Please sign in again.")
	case errors.Is(err, auth.ErrMFAInvalidCode):
		return authError("MFA_INVALID_CODE", "The verification code is incorrect")
	case errors.Is(err, auth.ErrMFATooManyAttempts):
		return authError("MFA_TOO_MANY_ATTEMPTS", "Too many incorrect codes. Please sign in again.")
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrNotFound):
		return authError("INVALID_CREDENTIALS", "The provided credentials are incorrect")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "verification failed").SetInternal(err)
}

func (h *Handler) Me(c echo.Context) error {
	p := auth.FromEcho(c)
	if p == nil {
		return auth.Unauthenticated()
	}
	u, err := h.svc.GetUser(c.Request().Context(), p.UserID)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "load user").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"user":        u,
		"permissions": h.grants.Effective(p, auth.GrantPermission),
	})
}

func (h *Handler) ListDevices(c echo.Context) error {
	p := auth.FromEcho(c)
	if p == nil {
		return auth.Unauthenticated()
	}
	devices, err := h.svc.ListDevices(c.Request().Context(), p.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list devices").SetInternal(err)
	}
	if devices == nil {
		devices = []*TrustedDevice{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": devices})
}

func (h *Handler) RevokeDevice(c echo.Context) error {
	p := auth.FromEcho(c)
	if p == nil {
		return auth.Unauthenticated()
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	err = h.svc.RevokeDevice(c.Request().Context(), p.UserID, id)
	if errors.Is(err, ErrDeviceNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "device not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "revoke device").SetInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}
