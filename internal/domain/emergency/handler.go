package emergency

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/middleware"
	"github.com/carelink/carelink/pkg/pagination"
)

type Handler struct {
	svc     *Service
	grants  auth.GrantChecker
	limiter *middleware.RateLimiter
}

func NewHandler(svc *Service, grants auth.GrantChecker, limiter *middleware.RateLimiter) *Handler {
	return &Handler{svc: svc, grants: grants, limiter: limiter}
}

func (h *Handler) RegisterRoutes(v1 *echo.Group, authn echo.MiddlewareFunc) {
	g := v1.Group("/emergency-alerts", authn)
	api := h.limiter.Throttle("api")
	view := auth.RequirePermission(h.grants, auth.PermAlertsView)

	g.GET("", h.ListActive, api, view)
	g.GET("/:id", h.Get, api, view)
	g.POST("", h.Create, api, auth.RequirePermission(h.grants, auth.PermAlertsCreate))
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Create(c.Request().Context(), auth.FromEcho(c).UserID, in)
	var ve *ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "VALIDATION_FAILED",
			"message": "The given data was invalid",
			"errors":  ve.Problems,
		})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "create alert").SetInternal(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListActive(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListActive(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list alerts").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "emergency alert not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "load alert").SetInternal(err)
	}
	return c.JSON(http.StatusOK, a)
}
