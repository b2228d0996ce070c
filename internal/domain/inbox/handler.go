package inbox

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/middleware"
	"github.com/carelink/carelink/internal/platform/notification"
	"github.com/carelink/carelink/pkg/pagination"
)

type Handler struct {
	svc     *Service
	limiter *middleware.RateLimiter
}

func NewHandler(svc *Service, limiter *middleware.RateLimiter) *Handler {
	return &Handler{svc: svc, limiter: limiter}
}

// RegisterRoutes needs only an authenticated principal; every query is
// scoped to the caller.
func (h *Handler) RegisterRoutes(v1 *echo.Group, authn echo.MiddlewareFunc) {
	g := v1.Group("/notifications", authn, h.limiter.Throttle("api"), requirePrincipal)
	g.GET("", h.List)
	g.GET("/unread-count", h.UnreadCount)
	g.POST("/read-all", h.MarkAllRead)
	g.POST("/:id/read", h.MarkRead)
}

func requirePrincipal(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if auth.FromEcho(c) == nil {
			return auth.Unauthenticated()
		}
		return next(c)
	}
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	unreadOnly, _ := strconv.ParseBool(c.QueryParam("unread"))
	page, err := h.svc.List(c.Request().Context(), auth.FromEcho(c).UserID, unreadOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list notifications").SetInternal(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) UnreadCount(c echo.Context) error {
	n, err := h.svc.UnreadCount(c.Request().Context(), auth.FromEcho(c).UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "count notifications").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"unread_count": n})
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	unread, err := h.svc.MarkRead(c.Request().Context(), auth.FromEcho(c).UserID, id)
	if errors.Is(err, notification.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "mark notification read").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"unread_count": unread})
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	res, err := h.svc.MarkAllRead(c.Request().Context(), auth.FromEcho(c).UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "mark notifications read").SetInternal(err)
	}
	return c.JSON(http.StatusOK, res)
}
