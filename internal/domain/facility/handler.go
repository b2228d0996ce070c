package facility

import (
	"errors"
	"net/http"
	"strconv"

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

// RegisterRoutes mounts the read-only facility directory under
// v1/facilities.
func (h *Handler) RegisterRoutes(v1 *echo.Group, authn echo.MiddlewareFunc) {
	g := v1.Group("/facilities", authn)
	public := h.limiter.Throttle("public")
	view := auth.RequirePermission(h.grants, auth.PermFacilitiesView)

	g.GET("", h.List, public, view)
	g.GET("/:id", h.Get, public, view)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{FacilityType: c.QueryParam("type")}

	if v := c.QueryParam("accepts_referrals"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "accepts_referrals must be a boolean")
		}
		f.AcceptsReferrals = &b
	}

	lat, lng := c.QueryParam("lat"), c.QueryParam("lng")
	if lat != "" || lng != "" {
		la, errLat := strconv.ParseFloat(lat, 64)
		lo, errLng := strconv.ParseFloat(lng, 64)
		p := Point{Lat: la, Lng: lo}
		if errLat != nil || errLng != nil || !p.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "lat and lng must both be valid coordinates")
		}
		f.Origin = &p
	}

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list facilities").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	f, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "facility not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "load facility").SetInternal(err)
	}
	return c.JSON(http.StatusOK, f)
}
