package referral

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
	g := v1.Group("/referrals", authn)
	api := h.limiter.Throttle("api")
	view := auth.RequirePermission(h.grants, auth.PermReferralsView)
	manage := auth.RequirePermission(h.grants, auth.PermReferralsManage)

	g.GET("", h.List, api, view)
	g.GET("/:id", h.Get, api, view)
	g.POST("", h.Create, api, manage)
	g.POST("/:id/assign", h.Assign, api, manage)
	g.POST("/:id/status", h.UpdateStatus, api, manage)
	g.POST("/:id/appointments", h.ScheduleAppointment, api, manage)
}

func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "VALIDATION_FAILED",
			"message": "The given data was invalid",
			"errors":  ve.Problems,
		})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "referral not found")
	case errors.Is(err, ErrAssigneeNotFound):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrNotEligible), errors.Is(err, ErrOpenReferralExists),
		errors.Is(err, ErrFacilityNotAccepting), errors.Is(err, ErrAppointmentNotAllowed),
		errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "referral operation failed").SetInternal(err)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) List(c echo.Context) error {
	f := Filter{Status: c.QueryParam("status"), Priority: c.QueryParam("priority")}
	if v := c.QueryParam("assigned_to"); v != "" {
		var id uuid.UUID
		if v == "me" {
			id = auth.FromEcho(c).UserID
		} else {
			parsed, err := uuid.Parse(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "assigned_to must be a uuid or \"me\"")
			}
			id = parsed
		}
		f.AssignedTo = &id
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.Create(c.Request().Context(), auth.FromEcho(c).UserID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in AssignInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.Assign(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in StatusInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.UpdateStatus(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ScheduleAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in AppointmentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	appt, err := h.svc.ScheduleAppointment(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}
