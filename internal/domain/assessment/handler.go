package assessment

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

// RegisterRoutes mounts the assessment endpoints under v1/assessments. authn
// authenticates the caller; throttles and permissions are set per route.
func (h *Handler) RegisterRoutes(v1 *echo.Group, authn echo.MiddlewareFunc) {
	g := v1.Group("/assessments", authn)
	perm := func(p string) echo.MiddlewareFunc { return auth.RequirePermission(h.grants, p) }
	api := h.limiter.Throttle("api")

	g.GET("", h.List, api, perm(auth.PermAssessmentsView))
	g.GET("/export", h.Export, h.limiter.Throttle("export"), perm(auth.PermAssessmentsExport))
	g.GET("/:id", h.Get, api, perm(auth.PermAssessmentsView))
	g.POST("", h.Create, h.limiter.Throttle("mobile"), perm(auth.PermAssessmentsCreate))
	g.POST("/bulk-validate", h.BulkValidate, h.limiter.Throttle("bulk"), perm(auth.PermAssessmentsValidate))

	review := perm(auth.PermAssessmentsValidate)
	g.POST("/:id/review", h.StartReview, api, review)
	g.POST("/:id/validate", h.Validate, api, review)
	g.POST("/:id/reject", h.Reject, api, review)
	g.POST("/:id/archive", h.Archive, api, review)
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
		return echo.NewHTTPError(http.StatusNotFound, "assessment not found")
	case errors.Is(err, ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, "an assessment with this external_id already exists")
	case errors.Is(err, ErrArchived):
		return echo.NewHTTPError(http.StatusConflict, "assessment is archived")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "assessment operation failed").SetInternal(err)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func filterFromQuery(c echo.Context) (Filter, error) {
	f := Filter{
		Status:    c.QueryParam("status"),
		RiskLevel: c.QueryParam("risk_level"),
	}
	if v := c.QueryParam("submitted_by"); v != "" {
		var id uuid.UUID
		if v == "me" {
			id = auth.FromEcho(c).UserID
		} else {
			parsed, err := uuid.Parse(v)
			if err != nil {
				return f, echo.NewHTTPError(http.StatusBadRequest, "submitted_by must be a uuid or \"me\"")
			}
			id = parsed
		}
		f.SubmittedBy = &id
	}
	if v := c.QueryParam("include_archived"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "include_archived must be a boolean")
		}
		f.IncludeArchived = b
	}
	return f, nil
}

func (h *Handler) List(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
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
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Create(c.Request().Context(), auth.FromEcho(c).UserID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) StartReview(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.StartReview(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Validate(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in ValidateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Validate(c.Request().Context(), id, auth.FromEcho(c).UserID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Reject(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in RejectInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Reject(c.Request().Context(), id, auth.FromEcho(c).UserID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) BulkValidate(c echo.Context) error {
	var in BulkValidateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	results, err := h.svc.BulkValidate(c.Request().Context(), auth.FromEcho(c).UserID, in)
	if err != nil {
		return httpError(err)
	}
	succeeded := 0
	for _, r := range results {
		if r.Error == "" {
			succeeded++
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"results":   results,
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	})
}

func (h *Handler) Archive(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Archive(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Export(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Export(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+res.Filename+`"`)
	c.Response().Header().Set("X-Export-Rows", strconv.Itoa(res.Rows))
	return c.Blob(http.StatusOK, XLSXContentType, res.Data)
}
