package inbox

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/middleware"
)

func serve(h *Handler, p *auth.Principal, req *http.Request) *httptest.ResponseRecorder {
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(zerolog.Nop())
	authn := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p != nil {
				c.SetRequest(c.Request().WithContext(auth.WithPrincipal(c.Request().Context(), p)))
			}
			return next(c)
		}
	}
	h.RegisterRoutes(e.Group("/api/v1"), authn)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newTestHandler() (*Handler, *Service) {
	svc, _, _ := newTestService()
	limiter := middleware.NewRateLimiter(middleware.NewMemoryLimiterStore(), false, zerolog.Nop())
	return NewHandler(svc, limiter), svc
}

func TestHandler_Flow(t *testing.T) {
	svc, store, _ := newTestService()
	limiter := middleware.NewRateLimiter(middleware.NewMemoryLimiterStore(), false, zerolog.Nop())
	h := NewHandler(svc, limiter)
	p := &auth.Principal{UserID: uuid.New(), Roles: []string{auth.RoleCHW}}
	recs := seed(t, store, p.UserID, 3)

	rec := serve(h, p, httptest.NewRequest(http.MethodGet, "/api/v1/notifications?unread=true&per_page=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page Page
	_ = json.Unmarshal(rec.Body.Bytes(), &page)
	if page.Total != 3 || len(page.Items) != 2 || page.Limit != 2 {
		t.Errorf("unexpected page %+v", page)
	}

	rec = serve(h, p, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+recs[0].ID.String()+"/read", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = serve(h, p, httptest.NewRequest(http.MethodGet, "/api/v1/notifications/unread-count", nil))
	var count map[string]int
	_ = json.Unmarshal(rec.Body.Bytes(), &count)
	if count["unread_count"] != 2 {
		t.Errorf("expected 2 unread, got %v", count)
	}

	rec = serve(h, p, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read-all", nil))
	var res ReadAllResult
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if rec.Code != http.StatusOK || res.Updated != 2 {
		t.Errorf("expected 2 updated, got %d %+v", rec.Code, res)
	}
}

func TestHandler_MarkReadErrors(t *testing.T) {
	h, _ := newTestHandler()
	p := &auth.Principal{UserID: uuid.New()}

	rec := serve(h, p, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/not-a-uuid/read", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	rec = serve(h, p, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+uuid.NewString()+"/read", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_RequiresPrincipal(t *testing.T) {
	h, _ := newTestHandler()
	rec := serve(h, nil, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("expected api throttle headers")
	}
}
