package middleware

import (
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// CORS admits the exact origins in allowed and any origin matching one of
// patterns. Patterns use path.Match globbing, e.g. "capacitor://*" or
// "https://*.carelink.org". Credentials are allowed, so a literal "*" is
// never echoed back.
func CORS(allowed, patterns []string) echo.MiddlewareFunc {
	exact := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		exact[strings.TrimRight(o, "/")] = struct{}{}
	}

	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOriginFunc: func(origin string) (bool, error) {
			return OriginAllowed(origin, exact, patterns), nil
		},
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowHeaders: []string{
			echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderAccept,
			RequestIDHeader, "X-Device-ID",
		},
		ExposeHeaders: []string{
			RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After", echo.HeaderContentDisposition,
		},
		AllowCredentials: true,
		MaxAge:           3600,
	})
}

func OriginAllowed(origin string, exact map[string]struct{}, patterns []string) bool {
	if origin == "" {
		return false
	}
	if _, ok := exact[origin]; ok {
		return true
	}
	for _, p := range patterns {
		if p == "*" {
			continue
		}
		if ok, _ := path.Match(p, origin); ok {
			return true
		}
	}
	return false
}
