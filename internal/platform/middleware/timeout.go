package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context. The handler runs on
// the request goroutine, so pgx, resty and redis calls abort when the
// deadline passes and panics still reach Recovery. A request that overran its
// deadline without writing a response is answered with 504. The websocket
// endpoint is long-lived and skipped; handlers needing longer (exports)
// derive their own context.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := c.Request().URL.Path
			if strings.HasSuffix(p, "/ws") || strings.Contains(p, "/ws/") {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return echo.NewHTTPError(http.StatusGatewayTimeout, map[string]interface{}{
					"error":   "TIMEOUT",
					"message": "Request processing exceeded the allowed time limit",
				}).SetInternal(err)
			}
			return err
		}
	}
}
