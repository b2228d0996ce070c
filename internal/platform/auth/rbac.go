package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Unauthenticated is the 401 returned when no principal is attached.
func Unauthenticated() *echo.HTTPError {
	return echo.NewHTTPError(http.StatusUnauthorized, map[string]interface{}{
		"error":   "UNAUTHENTICATED",
		"message": "Authentication required",
	})
}

// RequireRole admits principals holding at least one of roles.
func RequireRole(checker GrantChecker, roles ...string) echo.MiddlewareFunc {
	return requireGrant(checker, GrantRole, roles, "required_roles", "user_roles")
}

// RequirePermission admits principals holding at least one of perms,
// directly or through a role.
func RequirePermission(checker GrantChecker, perms ...string) echo.MiddlewareFunc {
	return requireGrant(checker, GrantPermission, perms, "required_permissions", "user_permissions")
}

func requireGrant(checker GrantChecker, kind GrantKind, required []string, requiredKey, actualKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := FromEcho(c)
			if p == nil {
				return Unauthenticated()
			}
			if !checker.HasAnyOf(p, kind, required) {
				return echo.NewHTTPError(http.StatusForbidden, map[string]interface{}{
					"error":     "FORBIDDEN",
					"message":   "Insufficient " + string(kind) + "s",
					requiredKey: required,
					actualKey:   checker.Effective(p, kind),
				})
			}
			return next(c)
		}
	}
}
