package middleware // middleware provides shared request processing for handlers

import (
	"net/http" // http package defines standard HTTP status codes

	"github.com/labstack/echo/v4" // echo provides middleware chaining and context
)

// RequireRole returns a middleware function that enforces that the
// authenticated user has one of the specified roles.  The roles accepted
// correspond to the values stored in the JWT's "role" claim.  It assumes
// JWTAuth ran first; a request without an identity is rejected with 401 and
// a role outside the set with 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	// Build a set of allowed roles for constant‑time lookups.
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := UserID(c); !ok {
				return fail(c, http.StatusUnauthorized, "user not authenticated")
			}
			role, _ := c.Get(CtxRole).(string)
			if !allowed[role] {
				return fail(c, http.StatusForbidden, "you do not have permission to access this resource")
			}
			return next(c)
		}
	}
}
