package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"errors"
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming

	"github.com/golang-jwt/jwt/v5" // JWT sentinels used to tell expired tokens apart
	"github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/storefront-api/internal/utils"
)

// Context keys populated by JWTAuth.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
	CtxEmail  = "email"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's subject, role and email claims into the request
// context.  The provided secret must match the one used when issuing tokens.
// Handlers read the identity via c.Get("user_id") (uint64), c.Get("role")
// and c.Get("email").
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return fail(c, http.StatusUnauthorized, "access token required")
			}
			if secret == "" {
				c.Logger().Error("jwt secret is not configured")
				return fail(c, http.StatusInternalServerError, "server configuration error")
			}

			claims, err := utils.ParseAccessToken(secret, raw)
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				return fail(c, http.StatusForbidden, "token expired, please sign in again")
			case err != nil:
				return fail(c, http.StatusForbidden, "invalid token, please sign in again")
			}

			uid, _ := claims.UserID() // checked by ParseAccessToken
			c.Set(CtxUserID, uid)
			c.Set(CtxRole, claims.Role)
			c.Set(CtxEmail, claims.Email)
			return next(c)
		}
	}
}

// bearerToken extracts the token from an Authorization header value.  The
// scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
