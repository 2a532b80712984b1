package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const ContextIdentityKey = "identity"

// Middleware verifies the bearer token and stores the identity in the
// request context.
func Middleware(manager *TokenManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			identity, err := manager.VerifyToken(tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(ContextIdentityKey, identity)
			return next(c)
		}
	}
}

// IdentityFromContext extracts the verified identity from the request
// context.
func IdentityFromContext(c echo.Context) (string, bool) {
	identity, ok := c.Get(ContextIdentityKey).(string)
	return identity, ok && identity != ""
}
