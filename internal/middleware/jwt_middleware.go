// internal/middleware/jwt_middleware.go
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/legendisdaname/whatsapp-platform-backend/internal/service"
)

const ClaimsKey = "user_claims"

// JWT rejects requests without a valid bearer token and stashes the claims
// on the echo context for downstream handlers.
func JWT() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims, err := service.ValidateToken(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			c.Set(ClaimsKey, claims)
			return next(c)
		}
	}
}

// ClaimsFrom pulls the authenticated claims off the context. Nil when the
// route skipped the JWT middleware.
func ClaimsFrom(c echo.Context) *service.Claims {
	claims, _ := c.Get(ClaimsKey).(*service.Claims)
	return claims
}
