// internal/middleware/session_access.go
package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/legendisdaname/whatsapp-platform-backend/internal/model"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/service"
)

// SessionAccess guards routes carrying a :id session param: only the
// session's creator or an admin gets through. Sessions without an owner are
// open to any authenticated user.
func SessionAccess(store *model.SessionStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ClaimsFrom(c)
			if claims == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if claims.Role == model.RoleAdmin {
				return next(c)
			}

			record, err := store.GetByID(c.Param("id"))
			if err != nil {
				if errors.Is(err, model.ErrSessionRecordNotFound) {
					return echo.NewHTTPError(http.StatusNotFound, "session not found")
				}
				return err
			}
			if record.CreatedBy.Valid && record.CreatedBy.Int64 != claims.UserID {
				return echo.NewHTTPError(http.StatusForbidden, service.ErrUnauthorized.Error())
			}
			return next(c)
		}
	}
}
