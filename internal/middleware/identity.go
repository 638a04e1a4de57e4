package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Eursukkul/showpass/internal/service"
)

// UserIDHeader is set by the authenticating gateway in front of the
// service.
const UserIDHeader = "X-User-ID"

const callerKey = "caller"

// RequireCaller rejects requests without a caller identity.
func RequireCaller() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := strings.TrimSpace(c.Request().Header.Get(UserIDHeader))
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing "+UserIDHeader+" header")
			}
			c.Set(callerKey, service.Identity{UserID: userID})
			return next(c)
		}
	}
}

// Caller returns the identity stored by RequireCaller, or the zero
// Identity.
func Caller(c echo.Context) service.Identity {
	id, _ := c.Get(callerKey).(service.Identity)
	return id
}
