package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
)

// HeaderAdminPIN carries the admin credential on dashboard requests.
const HeaderAdminPIN = "X-Admin-Pin"

// AdminAuth guards the admin routes with a shared PIN. The comparison is
// constant time so response timing leaks nothing about the configured value.
func AdminAuth(adminPIN string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.Request().Header.Get(HeaderAdminPIN)
			if got == "" {
				return httperror.NewHTTPError(http.StatusUnauthorized, "admin pin required")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(adminPIN)) != 1 {
				return httperror.NewHTTPError(http.StatusUnauthorized, "invalid admin pin")
			}
			return next(c)
		}
	}
}
