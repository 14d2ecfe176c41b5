package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/crate-auction/internal/utils"
)

const cronTokenHeader = "X-Cron-Token"

// CronToken guards internal trigger endpoints.  The caller presents the
// plain token in X-Cron-Token; only its bcrypt hash is configured.  An
// empty hash disables the endpoint.
func CronToken(hash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if hash == "" {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "not found", "code": "not_found"})
			}
			token := c.Request().Header.Get(cronTokenHeader)
			if token == "" || !utils.VerifySecret(hash, token) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid cron token", "code": "unauthorized"})
			}
			return next(c)
		}
	}
}
