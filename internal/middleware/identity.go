package middleware

// identity.go holds the context keys set by JWTAuth and the accessors the
// rest of the middleware chain and the handlers use to read them.

import (
	"github.com/labstack/echo/v4"
)

const (
	ctxUserID    = "user_id"
	ctxRole      = "role"
	ctxRequestID = "request_id"
)

// Roles recognised in the "role" claim.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// UserID returns the authenticated subject, or "" for anonymous requests.
func UserID(c echo.Context) string {
	if v, ok := c.Get(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// Role returns the authenticated role, or "" for anonymous requests.
func Role(c echo.Context) string {
	if v, ok := c.Get(ctxRole).(string); ok {
		return v
	}
	return ""
}

// RequestID returns the id assigned by the RequestID middleware.
func RequestID(c echo.Context) string {
	if v, ok := c.Get(ctxRequestID).(string); ok {
		return v
	}
	return ""
}
