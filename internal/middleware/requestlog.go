package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/crate-auction/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware reuses an incoming X-Request-ID or assigns a new one
// and echoes it on the response.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(requestIDHeader)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			c.Set(ctxRequestID, id)
			c.Response().Header().Set(requestIDHeader, id)
			return next(c)
		}
	}
}

// RequestLogger logs every request once it has been handled.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// let Echo render the error so the logged status is final
				c.Error(err)
			}

			status := c.Response().Status
			entry := logger.Logger.WithFields(logrus.Fields{
				"method":     c.Request().Method,
				"path":       c.Request().URL.Path,
				"status":     status,
				"duration":   time.Since(start),
				"client_ip":  c.RealIP(),
				"request_id": RequestID(c),
				"user_id":    UserID(c),
			})
			if status >= 500 {
				entry.Error("Request failed")
			} else {
				entry.Info("Request processed")
			}
			return nil
		}
	}
}
