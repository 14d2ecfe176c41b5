package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/crate-auction/internal/handler"
	"github.com/iliyamo/crate-auction/internal/metrics"
	"github.com/iliyamo/crate-auction/internal/middleware"
)

// RegisterRoutes registers the unauthenticated operational endpoints:
// the health check and the Prometheus scrape target.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, m *metrics.Metrics) {
	e.GET("/healthz", handler.Health(db))
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
}

// RegisterInternal mounts endpoints driven by infrastructure rather than
// users.  They are guarded by the cron token.
func RegisterInternal(e *echo.Echo, s *handler.SweepHandler, cronTokenHash string) {
	g := e.Group("/internal", middleware.CronToken(cronTokenHash))
	g.POST("/sweep", s.Sweep)
}
