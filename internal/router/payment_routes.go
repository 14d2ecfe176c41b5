package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/crate-auction/internal/handler"
	"github.com/iliyamo/crate-auction/internal/middleware"
)

// RegisterPayments registers checkout, the polling fallback and the
// crate listing for signed-in users, plus the provider webhook.  The
// webhook carries no JWT; it is authenticated by its signature.
func RegisterPayments(e *echo.Echo, h *handler.PaymentHandler, w *handler.WebhookHandler, jwtSecret string) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(middleware.RoleUser, middleware.RoleAdmin))
	g.POST("/bidding/sessions/:id/checkout", h.Checkout)
	g.GET("/checkout/:ref/status", h.Status)
	g.GET("/crate", h.Crate)

	e.POST("/v1/webhooks/payments", w.Payments)
}
