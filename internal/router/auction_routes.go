package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/crate-auction/internal/handler"
	"github.com/iliyamo/crate-auction/internal/middleware"
)

// RegisterAuction registers the bidding endpoints.  Reads are public so
// viewers without an account can watch the auction; opening and closing
// require ADMIN, bidding any signed-in user.  bidLimit throttles bid
// placement and may be a pass-through.
func RegisterAuction(e *echo.Echo, h *handler.AuctionHandler, jwtSecret string, bidLimit echo.MiddlewareFunc) {
	e.GET("/v1/livestreams/:id/bidding", h.Current)
	e.GET("/v1/livestreams/:id/feed", h.Feed)

	admin := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/livestreams/:id/bidding", h.Open)
	admin.POST("/bidding/sessions/:id/close", h.Close)

	users := e.Group("/v1/bidding/sessions", middleware.JWTAuth(jwtSecret), middleware.RequireRole(middleware.RoleUser, middleware.RoleAdmin))
	users.POST("/:id/bids", h.PlaceBid, bidLimit)
	users.POST("/:id/resolve", h.Resolve)
}
