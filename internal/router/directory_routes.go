package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/crate-auction/internal/handler"
	"github.com/iliyamo/crate-auction/internal/middleware"
)

// RegisterDirectory registers broadcast management (ADMIN) and the
// caller's own profile (any signed-in user).
func RegisterDirectory(e *echo.Echo, h *handler.DirectoryHandler, jwtSecret string) {
	admin := e.Group("/v1/livestreams", middleware.JWTAuth(jwtSecret), middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("", h.CreateLivestream)
	admin.PUT("/:id", h.UpdateLivestream)

	me := e.Group("/v1/users/me", middleware.JWTAuth(jwtSecret), middleware.RequireRole(middleware.RoleUser, middleware.RoleAdmin))
	me.GET("/profile", h.Profile)
	me.PUT("/profile", h.UpdateProfile)
}
