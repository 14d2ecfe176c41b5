package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/crate-auction/internal/service"
)

// DirectoryHandler serves broadcast registration and display profiles.
type DirectoryHandler struct {
	Directory *service.DirectoryService
}

func NewDirectoryHandler(d *service.DirectoryService) *DirectoryHandler {
	if d == nil {
		panic("nil directory service passed to NewDirectoryHandler")
	}
	return &DirectoryHandler{Directory: d}
}

// CreateLivestream handles POST /v1/livestreams.
func (h *DirectoryHandler) CreateLivestream(c echo.Context) error {
	var body struct {
		Title string `json:"title"`
		Live  bool   `json:"live"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid body")
	}
	ls, err := h.Directory.CreateLivestream(c.Request().Context(), actorFrom(c), body.Title, body.Live)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, ls)
}

// UpdateLivestream handles PUT /v1/livestreams/:id with {"live": bool}.
func (h *DirectoryHandler) UpdateLivestream(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid livestream id")
	}
	var body struct {
		Live *bool `json:"live"`
	}
	if err := c.Bind(&body); err != nil || body.Live == nil {
		return badRequest(c, "live is required")
	}
	ls, err := h.Directory.SetLive(c.Request().Context(), actorFrom(c), id, *body.Live)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ls)
}

// Profile handles GET /v1/users/me/profile.
func (h *DirectoryHandler) Profile(c echo.Context) error {
	p, err := h.Directory.Profile(c.Request().Context(), actorFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// UpdateProfile handles PUT /v1/users/me/profile.
func (h *DirectoryHandler) UpdateProfile(c echo.Context) error {
	var body struct {
		Alias     string `json:"alias"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid body")
	}
	p, err := h.Directory.UpdateProfile(c.Request().Context(), actorFrom(c), body.Alias, body.AvatarURL)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
