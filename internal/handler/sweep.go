package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/crate-auction/internal/scheduler"
)

// Sweeper runs one expiry sweep.
type Sweeper interface {
	Sweep(ctx context.Context) scheduler.Report
}

// SweepHandler lets an external cron drive the scheduler.
type SweepHandler struct {
	Sweeper Sweeper
}

func NewSweepHandler(s Sweeper) *SweepHandler { return &SweepHandler{Sweeper: s} }

// Sweep handles POST /internal/sweep.
func (h *SweepHandler) Sweep(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Sweeper.Sweep(c.Request().Context()))
}
