package handler // handler defines http handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/crate-auction/internal/logger"
	"github.com/iliyamo/crate-auction/internal/middleware"
	"github.com/iliyamo/crate-auction/internal/model"
	"github.com/iliyamo/crate-auction/internal/payment"
	"github.com/iliyamo/crate-auction/internal/service"
)

// actorFrom builds the service actor from the identity JWTAuth stored on
// the context.  Anonymous requests produce the zero Actor.
func actorFrom(c echo.Context) service.Actor {
	return service.Actor{ID: middleware.UserID(c), Role: middleware.Role(c)}
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// queryLimit reads ?limit=N, falling back to def for missing or bad values.
func queryLimit(c echo.Context, def int) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": "bad_request"})
}

// writeError maps a service error to its HTTP status and machine code.
func writeError(c echo.Context, err error) error {
	status, code := http.StatusInternalServerError, "internal"
	var transition *model.TransitionError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, service.ErrAuthorization):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrSelfOutbid):
		status, code = http.StatusConflict, "self_outbid"
	case errors.Is(err, service.ErrSessionClosed):
		status, code = http.StatusConflict, "session_closed"
	case errors.Is(err, service.ErrNotPayable):
		status, code = http.StatusConflict, "not_payable"
	case errors.Is(err, service.ErrWinnerMismatch):
		status, code = http.StatusConflict, "winner_mismatch"
	case errors.Is(err, service.ErrAlreadySold):
		status, code = http.StatusConflict, "already_sold"
	case errors.As(err, &transition):
		status, code = http.StatusConflict, "invalid_transition"
	case payment.IsUpstream(err):
		status, code = http.StatusBadGateway, "upstream"
	}
	if status == http.StatusInternalServerError {
		logger.Logger.WithFields(logrus.Fields{
			"path":       c.Path(),
			"request_id": middleware.RequestID(c),
		}).WithError(err).Error("request failed")
		return c.JSON(status, echo.Map{"error": "internal error", "code": code})
	}
	return c.JSON(status, echo.Map{"error": err.Error(), "code": code})
}
