package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/crate-auction/internal/service"
)

// PaymentHandler serves the winner-facing side of the payment bridge.
type PaymentHandler struct {
	Payments *service.PaymentService
}

func NewPaymentHandler(p *service.PaymentService) *PaymentHandler {
	if p == nil {
		panic("nil payment service passed to NewPaymentHandler")
	}
	return &PaymentHandler{Payments: p}
}

// Checkout handles POST /v1/bidding/sessions/:id/checkout and returns
// {"checkout_id", "redirect_url"}.  Calling it again returns the same
// provider session.
func (h *PaymentHandler) Checkout(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	co, err := h.Payments.InitiateCheckout(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, co)
}

// Status handles GET /v1/checkout/:ref/status, the polling fallback for
// missed webhooks.
func (h *PaymentHandler) Status(c echo.Context) error {
	ref := strings.TrimSpace(c.Param("ref"))
	if ref == "" {
		return badRequest(c, "invalid checkout reference")
	}
	st, err := h.Payments.PollCheckout(c.Request().Context(), actorFrom(c), ref)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Crate handles GET /v1/crate.
func (h *PaymentHandler) Crate(c echo.Context) error {
	entries, err := h.Payments.ListCrate(c.Request().Context(), actorFrom(c), queryLimit(c, 50))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": entries})
}
