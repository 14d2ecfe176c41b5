package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/crate-auction/internal/logger"
	"github.com/iliyamo/crate-auction/internal/metrics"
	"github.com/iliyamo/crate-auction/internal/payment"
	"github.com/iliyamo/crate-auction/internal/service"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives payment provider events.  Nothing is mutated
// until the signature over the raw body has been verified.
type WebhookHandler struct {
	Handler   payment.PurchaseHandler
	Secret    string
	Tolerance time.Duration
	Metrics   *metrics.Metrics
}

func NewWebhookHandler(h payment.PurchaseHandler, secret string, tolerance time.Duration, m *metrics.Metrics) *WebhookHandler {
	if h == nil {
		panic("nil purchase handler passed to NewWebhookHandler")
	}
	return &WebhookHandler{Handler: h, Secret: secret, Tolerance: tolerance, Metrics: m}
}

// Payments handles POST /v1/webhooks/payments.
//
// Outcomes the provider must not retry (winner mismatch, already sold,
// paid after the session closed) are acknowledged with 200; they have
// already been raised to operators.  Storage failures answer 500 so the
// provider redelivers.
func (h *WebhookHandler) Payments(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	if err := payment.VerifySignature(body, c.Request().Header.Get(payment.SignatureHeader), h.Secret, h.Tolerance); err != nil {
		h.Metrics.Webhook("bad_signature")
		logger.Logger.WithError(err).Warn("webhook rejected")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error(), "code": "bad_signature"})
	}
	ev, err := payment.ParseEvent(body)
	if err != nil {
		h.Metrics.Webhook("malformed")
		return badRequest(c, err.Error())
	}

	log := logger.Logger.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": ev.Type, "checkout_id": ev.CheckoutID})
	if ev.Purchase == nil && ev.Checkout() {
		// a checkout of some other product on the same account
		h.Metrics.Webhook("ignored")
		log.WithField("kind", ev.Kind).Info("webhook for unknown purchase kind acknowledged")
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}
	err = payment.Dispatch(c.Request().Context(), h.Handler, ev)
	switch {
	case err == nil:
		h.Metrics.Webhook("ok")
		log.Debug("webhook handled")
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	case errors.Is(err, service.ErrWinnerMismatch),
		errors.Is(err, service.ErrAlreadySold),
		errors.Is(err, service.ErrSessionClosed):
		h.Metrics.Webhook("acknowledged")
		log.WithError(err).Warn("webhook acknowledged without settling")
		return c.JSON(http.StatusOK, echo.Map{"received": true, "settled": false})
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrNotPayable):
		// retrying cannot fix these either
		h.Metrics.Webhook("ignored")
		log.WithError(err).Warn("webhook ignored")
		return c.JSON(http.StatusOK, echo.Map{"received": true, "settled": false})
	default:
		h.Metrics.Webhook("error")
		log.WithError(err).Error("webhook failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "code": "internal"})
	}
}
