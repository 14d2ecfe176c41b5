// Package payment talks to Stripe: it creates checkout sessions, polls
// them, and decodes the signed webhook events.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/iliyamo/crate-auction/internal/config"
	"github.com/iliyamo/crate-auction/internal/logger"
)

// CheckoutRequest carries what the provider needs to charge a winner and
// what we need back to reconcile the payment.
type CheckoutRequest struct {
	SessionID    uint64
	LivestreamID uint64
	BidderID     string
	Amount       int64
	Description  string
}

// Checkout is the provider's answer to a create request.
type Checkout struct {
	ID          string `json:"checkout_id"`
	RedirectURL string `json:"redirect_url"`
}

// CheckoutSession is the provider's view of a checkout, used by the
// polling fallback.
type CheckoutSession struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

// Paid reports whether the provider has captured the payment.
func (c *CheckoutSession) Paid() bool {
	return c.PaymentStatus == "paid" || c.PaymentStatus == "no_payment_required"
}

// Provider is the narrow surface of the payment provider the auction
// uses.
type Provider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	GetCheckout(ctx context.Context, id string) (*CheckoutSession, error)
}

// UpstreamError reports a failed provider call.  StatusCode is zero for
// transport failures.
type UpstreamError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("payment provider %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("payment provider %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("payment provider %s failed", e.Op)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Retryable reports whether re-initiating the call can succeed: network
// failures, rate limiting and server errors.
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsUpstream reports whether err came from the provider.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// StripeClient talks to the provider through stripe-go.  Network
// retries are disabled; a failed checkout is re-initiated by the winner
// and the idempotency key maps the retry onto the same provider session.
type StripeClient struct {
	api        *client.API
	successURL string
	cancelURL  string
	currency   string
}

// NewStripeClient builds a provider client from configuration.
func NewStripeClient(cfg config.PaymentConfig) *StripeClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = stripe.APIURL
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(base),
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     logger.Logger,
	})
	return &StripeClient{
		api:        client.New(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}),
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		currency:   cfg.Currency,
	}
}

// IdempotencyKey identifies one won bid, so repeated checkout attempts
// by the winner resolve to a single provider session.
func IdempotencyKey(req CheckoutRequest) string {
	return fmt.Sprintf("bid-%d-%s", req.SessionID, req.BidderID)
}

// CreateCheckout opens a one-item checkout for a won bid.  The auction
// metadata travels with the checkout and comes back on the webhook.
func (c *StripeClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	sessionID := strconv.FormatUint(req.SessionID, 10)
	desc := req.Description
	if desc == "" {
		desc = "Live moment #" + sessionID
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(c.successURL),
		CancelURL:         stripe.String(c.cancelURL),
		ClientReferenceID: stripe.String(sessionID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(c.currency),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(desc),
				},
			},
		}},
	}
	for k, v := range BidMetadata(req) {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(IdempotencyKey(req))

	cs, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, upstream("create checkout", err)
	}
	if cs.ID == "" || cs.URL == "" {
		return nil, &UpstreamError{Op: "create checkout", Err: errors.New("response without id or url")}
	}
	return &Checkout{ID: cs.ID, RedirectURL: cs.URL}, nil
}

// GetCheckout fetches a checkout session by id.
func (c *StripeClient) GetCheckout(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := c.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, upstream("get checkout", err)
	}
	return &CheckoutSession{
		ID:            cs.ID,
		Status:        string(cs.Status),
		PaymentStatus: string(cs.PaymentStatus),
		Metadata:      cs.Metadata,
	}, nil
}

// upstream wraps a stripe-go failure.  API errors keep their status and
// message; anything else is a transport failure.
func upstream(op string, err error) *UpstreamError {
	var se *stripe.Error
	if errors.As(err, &se) {
		msg := se.Msg
		if msg == "" {
			msg = http.StatusText(se.HTTPStatusCode)
		}
		return &UpstreamError{Op: op, StatusCode: se.HTTPStatusCode, Message: msg, Err: err}
	}
	return &UpstreamError{Op: op, Err: err}
}

// BidMetadata is the metadata attached to a bid checkout.  Values are
// strings because that is all the provider stores.
func BidMetadata(req CheckoutRequest) map[string]string {
	return map[string]string{
		metaType:         string(KindBid),
		metaSessionID:    strconv.FormatUint(req.SessionID, 10),
		metaLivestreamID: strconv.FormatUint(req.LivestreamID, 10),
		metaBidderID:     req.BidderID,
		metaAmount:       strconv.FormatInt(req.Amount, 10),
	}
}
