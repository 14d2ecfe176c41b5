package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Provider event types the auction reacts to.  Card payments complete
// with payment_status "paid"; delayed methods complete "unpaid" and
// settle later with one of the async events.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventCheckoutExpired       = "checkout.session.expired"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>".
const SignatureHeader = "Stripe-Signature"

// MinTolerance is the narrowest accepted signature window.
const MinTolerance = 30 * time.Second

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrBadSignature     = errors.New("signature mismatch")
	ErrStaleSignature   = errors.New("signature timestamp outside tolerance")
	ErrMalformedEvent   = errors.New("malformed event")
)

// VerifySignature checks header against payload with stripe-go.  Any v1
// entry may match, which allows secret rotation on the provider side.
// A tolerance below MinTolerance is raised to it, so the timestamp check
// cannot be switched off.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration) error {
	if secret == "" || !strings.Contains(header, "v1=") {
		return ErrMissingSignature
	}
	if tolerance < MinTolerance {
		tolerance = MinTolerance
	}
	err := webhook.ValidatePayloadWithTolerance(payload, header, secret, tolerance)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, webhook.ErrTooOld):
		return ErrStaleSignature
	case errors.Is(err, webhook.ErrNotSigned), errors.Is(err, webhook.ErrInvalidHeader):
		return ErrMissingSignature
	}
	return fmt.Errorf("%w: %v", ErrBadSignature, err)
}

// Event is a verified provider event.  Purchase is nil for event types
// the auction ignores and for checkouts of other products; Kind keeps
// the raw metadata type for logging.
type Event struct {
	ID            string
	Type          string
	CheckoutID    string
	PaymentStatus string
	Kind          string
	Purchase      Purchase
}

// Checkout reports whether the event concerns a checkout session.
func (e *Event) Checkout() bool {
	switch e.Type {
	case EventCheckoutCompleted, EventCheckoutExpired, EventAsyncPaymentSucceeded, EventAsyncPaymentFailed:
		return true
	}
	return false
}

// Paid reports a checkout whose money has been captured.
func (e *Event) Paid() bool {
	switch e.Type {
	case EventAsyncPaymentSucceeded:
		return true
	case EventCheckoutCompleted:
		return e.PaymentStatus == "" ||
			e.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid) ||
			e.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusNoPaymentRequired)
	}
	return false
}

// Pending reports a completed checkout still waiting for a delayed
// payment method.
func (e *Event) Pending() bool { return e.Type == EventCheckoutCompleted && !e.Paid() }

// Failed reports an abandoned checkout or a delayed payment that did not
// go through.
func (e *Event) Failed() bool {
	return e.Type == EventCheckoutExpired || e.Type == EventAsyncPaymentFailed
}

// ParseEvent decodes a verified payload.  Checkout events with bid
// metadata must decode cleanly; checkouts of unknown kinds and other
// event types decode with a nil Purchase.
func ParseEvent(payload []byte) (*Event, error) {
	var se stripe.Event
	if err := json.Unmarshal(payload, &se); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if se.ID == "" || se.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}
	ev := &Event{ID: se.ID, Type: string(se.Type)}
	if !ev.Checkout() {
		return ev, nil
	}
	if se.Data == nil || len(se.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: missing checkout object", ErrMalformedEvent)
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(se.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if cs.ID == "" {
		return nil, fmt.Errorf("%w: missing checkout id", ErrMalformedEvent)
	}
	ev.CheckoutID = cs.ID
	ev.PaymentStatus = string(cs.PaymentStatus)
	ev.Kind = cs.Metadata[metaType]

	p, err := DecodePurchase(cs.Metadata)
	if errors.Is(err, ErrUnknownPurchase) {
		return ev, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	ev.Purchase = p
	return ev, nil
}

// Dispatch routes ev to the handler method for its purchase kind.
// Events without a purchase are ignored.
func Dispatch(ctx context.Context, h PurchaseHandler, ev *Event) error {
	if ev.Purchase == nil {
		return nil
	}
	return ev.Purchase.dispatch(ctx, h, ev)
}
