package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/crate-auction/internal/logger"
	"github.com/iliyamo/crate-auction/internal/metrics"
	"github.com/iliyamo/crate-auction/internal/model"
	"github.com/iliyamo/crate-auction/internal/notify"
	"github.com/iliyamo/crate-auction/internal/payment"
	"github.com/iliyamo/crate-auction/internal/queue"
	"github.com/iliyamo/crate-auction/internal/repository"
)

// PaymentDeps collects the collaborators of PaymentService.
type PaymentDeps struct {
	DB       *sql.DB
	Sessions *repository.SessionRepo
	Bids     *repository.BidRepo
	Crate    *repository.CrateRepo
	Provider payment.Provider
	Notifier Notifier
	Clock    Clock
	Metrics  *metrics.Metrics
}

// PaymentService bridges won sessions and the payment provider.  It never
// changes auction state before the provider has confirmed a charge.
type PaymentService struct {
	db       *sql.DB
	sessions *repository.SessionRepo
	bids     *repository.BidRepo
	crate    *repository.CrateRepo
	provider payment.Provider
	notifier Notifier
	clock    Clock
	metrics  *metrics.Metrics
}

func NewPaymentService(d PaymentDeps) *PaymentService {
	if d.DB == nil || d.Sessions == nil || d.Bids == nil || d.Crate == nil || d.Notifier == nil {
		panic("nil dependency passed to NewPaymentService")
	}
	if d.Clock == nil {
		d.Clock = SystemClock
	}
	return &PaymentService{
		db:       d.DB,
		sessions: d.Sessions,
		bids:     d.Bids,
		crate:    d.Crate,
		provider: d.Provider,
		notifier: d.Notifier,
		clock:    d.Clock,
		metrics:  d.Metrics,
	}
}

// InitiateCheckout asks the provider for a checkout of the won bid.  Only
// the winner may pay.  Provider failures surface as *payment.UpstreamError.
func (s *PaymentService) InitiateCheckout(ctx context.Context, actor Actor, sessionID uint64) (*payment.Checkout, error) {
	if !actor.Authenticated() {
		return nil, ErrAuthorization
	}
	var (
		sess *model.BiddingSession
		won  *model.Bid
	)
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if sess, err = s.sessions.GetTx(ctx, tx, sessionID); err != nil {
			return notFound(err, "session", sessionID)
		}
		if sess.Status != model.SessionPaymentPending {
			return ErrNotPayable
		}
		if sess.PaymentOverdue(s.clock.Now().UnixMilli()) {
			return ErrSessionClosed
		}
		if won, err = s.bids.WonTx(ctx, tx, sessionID); err != nil {
			return notFound(err, "winning bid of session", sessionID)
		}
		if won.BidderID != actor.ID {
			return ErrAuthorization
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.provider == nil {
		return nil, &payment.UpstreamError{Op: "create checkout", Err: errors.New("payment provider not configured")}
	}

	co, err := s.provider.CreateCheckout(ctx, payment.CheckoutRequest{
		SessionID:    sessionID,
		LivestreamID: sess.LivestreamID,
		BidderID:     won.BidderID,
		Amount:       won.Amount,
	})
	if err != nil {
		logger.Logger.WithError(err).WithFields(logrus.Fields{"session_id": sessionID, "bidder_id": won.BidderID}).
			Warn("checkout creation failed")
		return nil, err
	}
	logger.Logger.WithFields(logrus.Fields{
		"session_id":  sessionID,
		"bid_id":      won.ID,
		"bidder_id":   won.BidderID,
		"checkout_id": co.ID,
	}).Info("checkout created")
	return co, nil
}

// CompletePurchase turns a confirmed payment into a crate entry and
// marks the session sold.  Replays of the same payment reference return
// the existing entry.  A payment that does not match the winner returns
// a *WinnerMismatchError; payments for sessions that can no longer be
// sold return ErrAlreadySold or ErrSessionClosed.  Those three raise an
// operator alert.
func (s *PaymentService) CompletePurchase(ctx context.Context, ref string, p payment.BidPurchase) (*model.CrateEntry, error) {
	var (
		entry  *model.CrateEntry
		sess   *model.BiddingSession
		replay bool
		alert  *notify.Alert
	)
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.sessions.ClaimTx(ctx, tx, p.SessionID); err != nil {
			return notFound(err, "session", p.SessionID)
		}
		existing, err := s.crate.GetByRefTx(ctx, tx, ref)
		if err == nil {
			entry, replay = existing, true
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if sess, err = s.sessions.GetTx(ctx, tx, p.SessionID); err != nil {
			return notFound(err, "session", p.SessionID)
		}

		switch sess.Status {
		case model.SessionSold:
			alert = &notify.Alert{Reason: "already_sold", Detail: "payment received for a session sold under another payment"}
			return ErrAlreadySold
		case model.SessionExpired:
			alert = &notify.Alert{Reason: "paid_after_expiry", Detail: "payment received after the session expired"}
			return ErrSessionClosed
		case model.SessionOpen:
			return ErrNotPayable
		}

		won, err := s.bids.WonTx(ctx, tx, p.SessionID)
		if err != nil {
			return notFound(err, "winning bid of session", p.SessionID)
		}
		if won.BidderID != p.BidderID || won.Amount != p.Amount {
			mm := &WinnerMismatchError{
				SessionID: p.SessionID, PaymentRef: ref,
				ExpectedBidder: won.BidderID, ExpectedAmount: won.Amount,
				GotBidder: p.BidderID, GotAmount: p.Amount,
			}
			alert = &notify.Alert{Reason: "winner_mismatch", Detail: mm.Error()}
			return mm
		}

		next, err := sess.Status.Settle()
		if err != nil {
			return err
		}
		entry = &model.CrateEntry{
			OwnerID:        won.BidderID,
			LivestreamID:   sess.LivestreamID,
			VideoTimestamp: sess.VideoTimestamp,
			PurchaseAmount: won.Amount,
			PaymentRef:     ref,
			PurchasedAt:    s.clock.Now().UnixMilli(),
		}
		if err := s.crate.InsertTx(ctx, tx, entry); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("payment reference %s already used: %w", ref, ErrAlreadySold)
			}
			return err
		}
		sess.Status = next
		return s.sessions.UpdateStateTx(ctx, tx, sess)
	})

	if err != nil {
		if alert != nil {
			alert.SessionID, alert.PaymentRef, alert.BidderID, alert.Amount = p.SessionID, ref, p.BidderID, p.Amount
			if aerr := s.notifier.Alert(ctx, *alert); aerr != nil {
				logger.Logger.WithError(aerr).WithField("session_id", p.SessionID).Warn("operator alert not published")
			}
			s.metrics.Purchase(alert.Reason)
		} else {
			s.metrics.Purchase("error")
		}
		return nil, err
	}
	if replay {
		logger.Logger.WithFields(logrus.Fields{"session_id": p.SessionID, "payment_ref": ref}).Info("purchase already recorded")
		s.metrics.Purchase("replay")
		return entry, nil
	}

	logger.Logger.WithFields(logrus.Fields{
		"session_id":   p.SessionID,
		"bidder_id":    entry.OwnerID,
		"broadcast_id": entry.LivestreamID,
		"payment_ref":  ref,
		"amount":       entry.PurchaseAmount,
	}).Info("purchase completed, session sold")
	s.metrics.Purchase("completed")
	s.metrics.Transition("sold")
	if err := s.notifier.Record(ctx, notify.Event{
		Kind: model.FeedPurchased, LivestreamID: entry.LivestreamID, SessionID: p.SessionID,
		ActorID: entry.OwnerID, Amount: entry.PurchaseAmount,
	}); err != nil {
		logger.Logger.WithError(err).WithField("session_id", p.SessionID).Warn("notification not recorded")
	}
	return entry, nil
}

// FailPurchase handles an expired or cancelled checkout.  A crate entry
// left behind by an ordering race is removed; otherwise there is nothing
// to do and the call succeeds.
func (s *PaymentService) FailPurchase(ctx context.Context, ref string) error {
	var removed bool
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		removed, err = s.crate.DeleteByRefTx(ctx, tx, ref)
		return err
	})
	if err != nil {
		return err
	}
	if removed {
		logger.Logger.WithField("payment_ref", ref).Warn("crate entry removed after failed payment")
		s.metrics.Purchase("reversed")
		return nil
	}
	s.metrics.Purchase("failed")
	return nil
}

// ListCrate returns the caller's purchased moments.
func (s *PaymentService) ListCrate(ctx context.Context, actor Actor, limit int) ([]model.CrateEntry, error) {
	if !actor.Authenticated() {
		return nil, ErrAuthorization
	}
	return s.crate.ListByOwner(ctx, actor.ID, limit)
}

// CheckoutStatus is the answer of the polling fallback.
type CheckoutStatus struct {
	CheckoutID string            `json:"checkout_id"`
	Paid       bool              `json:"paid"`
	Entry      *model.CrateEntry `json:"crate_entry,omitempty"`
}

// PollCheckout asks the provider about a checkout and, when a bid
// checkout of the caller has been paid, completes the purchase.  It
// covers deployments where webhooks are not delivered.
func (s *PaymentService) PollCheckout(ctx context.Context, actor Actor, ref string) (*CheckoutStatus, error) {
	if !actor.Authenticated() {
		return nil, ErrAuthorization
	}
	if s.provider == nil {
		return nil, &payment.UpstreamError{Op: "get checkout", Err: errors.New("payment provider not configured")}
	}
	cs, err := s.provider.GetCheckout(ctx, ref)
	if err != nil {
		return nil, err
	}
	out := &CheckoutStatus{CheckoutID: ref, Paid: cs.Paid()}
	p, err := payment.DecodePurchase(cs.Metadata)
	if err != nil {
		return nil, fmt.Errorf("checkout %s: %w", ref, ErrNotFound)
	}
	bid, ok := p.(payment.BidPurchase)
	if !ok {
		return nil, fmt.Errorf("checkout %s is not an auction payment: %w", ref, ErrNotFound)
	}
	if bid.BidderID != actor.ID {
		return nil, ErrAuthorization
	}
	if !out.Paid {
		return out, nil
	}
	if out.Entry, err = s.CompletePurchase(ctx, ref, bid); err != nil {
		return nil, err
	}
	return out, nil
}

// HandleBid settles or fails an auction payment.  A checkout completed
// with a delayed payment method waits for the async result event.
func (s *PaymentService) HandleBid(ctx context.Context, ev *payment.Event, p payment.BidPurchase) error {
	switch {
	case ev.Paid():
		_, err := s.CompletePurchase(ctx, ev.CheckoutID, p)
		return err
	case ev.Pending():
		logger.Logger.WithFields(logrus.Fields{"session_id": p.SessionID, "payment_status": ev.PaymentStatus}).
			Info("checkout completed, payment still processing")
		return nil
	case ev.Failed():
		return s.FailPurchase(ctx, ev.CheckoutID)
	}
	return nil
}

func (s *PaymentService) HandleTip(ctx context.Context, ev *payment.Event, p payment.TipPurchase) error {
	return s.forward(ctx, ev, p)
}

func (s *PaymentService) HandlePPV(ctx context.Context, ev *payment.Event, p payment.PPVPurchase) error {
	return s.forward(ctx, ev, p)
}

func (s *PaymentService) HandleLivestreamPPV(ctx context.Context, ev *payment.Event, p payment.LivestreamPPVPurchase) error {
	return s.forward(ctx, ev, p)
}

func (s *PaymentService) forward(ctx context.Context, ev *payment.Event, p payment.Purchase) error {
	return s.notifier.Forward(ctx, queue.PurchaseForward{
		EventID:    ev.ID,
		EventType:  ev.Type,
		Kind:       string(p.Kind()),
		PaymentRef: ev.CheckoutID,
		Metadata:   p.Metadata(),
	})
}

var _ payment.PurchaseHandler = (*PaymentService)(nil)
