// Package service implements the auction state machine and the payment
// bridge on top of the repositories.  Every state change runs in one
// transaction that first claims the session row; notifications are
// recorded only after commit and only by the call that made the change.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/crate-auction/internal/config"
	"github.com/iliyamo/crate-auction/internal/logger"
	"github.com/iliyamo/crate-auction/internal/metrics"
	"github.com/iliyamo/crate-auction/internal/model"
	"github.com/iliyamo/crate-auction/internal/notify"
	"github.com/iliyamo/crate-auction/internal/repository"
)

// AuctionDeps collects the collaborators of AuctionService.  Clock and
// Metrics are optional.
type AuctionDeps struct {
	DB          *sql.DB
	Sessions    *repository.SessionRepo
	Bids        *repository.BidRepo
	Users       *repository.UserRepo
	Livestreams *repository.LivestreamRepo
	Feed        *repository.FeedRepo
	Notifier    Notifier
	Config      config.AuctionConfig
	Clock       Clock
	Metrics     *metrics.Metrics
}

type AuctionService struct {
	db          *sql.DB
	sessions    *repository.SessionRepo
	bids        *repository.BidRepo
	users       *repository.UserRepo
	livestreams *repository.LivestreamRepo
	feed        *repository.FeedRepo
	notifier    Notifier
	cfg         config.AuctionConfig
	clock       Clock
	metrics     *metrics.Metrics
}

func NewAuctionService(d AuctionDeps) *AuctionService {
	if d.DB == nil || d.Sessions == nil || d.Bids == nil || d.Notifier == nil {
		panic("nil dependency passed to NewAuctionService")
	}
	if d.Clock == nil {
		d.Clock = SystemClock
	}
	return &AuctionService{
		db:          d.DB,
		sessions:    d.Sessions,
		bids:        d.Bids,
		users:       d.Users,
		livestreams: d.Livestreams,
		feed:        d.Feed,
		notifier:    d.Notifier,
		cfg:         d.Config,
		clock:       d.Clock,
		metrics:     d.Metrics,
	}
}

func (s *AuctionService) nowMs() int64 { return s.clock.Now().UnixMilli() }

// notFound translates repository.ErrNotFound for the given entity.
func notFound(err error, entity string, id uint64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
	}
	return err
}

// record hands an event to the sink after commit.  Failures are logged;
// the mutation they describe is already durable.
func (s *AuctionService) record(ctx context.Context, ev notify.Event) {
	if err := s.notifier.Record(ctx, ev); err != nil {
		logger.Logger.WithError(err).WithFields(logrus.Fields{
			"session_id": ev.SessionID,
			"kind":       ev.Kind,
		}).Warn("notification not recorded")
	}
}

// OpenBidding starts a new session for a broadcast.  Only admins and the
// scheduler may open; a broadcast with an open or payment_pending
// session yields ErrConflict.
func (s *AuctionService) OpenBidding(ctx context.Context, actor Actor, livestreamID uint64, videoTimestamp uint32) (*model.BiddingSession, error) {
	if !actor.Privileged() {
		return nil, ErrAuthorization
	}
	sess := &model.BiddingSession{
		LivestreamID:   livestreamID,
		VideoTimestamp: videoTimestamp,
		OpenedAt:       s.nowMs(),
		Status:         model.SessionOpen,
	}
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.livestreams.ClaimTx(ctx, tx, livestreamID); err != nil {
			return notFound(err, "livestream", livestreamID)
		}
		if _, err := s.sessions.ActiveByLivestreamTx(ctx, tx, livestreamID); err == nil {
			return ErrConflict
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := s.sessions.InsertTx(ctx, tx, sess); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Logger.WithFields(logrus.Fields{
		"session_id":      sess.ID,
		"broadcast_id":    livestreamID,
		"video_timestamp": videoTimestamp,
		"opened_by":       actor.ID,
	}).Info("bidding opened")
	s.metrics.Transition("opened")
	return sess, nil
}

// PlaceBid places the next bid on an open session for actor.  The amount
// is derived from the standing bid inside the same transaction that
// retires it, so amounts strictly increase and at most one bid is
// active.
func (s *AuctionService) PlaceBid(ctx context.Context, actor Actor, sessionID uint64) (*model.Bid, error) {
	if !actor.Authenticated() {
		return nil, ErrAuthorization
	}
	var (
		bid      *model.Bid
		sess     *model.BiddingSession
		replaced *model.Bid
	)
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.sessions.ClaimTx(ctx, tx, sessionID); err != nil {
			return notFound(err, "session", sessionID)
		}
		var err error
		if sess, err = s.sessions.GetTx(ctx, tx, sessionID); err != nil {
			return notFound(err, "session", sessionID)
		}
		now := s.nowMs()
		// a lapsed countdown belongs to resolution, not to a late bid
		if sess.Status != model.SessionOpen || sess.Lapsed(now) {
			return ErrSessionClosed
		}

		amount := s.cfg.InitialBid
		active, err := s.bids.ActiveTx(ctx, tx, sessionID)
		switch {
		case err == nil:
			if active.BidderID == actor.ID {
				return ErrSelfOutbid
			}
			next, terr := active.Status.Outbid()
			if terr != nil {
				return terr
			}
			if err := s.bids.SetStatusTx(ctx, tx, active.ID, active.Status, next); err != nil {
				return err
			}
			amount = active.Amount + s.cfg.BidIncrement
			replaced = active
		case errors.Is(err, repository.ErrNotFound):
		default:
			return err
		}

		bid = &model.Bid{SessionID: sessionID, BidderID: actor.ID, Amount: amount, Status: model.BidActive, CreatedAt: now}
		if err := s.bids.InsertTx(ctx, tx, bid); err != nil {
			return err
		}
		endsAt := now + s.cfg.Countdown.Milliseconds()
		if sess.BiddingEndsAt != nil && *sess.BiddingEndsAt > endsAt {
			endsAt = *sess.BiddingEndsAt
		}
		sess.BiddingEndsAt = &endsAt
		return s.sessions.UpdateStateTx(ctx, tx, sess)
	})
	if err != nil {
		s.metrics.BidRejected(rejectReason(err))
		return nil, err
	}

	fields := logrus.Fields{
		"session_id":   sessionID,
		"bid_id":       bid.ID,
		"bidder_id":    bid.BidderID,
		"broadcast_id": sess.LivestreamID,
		"amount":       bid.Amount,
	}
	kind := model.FeedBid
	if replaced != nil {
		kind = model.FeedOutbid
		fields["outbid_bid_id"] = replaced.ID
	}
	logger.Logger.WithFields(fields).Info("bid placed")
	s.metrics.BidPlaced()
	s.record(ctx, notify.Event{Kind: kind, LivestreamID: sess.LivestreamID, SessionID: sessionID, ActorID: bid.BidderID, Amount: bid.Amount})
	return bid, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrSelfOutbid):
		return "self_outbid"
	case errors.Is(err, ErrSessionClosed):
		return "closed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAuthorization):
		return "unauthorized"
	}
	return "error"
}

// Resolution reports the outcome of an expiry check.  Resolved is true
// only for the call that performed the transition.
type Resolution struct {
	SessionID uint64
	Resolved  bool
	Winner    *model.Bid
}

// ResolveExpiry awards a lapsed open session to its standing bid.  It is
// safe to call any number of times from any number of callers: a session
// that is not open, has not lapsed, or has no bid is left untouched and
// the call reports Resolved=false.
func (s *AuctionService) ResolveExpiry(ctx context.Context, sessionID uint64) (*Resolution, error) {
	res := &Resolution{SessionID: sessionID}
	var sess *model.BiddingSession
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.sessions.ClaimTx(ctx, tx, sessionID); err != nil {
			return notFound(err, "session", sessionID)
		}
		var err error
		if sess, err = s.sessions.GetTx(ctx, tx, sessionID); err != nil {
			return notFound(err, "session", sessionID)
		}
		now := s.nowMs()
		if !sess.Lapsed(now) {
			return nil
		}
		active, err := s.bids.ActiveTx(ctx, tx, sessionID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		won, err := active.Status.Win()
		if err != nil {
			return err
		}
		next, err := sess.Status.Award()
		if err != nil {
			return err
		}
		if err := s.bids.SetStatusTx(ctx, tx, active.ID, active.Status, won); err != nil {
			return err
		}
		sess.Status = next
		if s.cfg.PaymentGrace > 0 {
			deadline := now + s.cfg.PaymentGrace.Milliseconds()
			sess.PaymentDeadline = &deadline
		}
		if err := s.sessions.UpdateStateTx(ctx, tx, sess); err != nil {
			return err
		}
		active.Status = won
		res.Resolved, res.Winner = true, active
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !res.Resolved {
		return res, nil
	}
	logger.Logger.WithFields(logrus.Fields{
		"session_id":   sessionID,
		"bid_id":       res.Winner.ID,
		"bidder_id":    res.Winner.BidderID,
		"broadcast_id": sess.LivestreamID,
		"amount":       res.Winner.Amount,
	}).Info("bidding resolved, awaiting payment")
	s.metrics.Transition("won")
	s.record(ctx, notify.Event{Kind: model.FeedWon, LivestreamID: sess.LivestreamID, SessionID: sessionID, ActorID: res.Winner.BidderID, Amount: res.Winner.Amount})
	return res, nil
}

// CloseBidding aborts an open or payment_pending session without a
// winner: every unsettled bid and the session become expired.
func (s *AuctionService) CloseBidding(ctx context.Context, actor Actor, sessionID uint64) error {
	if !actor.Privileged() {
		return ErrAuthorization
	}
	var (
		sess    *model.BiddingSession
		expired int
	)
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.sessions.ClaimTx(ctx, tx, sessionID); err != nil {
			return notFound(err, "session", sessionID)
		}
		var err error
		if sess, err = s.sessions.GetTx(ctx, tx, sessionID); err != nil {
			return notFound(err, "session", sessionID)
		}
		next, err := sess.Status.Abort()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSessionClosed, err)
		}
		if expired, err = s.expireBidsTx(ctx, tx, sessionID); err != nil {
			return err
		}
		sess.Status = next
		return s.sessions.UpdateStateTx(ctx, tx, sess)
	})
	if err != nil {
		return err
	}
	logger.Logger.WithFields(logrus.Fields{
		"session_id":   sessionID,
		"broadcast_id": sess.LivestreamID,
		"closed_by":    actor.ID,
		"bids_expired": expired,
	}).Info("bidding closed")
	s.metrics.Transition("closed")
	s.record(ctx, notify.Event{Kind: model.FeedClosed, LivestreamID: sess.LivestreamID, SessionID: sessionID, ActorID: actor.ID})
	return nil
}

func (s *AuctionService) expireBidsTx(ctx context.Context, tx *sql.Tx, sessionID uint64) (int, error) {
	bids, err := s.bids.UnsettledTx(ctx, tx, sessionID)
	if err != nil {
		return 0, err
	}
	for _, b := range bids {
		next, err := b.Status.Expire()
		if err != nil {
			return 0, err
		}
		if err := s.bids.SetStatusTx(ctx, tx, b.ID, b.Status, next); err != nil {
			return 0, err
		}
	}
	return len(bids), nil
}

// ExpireUnpaid abandons a payment_pending session whose payment deadline
// has passed.  It reports whether this call performed the transition.
func (s *AuctionService) ExpireUnpaid(ctx context.Context, sessionID uint64) (bool, error) {
	var (
		sess    *model.BiddingSession
		winner  *model.Bid
		changed bool
	)
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.sessions.ClaimTx(ctx, tx, sessionID); err != nil {
			return notFound(err, "session", sessionID)
		}
		var err error
		if sess, err = s.sessions.GetTx(ctx, tx, sessionID); err != nil {
			return notFound(err, "session", sessionID)
		}
		if !sess.PaymentOverdue(s.nowMs()) {
			return nil
		}
		next, err := sess.Status.Lapse()
		if err != nil {
			return err
		}
		winner, err = s.bids.WonTx(ctx, tx, sessionID)
		switch {
		case err == nil:
			expired, terr := winner.Status.Expire()
			if terr != nil {
				return terr
			}
			if err := s.bids.SetStatusTx(ctx, tx, winner.ID, winner.Status, expired); err != nil {
				return err
			}
		case errors.Is(err, repository.ErrNotFound):
			winner = nil
		default:
			return err
		}
		sess.Status = next
		if err := s.sessions.UpdateStateTx(ctx, tx, sess); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil || !changed {
		return false, err
	}
	fields := logrus.Fields{"session_id": sessionID, "broadcast_id": sess.LivestreamID}
	ev := notify.Event{Kind: model.FeedExpired, LivestreamID: sess.LivestreamID, SessionID: sessionID}
	if winner != nil {
		fields["bid_id"], fields["bidder_id"] = winner.ID, winner.BidderID
		ev.ActorID, ev.Amount = winner.BidderID, winner.Amount
	}
	logger.Logger.WithFields(fields).Warn("payment window elapsed, sale abandoned")
	s.metrics.Transition("expired")
	s.record(ctx, ev)
	return true, nil
}

// LapsedSessions lists open sessions whose countdown has run out.
func (s *AuctionService) LapsedSessions(ctx context.Context, limit int) ([]uint64, error) {
	return s.sessions.ListLapsedOpen(ctx, s.nowMs(), limit)
}

// OverdueSessions lists payment_pending sessions past their deadline.
func (s *AuctionService) OverdueSessions(ctx context.Context, limit int) ([]uint64, error) {
	return s.sessions.ListOverduePayments(ctx, s.nowMs(), limit)
}

// AutoOpenEnabled reports whether the scheduler should open sessions for
// live broadcasts on its own.
func (s *AuctionService) AutoOpenEnabled() bool { return s.cfg.AutoOpen }

// LiveWithoutSession lists live broadcasts that have no active session.
func (s *AuctionService) LiveWithoutSession(ctx context.Context, limit int) ([]model.Livestream, error) {
	return s.livestreams.ListLiveWithoutSession(ctx, limit)
}

// AutoOpen opens a session for a live broadcast on behalf of the
// scheduler, marking the moment as the time elapsed since the broadcast
// started.  Losing the race to another opener is not an error.
func (s *AuctionService) AutoOpen(ctx context.Context, ls model.Livestream) (*model.BiddingSession, error) {
	var offset uint32
	if ls.StartedAt != nil {
		if d := s.nowMs() - *ls.StartedAt; d > 0 {
			offset = uint32(time.Duration(d) * time.Millisecond / time.Second)
		}
	}
	sess, err := s.OpenBidding(ctx, System, ls.ID, offset)
	if errors.Is(err, ErrConflict) {
		return nil, nil
	}
	return sess, err
}
