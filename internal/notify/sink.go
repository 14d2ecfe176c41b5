// Package notify records auction events in the shared feed and fans them
// out over the broker.  Recording happens after the auction mutation has
// committed; a failure here is reported to the caller but never undoes
// the mutation.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/crate-auction/internal/logger"
	"github.com/iliyamo/crate-auction/internal/model"
	"github.com/iliyamo/crate-auction/internal/queue"
	"github.com/iliyamo/crate-auction/internal/repository"
)

// Event is what the auction reports; the sink resolves the display
// identity and renders the message.
type Event struct {
	Kind         model.FeedKind
	LivestreamID uint64
	SessionID    uint64
	ActorID      string
	Amount       int64
}

// Alert is an operator-visible problem, e.g. a payment that does not
// match the recorded winner.
type Alert struct {
	Reason     string
	SessionID  uint64
	PaymentRef string
	BidderID   string
	Amount     int64
	Detail     string
}

// FeedStore is the append-only feed table.
type FeedStore interface {
	Insert(ctx context.Context, e *model.FeedEvent) error
}

// ProfileLookup resolves display identities.
type ProfileLookup interface {
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
}

type Sink struct {
	feed  FeedStore
	users ProfileLookup
	pub   queue.Publisher
	now   func() time.Time
}

// NewSink wires a sink.  A nil publisher disables broker fan-out.
func NewSink(feed FeedStore, users ProfileLookup, pub queue.Publisher) *Sink {
	if pub == nil {
		pub = queue.NopPublisher{}
	}
	return &Sink{feed: feed, users: users, pub: pub, now: time.Now}
}

// Record appends ev to the feed and publishes it on auction.feed.  The
// feed write is authoritative; a broker failure is only logged.
func (s *Sink) Record(ctx context.Context, ev Event) error {
	fe := model.FeedEvent{
		ID:           uuid.NewString(),
		Kind:         ev.Kind,
		LivestreamID: ev.LivestreamID,
		SessionID:    ev.SessionID,
		ActorID:      ev.ActorID,
		Amount:       ev.Amount,
		CreatedAt:    s.now().UnixMilli(),
	}
	if ev.ActorID != "" && s.users != nil {
		p, err := s.users.GetProfile(ctx, ev.ActorID)
		switch {
		case err == nil:
			fe.ActorAlias, fe.ActorAvatar = p.Alias, p.AvatarURL
		case errors.Is(err, repository.ErrNotFound):
		default:
			logger.Logger.WithError(err).WithField("actor_id", ev.ActorID).Warn("profile lookup failed")
		}
	}
	fe.Message = Describe(fe.Kind, displayName(fe), fe.Amount)

	if err := s.feed.Insert(ctx, &fe); err != nil {
		return fmt.Errorf("feed insert: %w", err)
	}
	if err := s.pub.Publish(ctx, queue.QueueFeed, queue.AuctionEvent{
		ID:           fe.ID,
		Kind:         string(fe.Kind),
		LivestreamID: fe.LivestreamID,
		SessionID:    fe.SessionID,
		ActorID:      fe.ActorID,
		ActorAlias:   fe.ActorAlias,
		ActorAvatar:  fe.ActorAvatar,
		Amount:       fe.Amount,
		Message:      fe.Message,
		OccurredAt:   time.UnixMilli(fe.CreatedAt).UTC().Format(time.RFC3339Nano),
	}); err != nil {
		logger.Logger.WithError(err).WithField("session_id", fe.SessionID).Warn("feed fan-out failed")
	}
	return nil
}

// Alert logs a at error level and publishes it to operator.alerts.
func (s *Sink) Alert(ctx context.Context, a Alert) error {
	logger.Logger.WithFields(logrus.Fields{
		"reason":      a.Reason,
		"session_id":  a.SessionID,
		"payment_ref": a.PaymentRef,
		"bidder_id":   a.BidderID,
		"amount":      a.Amount,
	}).Error(a.Detail)
	return s.pub.Publish(ctx, queue.QueueAlerts, queue.OperatorAlert{
		Reason:     a.Reason,
		SessionID:  a.SessionID,
		PaymentRef: a.PaymentRef,
		BidderID:   a.BidderID,
		Amount:     a.Amount,
		Detail:     a.Detail,
		RaisedAt:   s.now().UTC().Format(time.RFC3339),
	})
}

// Forward hands a purchase this service does not own to its queue.
func (s *Sink) Forward(ctx context.Context, f queue.PurchaseForward) error {
	if f.ReceivedAt == "" {
		f.ReceivedAt = s.now().UTC().Format(time.RFC3339)
	}
	return s.pub.Publish(ctx, queue.PurchaseQueue(f.Kind), f)
}

func displayName(fe model.FeedEvent) string {
	if fe.ActorAlias != "" {
		return fe.ActorAlias
	}
	if fe.ActorID != "" {
		return fe.ActorID
	}
	return "someone"
}

// Describe renders the feed message for an event.
func Describe(kind model.FeedKind, who string, amount int64) string {
	switch kind {
	case model.FeedBid:
		return fmt.Sprintf("%s opened the bidding at %s", who, FormatAmount(amount))
	case model.FeedOutbid:
		return fmt.Sprintf("%s raised the bid to %s", who, FormatAmount(amount))
	case model.FeedWon:
		return fmt.Sprintf("%s won the moment for %s", who, FormatAmount(amount))
	case model.FeedPurchased:
		return fmt.Sprintf("%s added the moment to their crate for %s", who, FormatAmount(amount))
	case model.FeedExpired:
		return "Payment window closed, the moment was not sold"
	case model.FeedClosed:
		return "Bidding was closed without a winner"
	}
	return string(kind)
}

// FormatAmount renders minor units as a decimal amount, e.g. 1500 -> "15.00".
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
