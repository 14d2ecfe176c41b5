package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/crate-auction/internal/model"
	"github.com/iliyamo/crate-auction/internal/repository"
)

// BidView is the bid shown to viewers.
type BidView struct {
	ID        uint64          `json:"id"`
	Amount    int64           `json:"amount"`
	Status    model.BidStatus `json:"status"`
	CreatedAt int64           `json:"created_at"`
}

// SessionView is the read model of a broadcast's active session.  It is
// derived from the stored session and bids on every read.
type SessionView struct {
	SessionID       uint64              `json:"session_id"`
	LivestreamID    uint64              `json:"livestream_id"`
	VideoTimestamp  uint32              `json:"video_timestamp"`
	Status          model.SessionStatus `json:"status"`
	OpenedAt        int64               `json:"opened_at"`
	BiddingEndsAt   *int64              `json:"bidding_ends_at"`
	PaymentDeadline *int64              `json:"payment_deadline"`
	CurrentBid      *BidView            `json:"current_bid"`
	Holder          *model.Profile      `json:"holder"`
	// NextBidAmount is what the next placeBid would cost; nil once
	// bidding is over.
	NextBidAmount *int64 `json:"next_bid_amount"`
	RemainingMs   *int64 `json:"remaining_ms"`
	ServerTime    int64  `json:"server_time"`
}

// CurrentSession returns the open or payment_pending session of a
// broadcast, or nil when there is none.  All reads share one
// transaction so the view is a consistent snapshot.
func (s *AuctionService) CurrentSession(ctx context.Context, livestreamID uint64) (*SessionView, error) {
	var view *SessionView
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		sess, err := s.sessions.ActiveByLivestreamTx(ctx, tx, livestreamID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		now := s.nowMs()
		view = &SessionView{
			SessionID:       sess.ID,
			LivestreamID:    sess.LivestreamID,
			VideoTimestamp:  sess.VideoTimestamp,
			Status:          sess.Status,
			OpenedAt:        sess.OpenedAt,
			BiddingEndsAt:   sess.BiddingEndsAt,
			PaymentDeadline: sess.PaymentDeadline,
			ServerTime:      now,
		}

		current, err := s.bids.CurrentTx(ctx, tx, sess.ID)
		switch {
		case err == nil:
			view.CurrentBid = &BidView{ID: current.ID, Amount: current.Amount, Status: current.Status, CreatedAt: current.CreatedAt}
			view.Holder = &model.Profile{ID: current.BidderID}
			if s.users != nil {
				p, perr := s.users.GetProfileTx(ctx, tx, current.BidderID)
				if perr == nil {
					view.Holder = p
				} else if !errors.Is(perr, repository.ErrNotFound) {
					return perr
				}
			}
		case errors.Is(err, repository.ErrNotFound):
		default:
			return err
		}

		if sess.Status == model.SessionOpen {
			next := s.cfg.InitialBid
			if view.CurrentBid != nil && view.CurrentBid.Status == model.BidActive {
				next = view.CurrentBid.Amount + s.cfg.BidIncrement
			}
			view.NextBidAmount = &next
			if sess.BiddingEndsAt != nil {
				remaining := *sess.BiddingEndsAt - now
				if remaining < 0 {
					remaining = 0
				}
				view.RemainingMs = &remaining
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// RecentFeed returns the latest feed events of a broadcast.
func (s *AuctionService) RecentFeed(ctx context.Context, livestreamID uint64, limit int) ([]model.FeedEvent, error) {
	return s.feed.ListByLivestream(ctx, livestreamID, limit)
}
