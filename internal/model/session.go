package model

import "fmt"

// SessionStatus is the lifecycle state of a bidding session.  Values are
// only produced by the transition methods below, so a stored status
// always describes a reachable state.
type SessionStatus string

const (
	SessionOpen           SessionStatus = "open"
	SessionPaymentPending SessionStatus = "payment_pending"
	SessionSold           SessionStatus = "sold"
	SessionExpired        SessionStatus = "expired"
)

// TransitionError reports a state change that the lifecycle does not
// allow, e.g. sold -> open.
type TransitionError struct {
	Entity string
	From   string
	Event  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s from %q", e.Entity, e.Event, e.From)
}

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionOpen, SessionPaymentPending, SessionSold, SessionExpired:
		return true
	}
	return false
}

// Active reports whether the session still occupies its broadcast's
// single active slot.
func (s SessionStatus) Active() bool {
	return s == SessionOpen || s == SessionPaymentPending
}

// Terminal reports whether no further transition is possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionSold || s == SessionExpired
}

// Award moves an open session whose countdown lapsed with a standing bid
// into payment_pending.
func (s SessionStatus) Award() (SessionStatus, error) {
	if s != SessionOpen {
		return s, s.illegal("award")
	}
	return SessionPaymentPending, nil
}

// Settle records a confirmed payment.
func (s SessionStatus) Settle() (SessionStatus, error) {
	if s != SessionPaymentPending {
		return s, s.illegal("settle")
	}
	return SessionSold, nil
}

// Abort closes an active session without a sale (admin close).
func (s SessionStatus) Abort() (SessionStatus, error) {
	if !s.Active() {
		return s, s.illegal("abort")
	}
	return SessionExpired, nil
}

// Lapse abandons a sale whose payment window ran out.
func (s SessionStatus) Lapse() (SessionStatus, error) {
	if s != SessionPaymentPending {
		return s, s.illegal("lapse")
	}
	return SessionExpired, nil
}

func (s SessionStatus) illegal(event string) error {
	return &TransitionError{Entity: "session", From: string(s), Event: event}
}

// BiddingSession is one auctionable moment of a live broadcast.  Times
// are epoch milliseconds; nil pointers are unset deadlines.
type BiddingSession struct {
	ID              uint64        `json:"id"`               // bidding_sessions.id
	LivestreamID    uint64        `json:"livestream_id"`    // bidding_sessions.livestream_id
	VideoTimestamp  uint32        `json:"video_timestamp"`  // bidding_sessions.video_timestamp (seconds into the broadcast)
	OpenedAt        int64         `json:"opened_at"`        // bidding_sessions.opened_at
	Status          SessionStatus `json:"status"`           // bidding_sessions.status
	BiddingEndsAt   *int64        `json:"bidding_ends_at"`  // bidding_sessions.bidding_ends_at
	PaymentDeadline *int64        `json:"payment_deadline"` // bidding_sessions.payment_deadline
	Version         uint64        `json:"-"`                // bidding_sessions.version
}

// Lapsed reports whether the countdown has run out at now.  A session
// without bids has no deadline and never lapses.
func (s *BiddingSession) Lapsed(now int64) bool {
	return s.Status == SessionOpen && s.BiddingEndsAt != nil && now >= *s.BiddingEndsAt
}

// PaymentOverdue reports whether the winner's payment window has closed.
func (s *BiddingSession) PaymentOverdue(now int64) bool {
	return s.Status == SessionPaymentPending && s.PaymentDeadline != nil && now >= *s.PaymentDeadline
}
