package model

// BidStatus is the lifecycle state of a single bid.
type BidStatus string

const (
	BidActive  BidStatus = "active"
	BidOutbid  BidStatus = "outbid"
	BidWon     BidStatus = "won"
	BidExpired BidStatus = "expired"
)

// Outbid retires the standing bid when a higher one arrives.
func (s BidStatus) Outbid() (BidStatus, error) {
	if s != BidActive {
		return s, s.illegal("outbid")
	}
	return BidOutbid, nil
}

// Win promotes the standing bid once the countdown lapses.
func (s BidStatus) Win() (BidStatus, error) {
	if s != BidActive {
		return s, s.illegal("win")
	}
	return BidWon, nil
}

// Expire settles a bid of an aborted or abandoned session.  Bids that
// already lost (outbid) or won may expire; an expired bid may not.
func (s BidStatus) Expire() (BidStatus, error) {
	switch s {
	case BidActive, BidOutbid, BidWon:
		return BidExpired, nil
	}
	return s, s.illegal("expire")
}

func (s BidStatus) illegal(event string) error {
	return &TransitionError{Entity: "bid", From: string(s), Event: event}
}

// Bid is one bidder's claim on a session.
type Bid struct {
	ID        uint64    `json:"id"`         // bids.id
	SessionID uint64    `json:"session_id"` // bids.session_id
	BidderID  string    `json:"bidder_id"`  // bids.bidder_id
	Amount    int64     `json:"amount"`     // bids.amount (minor units)
	Status    BidStatus `json:"status"`     // bids.status
	CreatedAt int64     `json:"created_at"` // bids.created_at
}
