// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the audit consumer that use them.
package queue

// Queue names.  Purchases of kinds this service does not own are routed
// to PurchaseQueue(kind).
const (
	QueueFeed   = "auction.feed"
	QueueAlerts = "operator.alerts"
)

// PurchaseQueue returns the queue that receives forwarded purchases of
// the given kind, e.g. "purchases.tip".
func PurchaseQueue(kind string) string { return "purchases." + kind }

// AuctionEvent mirrors a feed entry for downstream consumers (push
// fan-out, audit log) so they need not query the primary database.
type AuctionEvent struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	LivestreamID uint64 `json:"livestream_id"`
	SessionID    uint64 `json:"session_id"`
	ActorID      string `json:"actor_id,omitempty"`
	ActorAlias   string `json:"actor_alias,omitempty"`
	ActorAvatar  string `json:"actor_avatar,omitempty"`
	Amount       int64  `json:"amount,omitempty"`
	Message      string `json:"message"`
	OccurredAt   string `json:"occurred_at"`
}

// OperatorAlert is raised for conditions a human has to look at, such as
// a payment whose bidder does not match the recorded winner.
type OperatorAlert struct {
	Reason     string `json:"reason"`
	SessionID  uint64 `json:"session_id,omitempty"`
	PaymentRef string `json:"payment_ref,omitempty"`
	BidderID   string `json:"bidder_id,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
	Detail     string `json:"detail"`
	RaisedAt   string `json:"raised_at"`
}

// PurchaseForward hands a verified provider event for a non-auction
// purchase (tip, pay-per-view) to the service that owns it.
type PurchaseForward struct {
	EventID    string            `json:"event_id"`
	EventType  string            `json:"event_type"`
	Kind       string            `json:"kind"`
	PaymentRef string            `json:"payment_ref"`
	Metadata   map[string]string `json:"metadata"`
	ReceivedAt string            `json:"received_at"`
}
