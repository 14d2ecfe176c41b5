package model

// FeedKind tags an entry in the shared auction feed.
type FeedKind string

const (
	FeedBid       FeedKind = "bid"
	FeedOutbid    FeedKind = "outbid"
	FeedWon       FeedKind = "won"
	FeedPurchased FeedKind = "purchased"
	FeedExpired   FeedKind = "expired"
	FeedClosed    FeedKind = "closed"
)

// FeedEvent is an append-only, renderable record of something that
// happened in an auction.
type FeedEvent struct {
	ID           string   `json:"id"`
	Kind         FeedKind `json:"kind"`
	LivestreamID uint64   `json:"livestream_id"`
	SessionID    uint64   `json:"session_id"`
	ActorID      string   `json:"actor_id,omitempty"`
	ActorAlias   string   `json:"actor_alias,omitempty"`
	ActorAvatar  string   `json:"actor_avatar,omitempty"`
	Amount       int64    `json:"amount,omitempty"`
	Message      string   `json:"message"`
	CreatedAt    int64    `json:"created_at"`
}
