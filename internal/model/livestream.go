package model

// Livestream is the broadcast a session is attached to.  The auction
// core only reads it; operators register broadcasts and flip liveness.
type Livestream struct {
	ID        uint64 `json:"id"`         // livestreams.id
	Title     string `json:"title"`      // livestreams.title
	IsLive    bool   `json:"is_live"`    // livestreams.is_live
	StartedAt *int64 `json:"started_at"` // livestreams.started_at (epoch ms)
}
