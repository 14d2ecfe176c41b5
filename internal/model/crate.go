package model

// CrateEntry is a purchase receipt.  It references the session by
// broadcast and timestamp rather than by bid, and is never updated after
// insertion.
type CrateEntry struct {
	ID             uint64 `json:"id"`              // crate.id
	OwnerID        string `json:"owner_id"`        // crate.owner_id
	LivestreamID   uint64 `json:"livestream_id"`   // crate.livestream_id
	VideoTimestamp uint32 `json:"video_timestamp"` // crate.video_timestamp
	PurchaseAmount int64  `json:"purchase_amount"` // crate.purchase_amount
	PaymentRef     string `json:"payment_ref"`     // crate.payment_ref (unique)
	PurchasedAt    int64  `json:"purchased_at"`    // crate.purchased_at
}
