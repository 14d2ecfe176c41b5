package model

// Profile is the display identity attached to feed events and to the
// current holder of a session.  Identity itself is owned by the external
// auth provider; ID is the token subject.
type Profile struct {
	ID        string `json:"id"`         // users.id
	Alias     string `json:"alias"`      // users.alias
	AvatarURL string `json:"avatar_url"` // users.avatar_url
}
