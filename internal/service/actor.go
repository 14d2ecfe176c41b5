package service

// Roles carried in the access token.  RoleSystem is never issued to
// clients; it marks calls made by the scheduler.
const (
	RoleAdmin  = "ADMIN"
	RoleUser   = "USER"
	RoleSystem = "SYSTEM"
)

// Actor is the caller of an operation.
type Actor struct {
	ID   string
	Role string
}

// System is the identity of the expiry scheduler.
var System = Actor{ID: "scheduler", Role: RoleSystem}

func (a Actor) Privileged() bool { return a.Role == RoleAdmin || a.Role == RoleSystem }

func (a Actor) Authenticated() bool { return a.ID != "" }
