// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow the service layer to
// distinguish between different failure scenarios without inspecting
// driver-specific errors.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write would violate a uniqueness rule
// (a second active session for a broadcast, a reused payment reference)
// or when a conditional update found the row in an unexpected state.
var ErrConflict = errors.New("conflict")
