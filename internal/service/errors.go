package service

import (
	"errors"
	"fmt"
)

// Domain errors.  Handlers map them to HTTP statuses with errors.Is.
var (
	ErrAuthorization  = errors.New("not allowed")
	ErrConflict       = errors.New("bidding already running for this livestream")
	ErrSelfOutbid     = errors.New("you already hold the highest bid")
	ErrNotFound       = errors.New("not found")
	ErrSessionClosed  = errors.New("bidding is closed")
	ErrNotPayable     = errors.New("session is not awaiting payment")
	ErrWinnerMismatch = errors.New("payment does not match the recorded winner")
	ErrAlreadySold    = errors.New("session already sold under another payment")
	ErrInvalidInput   = errors.New("invalid input")
)

// WinnerMismatchError describes a completion whose bidder or amount
// differs from the won bid.  It matches ErrWinnerMismatch.
type WinnerMismatchError struct {
	SessionID      uint64
	PaymentRef     string
	ExpectedBidder string
	ExpectedAmount int64
	GotBidder      string
	GotAmount      int64
}

func (e *WinnerMismatchError) Error() string {
	return fmt.Sprintf("session %d: payment %s for %s/%d, winner is %s/%d",
		e.SessionID, e.PaymentRef, e.GotBidder, e.GotAmount, e.ExpectedBidder, e.ExpectedAmount)
}

func (e *WinnerMismatchError) Is(target error) bool { return target == ErrWinnerMismatch }
