package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTransitions(t *testing.T) {
	tests := []struct {
		name  string
		from  SessionStatus
		event func(SessionStatus) (SessionStatus, error)
		want  SessionStatus
		ok    bool
	}{
		{"award open", SessionOpen, SessionStatus.Award, SessionPaymentPending, true},
		{"award pending", SessionPaymentPending, SessionStatus.Award, "", false},
		{"settle pending", SessionPaymentPending, SessionStatus.Settle, SessionSold, true},
		{"settle open", SessionOpen, SessionStatus.Settle, "", false},
		{"abort open", SessionOpen, SessionStatus.Abort, SessionExpired, true},
		{"abort pending", SessionPaymentPending, SessionStatus.Abort, SessionExpired, true},
		{"abort sold", SessionSold, SessionStatus.Abort, "", false},
		{"lapse pending", SessionPaymentPending, SessionStatus.Lapse, SessionExpired, true},
		{"lapse expired", SessionExpired, SessionStatus.Lapse, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.event(tt.from)
			if !tt.ok {
				var te *TransitionError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, "session", te.Entity)
				assert.Equal(t, string(tt.from), te.From)
				assert.Equal(t, tt.from, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionStatusClasses(t *testing.T) {
	for _, s := range []SessionStatus{SessionOpen, SessionPaymentPending} {
		assert.True(t, s.Active(), s)
		assert.False(t, s.Terminal(), s)
	}
	for _, s := range []SessionStatus{SessionSold, SessionExpired} {
		assert.False(t, s.Active(), s)
		assert.True(t, s.Terminal(), s)
	}
	assert.False(t, SessionStatus("closed").Valid())
}

func TestBidTransitions(t *testing.T) {
	next, err := BidActive.Outbid()
	require.NoError(t, err)
	assert.Equal(t, BidOutbid, next)

	_, err = BidOutbid.Outbid()
	assert.Error(t, err)
	_, err = BidOutbid.Win()
	assert.Error(t, err)

	next, err = BidActive.Win()
	require.NoError(t, err)
	assert.Equal(t, BidWon, next)

	for _, s := range []BidStatus{BidActive, BidOutbid, BidWon} {
		next, err := s.Expire()
		require.NoError(t, err)
		assert.Equal(t, BidExpired, next)
	}
	_, err = BidExpired.Expire()
	assert.EqualError(t, err, `bid: cannot expire from "expired"`)
}

func TestLapsedAndOverdue(t *testing.T) {
	ends, deadline := int64(1_000), int64(5_000)

	s := &BiddingSession{Status: SessionOpen}
	assert.False(t, s.Lapsed(1<<40), "no bids, no countdown")

	s.BiddingEndsAt = &ends
	assert.False(t, s.Lapsed(999))
	assert.True(t, s.Lapsed(1_000))

	s.Status = SessionPaymentPending
	assert.False(t, s.Lapsed(2_000))
	assert.False(t, s.PaymentOverdue(1<<40), "unbounded window")
	s.PaymentDeadline = &deadline
	assert.False(t, s.PaymentOverdue(4_999))
	assert.True(t, s.PaymentOverdue(5_000))
}
