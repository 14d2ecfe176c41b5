package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/crate-auction/internal/config"
	"github.com/iliyamo/crate-auction/internal/logger"
	"github.com/iliyamo/crate-auction/internal/model"
	"github.com/iliyamo/crate-auction/internal/service"
)

type fakeAuction struct {
	lapsed    []uint64
	overdue   []uint64
	live      []model.Livestream
	autoOpen  bool
	failOn    map[uint64]bool
	listErr   error
	resolved  []uint64
	expired   []uint64
	openedFor []uint64
}

func (f *fakeAuction) LapsedSessions(context.Context, int) ([]uint64, error) {
	return f.lapsed, f.listErr
}

func (f *fakeAuction) ResolveExpiry(_ context.Context, id uint64) (*service.Resolution, error) {
	if f.failOn[id] {
		return nil, errors.New("feed write failed")
	}
	f.resolved = append(f.resolved, id)
	return &service.Resolution{SessionID: id, Resolved: true}, nil
}

func (f *fakeAuction) OverdueSessions(context.Context, int) ([]uint64, error) { return f.overdue, nil }

func (f *fakeAuction) ExpireUnpaid(_ context.Context, id uint64) (bool, error) {
	if f.failOn[id] {
		return false, errors.New("boom")
	}
	f.expired = append(f.expired, id)
	return true, nil
}

func (f *fakeAuction) AutoOpenEnabled() bool { return f.autoOpen }

func (f *fakeAuction) LiveWithoutSession(context.Context, int) ([]model.Livestream, error) {
	return f.live, nil
}

func (f *fakeAuction) AutoOpen(_ context.Context, ls model.Livestream) (*model.BiddingSession, error) {
	f.openedFor = append(f.openedFor, ls.ID)
	return &model.BiddingSession{LivestreamID: ls.ID}, nil
}

type fakeLease struct {
	granted bool
	err     error
	calls   int
}

func (l *fakeLease) Acquire(context.Context, time.Duration) (bool, error) {
	l.calls++
	return l.granted, l.err
}

func (l *fakeLease) Release(context.Context) error { return nil }

var cfg = config.SchedulerConfig{Interval: time.Second, LeaseTTL: 2 * time.Second}

func TestSweepIsolatesFailures(t *testing.T) {
	logger.Discard()
	a := &fakeAuction{
		lapsed:  []uint64{1, 2, 3},
		overdue: []uint64{4, 5},
		failOn:  map[uint64]bool{2: true, 4: true},
	}
	r := New(a, nil, cfg, nil).Sweep(context.Background())

	assert.Equal(t, Report{Resolved: 2, Expired: 1, Failed: 2}, r)
	assert.Equal(t, []uint64{1, 3}, a.resolved)
	assert.Equal(t, []uint64{5}, a.expired)
	assert.Empty(t, a.openedFor, "auto-open disabled")
}

func TestSweepAutoOpens(t *testing.T) {
	logger.Discard()
	a := &fakeAuction{autoOpen: true, live: []model.Livestream{{ID: 7}, {ID: 8}}}
	r := New(a, nil, cfg, nil).Sweep(context.Background())
	assert.Equal(t, 2, r.Opened)
	assert.Equal(t, []uint64{7, 8}, a.openedFor)
}

func TestSweepContinuesAfterListFailure(t *testing.T) {
	logger.Discard()
	a := &fakeAuction{listErr: errors.New("db down"), overdue: []uint64{9}}
	r := New(a, nil, cfg, nil).Sweep(context.Background())
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 1, r.Expired)
}

func TestTickHonoursLease(t *testing.T) {
	logger.Discard()
	a := &fakeAuction{lapsed: []uint64{1}}

	held := &fakeLease{granted: false}
	r := New(a, held, cfg, nil).Tick(context.Background())
	assert.True(t, r.Skipped)
	assert.Empty(t, a.resolved)

	granted := &fakeLease{granted: true}
	r = New(a, granted, cfg, nil).Tick(context.Background())
	assert.Equal(t, 1, r.Resolved)

	broken := &fakeLease{err: errors.New("redis unreachable")}
	r = New(a, broken, cfg, nil).Tick(context.Background())
	assert.False(t, r.Skipped)
	assert.Equal(t, 1, broken.calls)
}

func TestStartStopsOnCancel(t *testing.T) {
	logger.Discard()
	a := &fakeAuction{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(a, &fakeLease{granted: true}, config.SchedulerConfig{Interval: 10 * time.Millisecond}, nil).Start(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
