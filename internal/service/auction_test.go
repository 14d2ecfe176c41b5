package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/crate-auction/internal/config"
	"github.com/iliyamo/crate-auction/internal/model"
	"github.com/iliyamo/crate-auction/internal/payment"
)

func TestOpenBidding(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ls := e.livestream(t)

	_, err := e.auction.OpenBidding(ctx, userA, ls, 10)
	assert.ErrorIs(t, err, ErrAuthorization)

	sess := e.open(t, ls, 120)
	assert.Equal(t, model.SessionOpen, sess.Status)
	assert.Nil(t, sess.BiddingEndsAt)
	assert.Nil(t, sess.PaymentDeadline)

	_, err = e.auction.OpenBidding(ctx, admin, ls, 130)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = e.auction.OpenBidding(ctx, admin, 9999, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	// a closed session frees the broadcast
	require.NoError(t, e.auction.CloseBidding(ctx, admin, sess.ID))
	_, err = e.auction.OpenBidding(ctx, System, ls, 140)
	assert.NoError(t, err)
}

func TestConcurrentOpenAllowsOneSession(t *testing.T) {
	e := newTestEnv(t)
	ls := e.livestream(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, clash int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.auction.OpenBidding(context.Background(), admin, ls, uint32(i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrConflict):
				clash++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, clash)
}

func TestPlaceBidAmountsIncreaseMonotonically(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	sess := e.open(t, e.livestream(t), 120)

	bidders := []Actor{userA, userC, userA, userC, userA}
	for i, who := range bidders {
		bid, err := e.auction.PlaceBid(ctx, who, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1000+500*i), bid.Amount)
		assert.Equal(t, model.BidActive, bid.Status)

		all := e.bidsOf(t, sess.ID)
		assert.Equal(t, 1, countStatus(all, model.BidActive), "after bid %d", i)
		assert.Equal(t, i, countStatus(all, model.BidOutbid))
	}
	assert.Equal(t, 1, e.feedCount(t, sess.ID, model.FeedBid))
	assert.Equal(t, len(bidders)-1, e.feedCount(t, sess.ID, model.FeedOutbid))
}

func TestPlaceBidRejectsSelfOutbid(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	sess := e.open(t, e.livestream(t), 0)

	_, err := e.auction.PlaceBid(ctx, userA, sess.ID)
	require.NoError(t, err)
	_, err = e.auction.PlaceBid(ctx, userA, sess.ID)
	assert.ErrorIs(t, err, ErrSelfOutbid)
	assert.Len(t, e.bidsOf(t, sess.ID), 1)
}

func TestPlaceBidRejections(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.auction.PlaceBid(ctx, userA, 12345)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.auction.PlaceBid(ctx, Actor{}, 1)
	assert.ErrorIs(t, err, ErrAuthorization)

	sess := e.open(t, e.livestream(t), 0)
	_, err = e.auction.PlaceBid(ctx, userA, sess.ID)
	require.NoError(t, err)

	// countdown lapsed but not yet resolved: the late bid loses
	e.clock.Advance(61 * time.Second)
	_, err = e.auction.PlaceBid(ctx, userC, sess.ID)
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = e.auction.ResolveExpiry(ctx, sess.ID)
	require.NoError(t, err)
	_, err = e.auction.PlaceBid(ctx, userC, sess.ID)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestPlaceBidResetsCountdown(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	sess := e.open(t, e.livestream(t), 0)

	_, err := e.auction.PlaceBid(ctx, userA, sess.ID)
	require.NoError(t, err)
	first := *e.session(t, sess.ID).BiddingEndsAt
	assert.Equal(t, e.clock.Now().Add(60*time.Second).UnixMilli(), first)

	e.clock.Advance(45 * time.Second)
	_, err = e.auction.PlaceBid(ctx, userC, sess.ID)
	require.NoError(t, err)
	second := *e.session(t, sess.ID).BiddingEndsAt
	assert.Equal(t, e.clock.Now().Add(60*time.Second).UnixMilli(), second)
	assert.Greater(t, second, first)
}

func TestConcurrentBidsOnEmptySession(t *testing.T) {
	e := newTestEnv(t)
	sess := e.open(t, e.livestream(t), 0)

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.auction.PlaceBid(context.Background(), Actor{ID: fmt.Sprintf("racer_%d", i), Role: RoleUser}, sess.ID)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	bids := e.bidsOf(t, sess.ID)
	require.Len(t, bids, n)
	assert.Equal(t, 1, countStatus(bids, model.BidActive))

	amounts := make([]int64, 0, n)
	for _, b := range bids {
		amounts = append(amounts, b.Amount)
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i] < amounts[j] })
	for i, a := range amounts {
		assert.Equal(t, int64(1000+500*i), a, "amounts must be distinct steps")
	}
}

func TestResolveExpiryIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	sess := e.open(t, e.livestream(t), 0)

	_, err := e.auction.PlaceBid(ctx, userA, sess.ID)
	require.NoError(t, err)

	res, err := e.auction.ResolveExpiry(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, res.Resolved, "countdown still running")

	e.clock.Advance(60 * time.Second)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		resolved int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := e.auction.ResolveExpiry(context.Background(), sess.ID)
			assert.NoError(t, err)
			if err == nil && r.Resolved {
				mu.Lock()
				resolved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, resolved)
	bids := e.bidsOf(t, sess.ID)
	assert.Equal(t, 1, countStatus(bids, model.BidWon))
	assert.Equal(t, 1, e.feedCount(t, sess.ID, model.FeedWon))

	got := e.session(t, sess.ID)
	assert.Equal(t, model.SessionPaymentPending, got.Status)
	require.NotNil(t, got.PaymentDeadline)
	assert.Equal(t, e.clock.Now().Add(15*time.Minute).UnixMilli(), *got.PaymentDeadline)
}

func TestResolveExpiryWithoutBidsKeepsSessionOpen(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	sess := e.open(t, e.livestream(t), 0)

	e.clock.Advance(time.Hour)
	res, err := e.auction.ResolveExpiry(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.Equal(t, model.SessionOpen, e.session(t, sess.ID).Status)

	ids, err := e.auction.LapsedSessions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestBasicAuctionScenario(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ls := e.livestream(t)
	sess := e.open(t, ls, 120)

	a, err := e.auction.PlaceBid(ctx, userA, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), a.Amount)

	c, err := e.auction.PlaceBid(ctx, userC, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), c.Amount)

	e.clock.Advance(60 * time.Second)
	res, err := e.auction.ResolveExpiry(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, res.Resolved)
	assert.Equal(t, c.ID, res.Winner.ID)

	statuses := map[uint64]model.BidStatus{}
	for _, b := range e.bidsOf(t, sess.ID) {
		statuses[b.ID] = b.Status
	}
	assert.Equal(t, model.BidOutbid, statuses[a.ID])
	assert.Equal(t, model.BidWon, statuses[c.ID])

	view, err := e.auction.CurrentSession(ctx, ls)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, model.SessionPaymentPending, view.Status)
	assert.Equal(t, "Cy", view.Holder.Alias)
	assert.Nil(t, view.NextBidAmount)

	entry, err := e.payments.CompletePurchase(ctx, "cs_basic", payment.BidPurchase{SessionID: sess.ID, BidderID: userC.ID, Amount: 1500})
	require.NoError(t, err)
	assert.Equal(t, model.CrateEntry{
		ID: entry.ID, OwnerID: userC.ID, LivestreamID: ls, VideoTimestamp: 120,
		PurchaseAmount: 1500, PaymentRef: "cs_basic", PurchasedAt: e.clock.Now().UnixMilli(),
	}, *entry)
	assert.Equal(t, model.SessionSold, e.session(t, sess.ID).Status)
	assert.Equal(t, 1, e.feedCount(t, sess.ID, model.FeedPurchased))

	view, err = e.auction.CurrentSession(ctx, ls)
	require.NoError(t, err)
	assert.Nil(t, view, "sold session is no longer current")
}

func TestAbandonedPaymentScenario(t *testing.T) {
	e := newTestEnv(t, func(c *config.AuctionConfig) { c.PaymentGrace = 10 * time.Minute })
	ctx := context.Background()
	sess := e.open(t, e.livestream(t), 5)

	_, err := e.auction.PlaceBid(ctx, userA, sess.ID)
	require.NoError(t, err)
	e.clock.Advance(time.Minute)
	_, err = e.auction.ResolveExpiry(ctx, sess.ID)
	require.NoError(t, err)

	changed, err := e.auction.ExpireUnpaid(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, changed, "deadline not reached")

	e.clock.Advance(10 * time.Minute)
	ids, err := e.auction.OverdueSessions(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{sess.ID}, ids)

	changed, err = e.auction.ExpireUnpaid(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = e.auction.ExpireUnpaid(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, model.SessionExpired, e.session(t, sess.ID).Status)
	bids := e.bidsOf(t, sess.ID)
	assert.Equal(t, 1, countStatus(bids, model.BidExpired))
	assert.Equal(t, 1, e.feedCount(t, sess.ID, model.FeedExpired))

	entries, err := e.crate.ListByOwner(ctx, userA.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnboundedPaymentWindow(t *testing.T) {
	e := newTestEnv(t, func(c *config.AuctionConfig) { c.PaymentGrace = 0 })
	ctx := context.Background()
	sess := e.open(t, e.livestream(t), 5)

	_, err := e.auction.PlaceBid(ctx, userA, sess.ID)
	require.NoError(t, err)
	e.clock.Advance(time.Minute)
	_, err = e.auction.ResolveExpiry(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, e.session(t, sess.ID).PaymentDeadline)

	e.clock.Advance(30 * 24 * time.Hour)
	changed, err := e.auction.ExpireUnpaid(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestAdminAbortScenario(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	sess := e.open(t, e.livestream(t), 0)

	_, err := e.auction.PlaceBid(ctx, userA, sess.ID)
	require.NoError(t, err)
	_, err = e.auction.PlaceBid(ctx, userC, sess.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, e.auction.CloseBidding(ctx, userA, sess.ID), ErrAuthorization)
	require.NoError(t, e.auction.CloseBidding(ctx, admin, sess.ID))

	bids := e.bidsOf(t, sess.ID)
	assert.Equal(t, 2, countStatus(bids, model.BidExpired))
	assert.Equal(t, 0, countStatus(bids, model.BidWon))
	assert.Equal(t, model.SessionExpired, e.session(t, sess.ID).Status)
	assert.Equal(t, 1, e.feedCount(t, sess.ID, model.FeedClosed))

	assert.ErrorIs(t, e.auction.CloseBidding(ctx, admin, sess.ID), ErrSessionClosed)
	assert.ErrorIs(t, e.auction.CloseBidding(ctx, admin, 777), ErrNotFound)
}

func TestCurrentSessionView(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ls := e.livestream(t)

	view, err := e.auction.CurrentSession(ctx, ls)
	require.NoError(t, err)
	assert.Nil(t, view)

	sess := e.open(t, ls, 42)
	view, err = e.auction.CurrentSession(ctx, ls)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Nil(t, view.CurrentBid)
	assert.Nil(t, view.Holder)
	assert.Equal(t, int64(1000), *view.NextBidAmount)
	assert.Nil(t, view.RemainingMs)

	_, err = e.auction.PlaceBid(ctx, userA, sess.ID)
	require.NoError(t, err)
	e.clock.Advance(20 * time.Second)

	view, err = e.auction.CurrentSession(ctx, ls)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), view.CurrentBid.Amount)
	assert.Equal(t, "Ada", view.Holder.Alias)
	assert.Equal(t, "https://cdn/ada.png", view.Holder.AvatarURL)
	assert.Equal(t, int64(1500), *view.NextBidAmount)
	assert.Equal(t, int64(40_000), *view.RemainingMs)

	feed, err := e.auction.RecentFeed(ctx, ls, 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "Ada", feed[0].ActorAlias)
}

func TestAutoOpenUsesBroadcastOffset(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ls := e.livestream(t)

	live, err := e.auction.LiveWithoutSession(ctx, 10)
	require.NoError(t, err)
	require.Len(t, live, 1)

	sess, err := e.auction.AutoOpen(ctx, live[0])
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, ls, sess.LivestreamID)
	assert.Equal(t, uint32(600), sess.VideoTimestamp)

	again, err := e.auction.AutoOpen(ctx, live[0])
	require.NoError(t, err)
	assert.Nil(t, again)

	live, err = e.auction.LiveWithoutSession(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, live)
}
