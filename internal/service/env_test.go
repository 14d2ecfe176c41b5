package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/crate-auction/internal/config"
	"github.com/iliyamo/crate-auction/internal/database"
	"github.com/iliyamo/crate-auction/internal/logger"
	"github.com/iliyamo/crate-auction/internal/model"
	"github.com/iliyamo/crate-auction/internal/notify"
	"github.com/iliyamo/crate-auction/internal/payment"
	"github.com/iliyamo/crate-auction/internal/queue"
	"github.com/iliyamo/crate-auction/internal/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// spyNotifier passes events to the real sink and keeps alerts and
// forwards for inspection.
type spyNotifier struct {
	*notify.Sink
	mu       sync.Mutex
	alerts   []notify.Alert
	forwards []queue.PurchaseForward
}

func (s *spyNotifier) Alert(_ context.Context, a notify.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *spyNotifier) Forward(_ context.Context, f queue.PurchaseForward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forwards = append(s.forwards, f)
	return nil
}

type testEnv struct {
	db          *sql.DB
	clock       *fakeClock
	notifier    *spyNotifier
	sessions    *repository.SessionRepo
	bids        *repository.BidRepo
	crate       *repository.CrateRepo
	feed        *repository.FeedRepo
	users       *repository.UserRepo
	livestreams *repository.LivestreamRepo
	auction     *AuctionService
	payments    *PaymentService
	provider    *fakeProvider
}

var (
	admin = Actor{ID: "admin_1", Role: RoleAdmin}
	userA = Actor{ID: "user_a", Role: RoleUser}
	userC = Actor{ID: "user_c", Role: RoleUser}
)

func newTestEnv(t *testing.T, mutate ...func(*config.AuctionConfig)) *testEnv {
	t.Helper()
	logger.Discard()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "auction.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))

	cfg := config.DefaultAuctionConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	e := &testEnv{
		db:          db,
		clock:       &fakeClock{t: time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)},
		sessions:    repository.NewSessionRepo(db),
		bids:        repository.NewBidRepo(db),
		crate:       repository.NewCrateRepo(db),
		feed:        repository.NewFeedRepo(db),
		users:       repository.NewUserRepo(db),
		livestreams: repository.NewLivestreamRepo(db),
		provider:    &fakeProvider{},
	}
	e.notifier = &spyNotifier{Sink: notify.NewSink(e.feed, e.users, nil)}
	e.auction = NewAuctionService(AuctionDeps{
		DB: db, Sessions: e.sessions, Bids: e.bids, Users: e.users, Livestreams: e.livestreams,
		Feed: e.feed, Notifier: e.notifier, Config: cfg, Clock: e.clock,
	})
	e.payments = NewPaymentService(PaymentDeps{
		DB: db, Sessions: e.sessions, Bids: e.bids, Crate: e.crate,
		Provider: e.provider, Notifier: e.notifier, Clock: e.clock,
	})

	ctx := context.Background()
	for _, p := range []model.Profile{
		{ID: userA.ID, Alias: "Ada", AvatarURL: "https://cdn/ada.png"},
		{ID: userC.ID, Alias: "Cy"},
	} {
		require.NoError(t, e.users.Upsert(ctx, p))
	}
	return e
}

func (e *testEnv) livestream(t *testing.T) uint64 {
	t.Helper()
	started := e.clock.Now().Add(-10 * time.Minute).UnixMilli()
	ls := &model.Livestream{Title: "evening drop", IsLive: true, StartedAt: &started}
	require.NoError(t, e.livestreams.Create(context.Background(), ls))
	return ls.ID
}

func (e *testEnv) open(t *testing.T, livestreamID uint64, ts uint32) *model.BiddingSession {
	t.Helper()
	sess, err := e.auction.OpenBidding(context.Background(), admin, livestreamID, ts)
	require.NoError(t, err)
	return sess
}

func (e *testEnv) session(t *testing.T, id uint64) *model.BiddingSession {
	t.Helper()
	var sess *model.BiddingSession
	require.NoError(t, inTx(context.Background(), e.db, func(tx *sql.Tx) error {
		var err error
		sess, err = e.sessions.GetTx(context.Background(), tx, id)
		return err
	}))
	return sess
}

func (e *testEnv) bidsOf(t *testing.T, sessionID uint64) []model.Bid {
	t.Helper()
	rows, err := e.db.QueryContext(context.Background(),
		`SELECT id, session_id, bidder_id, amount, status, created_at FROM bids WHERE session_id = ? ORDER BY id`, sessionID)
	require.NoError(t, err)
	defer rows.Close()
	var bids []model.Bid
	for rows.Next() {
		var (
			b      model.Bid
			status string
		)
		require.NoError(t, rows.Scan(&b.ID, &b.SessionID, &b.BidderID, &b.Amount, &status, &b.CreatedAt))
		b.Status = model.BidStatus(status)
		bids = append(bids, b)
	}
	require.NoError(t, rows.Err())
	return bids
}

func (e *testEnv) feedCount(t *testing.T, sessionID uint64, kind model.FeedKind) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM feed_events WHERE session_id = ? AND kind = ?`, sessionID, string(kind)).Scan(&n))
	return n
}

func countStatus(bids []model.Bid, st model.BidStatus) int {
	n := 0
	for _, b := range bids {
		if b.Status == st {
			n++
		}
	}
	return n
}

type fakeProvider struct {
	mu       sync.Mutex
	created  []payment.CheckoutRequest
	sessions map[string]*payment.CheckoutSession
	err      error
}

func (f *fakeProvider) CreateCheckout(_ context.Context, req payment.CheckoutRequest) (*payment.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	return &payment.Checkout{ID: "cs_test", RedirectURL: "https://pay.example/cs_test"}, nil
}

func (f *fakeProvider) GetCheckout(_ context.Context, id string) (*payment.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	cs, ok := f.sessions[id]
	if !ok {
		return nil, &payment.UpstreamError{Op: "get checkout", StatusCode: 404, Message: "No such checkout"}
	}
	return cs, nil
}
