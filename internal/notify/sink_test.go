package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/crate-auction/internal/model"
	"github.com/iliyamo/crate-auction/internal/queue"
	"github.com/iliyamo/crate-auction/internal/repository"
)

type memFeed struct {
	events []model.FeedEvent
	err    error
}

func (m *memFeed) Insert(_ context.Context, e *model.FeedEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, *e)
	return nil
}

type profiles map[string]model.Profile

func (p profiles) GetProfile(_ context.Context, id string) (*model.Profile, error) {
	if v, ok := p[id]; ok {
		return &v, nil
	}
	return nil, repository.ErrNotFound
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs map[string][]any
	err  error
}

func (r *recordingPublisher) Publish(_ context.Context, q string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.msgs == nil {
		r.msgs = map[string][]any{}
	}
	r.msgs[q] = append(r.msgs[q], v)
	return nil
}

func fixedNow() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func TestRecordTagsActorAndPublishes(t *testing.T) {
	feed := &memFeed{}
	pub := &recordingPublisher{}
	s := NewSink(feed, profiles{"u1": {ID: "u1", Alias: "neo", AvatarURL: "https://a/neo.png"}}, pub)
	s.now = fixedNow

	err := s.Record(context.Background(), Event{Kind: model.FeedOutbid, LivestreamID: 3, SessionID: 7, ActorID: "u1", Amount: 1500})
	require.NoError(t, err)

	require.Len(t, feed.events, 1)
	got := feed.events[0]
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "neo", got.ActorAlias)
	assert.Equal(t, "https://a/neo.png", got.ActorAvatar)
	assert.Equal(t, "neo raised the bid to 15.00", got.Message)
	assert.Equal(t, fixedNow().UnixMilli(), got.CreatedAt)

	require.Len(t, pub.msgs[queue.QueueFeed], 1)
	ev := pub.msgs[queue.QueueFeed][0].(queue.AuctionEvent)
	assert.Equal(t, got.ID, ev.ID)
	assert.Equal(t, "outbid", ev.Kind)
}

func TestRecordUnknownProfileFallsBackToID(t *testing.T) {
	feed := &memFeed{}
	s := NewSink(feed, profiles{}, nil)

	require.NoError(t, s.Record(context.Background(), Event{Kind: model.FeedBid, SessionID: 1, ActorID: "user_42", Amount: 1000}))
	assert.Equal(t, "user_42 opened the bidding at 10.00", feed.events[0].Message)
	assert.Empty(t, feed.events[0].ActorAlias)
}

func TestRecordBrokerFailureIsNotAnError(t *testing.T) {
	feed := &memFeed{}
	s := NewSink(feed, nil, &recordingPublisher{err: errors.New("broker down")})

	require.NoError(t, s.Record(context.Background(), Event{Kind: model.FeedClosed, SessionID: 1}))
	assert.Len(t, feed.events, 1)
}

func TestRecordFeedFailureIsReported(t *testing.T) {
	s := NewSink(&memFeed{err: errors.New("disk full")}, nil, nil)
	assert.Error(t, s.Record(context.Background(), Event{Kind: model.FeedWon, SessionID: 1}))
}

func TestAlertAndForwardRouteToQueues(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewSink(&memFeed{}, nil, pub)

	require.NoError(t, s.Alert(context.Background(), Alert{Reason: "winner_mismatch", SessionID: 9, Detail: "bidder mismatch"}))
	require.NoError(t, s.Forward(context.Background(), queue.PurchaseForward{Kind: "tip", PaymentRef: "cs_1"}))

	assert.Len(t, pub.msgs[queue.QueueAlerts], 1)
	require.Len(t, pub.msgs["purchases.tip"], 1)
	assert.NotEmpty(t, pub.msgs["purchases.tip"][0].(queue.PurchaseForward).ReceivedAt)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "10.00", FormatAmount(1000))
	assert.Equal(t, "0.05", FormatAmount(5))
	assert.Equal(t, "-1.50", FormatAmount(-150))
}
