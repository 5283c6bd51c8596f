package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/metrics"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/notify"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeCards struct {
	cards []models.Card
	err   error
}

func (f *fakeCards) List(context.Context, string) ([]models.Card, error) {
	return f.cards, f.err
}

// gatedCards parks the first List call on release after capturing the card
// set, so a later publish can overtake it.
type gatedCards struct {
	mu      sync.Mutex
	cards   []models.Card
	gated   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCards) List(context.Context, string) ([]models.Card, error) {
	g.mu.Lock()
	out := append([]models.Card(nil), g.cards...)
	wait := !g.gated
	g.gated = true
	g.mu.Unlock()
	if wait {
		close(g.entered)
		<-g.release
	}
	return out, nil
}

func (g *gatedCards) add(c models.Card) {
	g.mu.Lock()
	g.cards = append(g.cards, c)
	g.mu.Unlock()
}

type fakeAddrs struct {
	mu    sync.Mutex
	calls int
	byID  map[primitive.ObjectID]models.Address
}

func (f *fakeAddrs) GetMany(_ context.Context, ids []primitive.ObjectID) ([]models.Address, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	out := []models.Address{}
	for _, id := range ids {
		if a, ok := f.byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

type recordingForwarder struct {
	snaps []notify.Snapshot
}

func (r *recordingForwarder) Forward(_ context.Context, s notify.Snapshot) error {
	r.snaps = append(r.snaps, s)
	return nil
}

func receive(t *testing.T, s *notify.Subscription) notify.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return notify.Snapshot{}
}

func newAddr(id primitive.ObjectID, number string) models.Address {
	return models.Address{ID: id, Street: "rua a", Number: number, Group: "g1"}
}

func TestPublish_JoinsAddressesInStreetOrder(t *testing.T) {
	a1, a2, a3, gone := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	addrs := &fakeAddrs{byID: map[primitive.ObjectID]models.Address{
		a1: newAddr(a1, "1"), a2: newAddr(a2, "2"), a3: newAddr(a3, "3"),
	}}
	cards := &fakeCards{cards: []models.Card{
		{ID: primitive.NewObjectID(), Number: 1, Group: "g1", Street: []primitive.ObjectID{a3, a1, gone}},
		{ID: primitive.NewObjectID(), Number: 2, Group: "g2", Street: []primitive.ObjectID{a1, a2}},
		{ID: primitive.NewObjectID(), Number: 3, Group: "g1", Street: []primitive.ObjectID{}},
	}}
	bus := notify.New(cards, addrs, zap.NewNop(), notify.Options{Metrics: metrics.New()})

	sub := bus.Subscribe(context.Background())
	defer sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background()))
	snap := receive(t, sub)

	require.Len(t, snap.Cards, 3)
	assert.Equal(t, 1, addrs.calls, "addresses must be loaded in a single batch")

	first := snap.Cards[0]
	require.Len(t, first.Addresses, 2, "unresolvable ids are dropped")
	assert.Equal(t, a3, first.Addresses[0].ID)
	assert.Equal(t, a1, first.Addresses[1].ID)

	assert.Len(t, snap.Cards[1].Addresses, 2)
	assert.NotNil(t, snap.Cards[2].Addresses)
	assert.Empty(t, snap.Cards[2].Addresses, "cards with no addresses are kept")

	assert.Len(t, snap.ForGroup("g1"), 2)
	assert.Len(t, snap.ForGroup("g2"), 1)
	assert.Empty(t, snap.ForGroup("g3"))
}

func TestPublish_EmptyCardSetStillDelivers(t *testing.T) {
	bus := notify.New(&fakeCards{}, &fakeAddrs{}, zap.NewNop(), notify.Options{})
	sub := bus.Subscribe(context.Background())
	defer sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background()))
	snap := receive(t, sub)
	assert.NotNil(t, snap.Cards)
	assert.Empty(t, snap.Cards)
}

func TestPublish_EverySubscriberOnce(t *testing.T) {
	bus := notify.New(&fakeCards{}, &fakeAddrs{}, zap.NewNop(), notify.Options{})
	subs := []*notify.Subscription{
		bus.Subscribe(context.Background()),
		bus.Subscribe(context.Background()),
		bus.Subscribe(context.Background()),
	}

	require.NoError(t, bus.Publish(context.Background()))
	for _, s := range subs {
		receive(t, s)
		select {
		case <-s.C():
			t.Error("expected exactly one snapshot per publish")
		default:
		}
		s.Unsubscribe()
	}
}

func TestPublish_BuildErrorDeliversNothing(t *testing.T) {
	bus := notify.New(&fakeCards{err: errors.New("db down")}, &fakeAddrs{}, zap.NewNop(), notify.Options{})
	sub := bus.Subscribe(context.Background())
	defer sub.Unsubscribe()

	require.Error(t, bus.Publish(context.Background()))
	select {
	case <-sub.C():
		t.Error("no snapshot expected after a failed build")
	default:
	}
}

func TestBroadcast_DropsOldestWhenFull(t *testing.T) {
	m := metrics.New()
	bus := notify.New(&fakeCards{}, &fakeAddrs{}, zap.NewNop(), notify.Options{Buffer: 2, Metrics: m})
	sub := bus.Subscribe(context.Background())
	defer sub.Unsubscribe()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		bus.Broadcast(notify.Snapshot{At: base.Add(time.Duration(i) * time.Minute)})
	}

	// Only the two newest remain, in order.
	assert.Equal(t, base.Add(3*time.Minute), receive(t, sub).At)
	assert.Equal(t, base.Add(4*time.Minute), receive(t, sub).At)
}

func TestSubscribe_ContextCancelUnsubscribes(t *testing.T) {
	bus := notify.New(&fakeCards{}, &fakeAddrs{}, zap.NewNop(), notify.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	sub := bus.Subscribe(ctx)
	require.Equal(t, 1, bus.Len())

	cancel()
	select {
	case _, ok := <-sub.C():
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("subscription not removed on context cancel")
	}
	assert.Equal(t, 0, bus.Len())

	// Idempotent.
	sub.Unsubscribe()
}

func TestPublish_Forwards(t *testing.T) {
	bus := notify.New(&fakeCards{}, &fakeAddrs{}, zap.NewNop(), notify.Options{})
	fwd := &recordingForwarder{}
	bus.SetForwarder(fwd)

	require.NoError(t, bus.Publish(context.Background()))
	assert.Len(t, fwd.snaps, 1)

	bus.SetForwarder(nil)
	require.NoError(t, bus.Publish(context.Background()))
	assert.Len(t, fwd.snaps, 1)
}

func TestPublish_SlowBuildDoesNotOverwriteNewerSnapshot(t *testing.T) {
	cards := &gatedCards{
		cards:   []models.Card{{ID: primitive.NewObjectID(), Number: 1, Group: "g1"}},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	bus := notify.New(cards, &fakeAddrs{}, zap.NewNop(), notify.Options{})
	fwd := &recordingForwarder{}
	bus.SetForwarder(fwd)
	sub := bus.Subscribe(context.Background())
	defer sub.Unsubscribe()

	slow := make(chan error, 1)
	go func() { slow <- bus.Publish(context.Background()) }()
	<-cards.entered

	cards.add(models.Card{ID: primitive.NewObjectID(), Number: 2, Group: "g1"})
	require.NoError(t, bus.Publish(context.Background()))

	close(cards.release)
	require.NoError(t, <-slow)

	assert.Len(t, receive(t, sub).Cards, 2)
	select {
	case snap := <-sub.C():
		t.Errorf("stale snapshot with %d cards delivered after the newer one", len(snap.Cards))
	case <-time.After(50 * time.Millisecond):
	}
	require.Len(t, fwd.snaps, 1)
	assert.Len(t, fwd.snaps[0].Cards, 2)
}
