// Package notify fans full-card snapshots out to live subscribers.
//
// A Bus is built once at startup and handed to every service that mutates
// cards or their addresses. Publish rebuilds the complete joined card view
// and delivers it to every subscriber without ever blocking on one: each
// subscriber has a small buffer and, when it is full, the oldest pending
// snapshot is discarded.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/metrics"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscriber buffer used when Options.Buffer is unset.
const DefaultBuffer = 4

// CardSource lists every card. *cardstore.Store implements it.
type CardSource interface {
	List(ctx context.Context, group string) ([]models.Card, error)
}

// AddressSource loads addresses in one batch. *addressstore.Store implements it.
type AddressSource interface {
	GetMany(ctx context.Context, ids []primitive.ObjectID) ([]models.Address, error)
}

// Forwarder carries locally published snapshots to other instances.
type Forwarder interface {
	Forward(ctx context.Context, snap Snapshot) error
}

// Snapshot is the complete joined card view at one point in time.
type Snapshot struct {
	At    time.Time         `json:"at"`
	Cards []models.FullCard `json:"cards"`
}

// ForGroup returns the cards of snap that belong to group.
func (s Snapshot) ForGroup(group string) []models.FullCard {
	out := make([]models.FullCard, 0, len(s.Cards))
	for _, c := range s.Cards {
		if c.Group == group {
			out = append(out, c)
		}
	}
	return out
}

// Options tunes a Bus.
type Options struct {
	Buffer  int
	Metrics *metrics.Metrics
}

// Bus owns the subscriber set.
type Bus struct {
	cards   CardSource
	addrs   AddressSource
	log     *zap.Logger
	metrics *metrics.Metrics
	buffer  int

	mu   sync.RWMutex
	subs map[string]*Subscription

	seq     atomic.Uint64 // taken by Publish before Build
	sendMu  sync.Mutex    // serializes delivery so subscribers see snapshots in order
	lastSeq uint64        // guarded by sendMu

	fwdMu sync.RWMutex
	fwd   Forwarder
}

// New creates a Bus reading cards and addresses from the given sources.
func New(cards CardSource, addrs AddressSource, logger *zap.Logger, opts Options) *Bus {
	if opts.Buffer < 1 {
		opts.Buffer = DefaultBuffer
	}
	return &Bus{
		cards:   cards,
		addrs:   addrs,
		log:     logger,
		metrics: opts.Metrics,
		buffer:  opts.Buffer,
		subs:    make(map[string]*Subscription),
	}
}

// SetForwarder attaches a cross-instance forwarder. Passing nil detaches it.
func (b *Bus) SetForwarder(f Forwarder) {
	b.fwdMu.Lock()
	b.fwd = f
	b.fwdMu.Unlock()
}

// Subscription is one live listener.
type Subscription struct {
	id   string
	ch   chan Snapshot
	bus  *Bus
	once sync.Once
	done chan struct{}
}

// ID returns the subscription id.
func (s *Subscription) ID() string { return s.id }

// C delivers snapshots. It is closed after Unsubscribe.
func (s *Subscription) C() <-chan Snapshot { return s.ch }

// Unsubscribe removes the subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.bus.remove(s.id)
	})
}

// Subscribe registers a listener that lives until Unsubscribe is called or
// ctx is done.
func (b *Bus) Subscribe(ctx context.Context) *Subscription {
	s := &Subscription{
		id:   uuid.NewString(),
		ch:   make(chan Snapshot, b.buffer),
		bus:  b,
		done: make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[s.id] = s
	n := len(b.subs)
	b.mu.Unlock()
	b.metrics.SetSubscribers(n)

	go func() {
		select {
		case <-ctx.Done():
			s.Unsubscribe()
		case <-s.done:
		}
	}()
	return s
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	s, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(s.ch)
	}
	n := len(b.subs)
	b.mu.Unlock()
	b.metrics.SetSubscribers(n)
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish builds a fresh snapshot, delivers it to local subscribers and
// forwards it to other instances when a forwarder is attached. A snapshot
// whose build started before one that was already delivered is stale and
// is discarded.
func (b *Bus) Publish(ctx context.Context) error {
	seq := b.seq.Add(1)
	snap, err := b.Build(ctx)
	if err != nil {
		return err
	}
	if !b.broadcastSeq(seq, snap) {
		b.log.Debug("stale snapshot discarded", zap.Uint64("seq", seq))
		return nil
	}

	b.fwdMu.RLock()
	fwd := b.fwd
	b.fwdMu.RUnlock()
	if fwd != nil {
		if err := fwd.Forward(ctx, snap); err != nil {
			b.log.Warn("snapshot forward failed", zap.Error(err))
		}
	}
	return nil
}

// Build loads every card, resolves all referenced addresses with a single
// batch lookup and joins them in memory, keeping each card's street order.
// Ids that no longer resolve are dropped from the joined list.
func (b *Bus) Build(ctx context.Context) (Snapshot, error) {
	start := time.Now()

	cards, err := b.cards.List(ctx, "")
	if err != nil {
		return Snapshot{}, err
	}

	addrs, err := b.addrs.GetMany(ctx, models.StreetIDs(cards))
	if err != nil {
		return Snapshot{}, err
	}

	out := models.JoinAddresses(cards, addrs)
	for _, fc := range out {
		if len(fc.Addresses) == 0 {
			b.log.Debug("card has no resolvable addresses",
				zap.String("card_id", fc.ID.Hex()),
				zap.Int("number", fc.Number),
				zap.Int("street_ids", len(fc.Street)))
		}
	}

	b.metrics.ObserveSnapshot(start)
	return Snapshot{At: time.Now().UTC(), Cards: out}, nil
}

// Broadcast delivers snap to every local subscriber without blocking.
func (b *Bus) Broadcast(snap Snapshot) {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	b.deliverAll(snap)
}

func (b *Bus) broadcastSeq(seq uint64, snap Snapshot) bool {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	if seq <= b.lastSeq {
		return false
	}
	b.lastSeq = seq
	b.deliverAll(snap)
	return true
}

// deliverAll must be called with sendMu held.
func (b *Bus) deliverAll(snap Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		b.deliver(s, snap)
	}
}

func (b *Bus) deliver(s *Subscription, snap Snapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		// Full: drop the oldest pending snapshot and try again.
		select {
		case <-s.ch:
			b.metrics.SnapshotDropped()
			b.log.Debug("subscriber behind; dropped oldest snapshot", zap.String("subscription", s.id))
		default:
		}
	}
}
