package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis pub/sub channel used when none is configured.
const DefaultChannel = "direcciones:fullcard"

// envelope tags a snapshot with the instance that built it.
type envelope struct {
	Origin   string   `json:"origin"`
	Snapshot Snapshot `json:"snapshot"`
}

// RedisRelay shares snapshots between instances over Redis pub/sub. Each
// instance forwards what it publishes and rebroadcasts what its peers
// publish, ignoring its own messages so local subscribers see every
// mutation exactly once.
type RedisRelay struct {
	client   *redis.Client
	channel  string
	instance string
	bus      *Bus
	log      *zap.Logger
}

// NewRedisRelay creates a relay for bus on channel.
func NewRedisRelay(client *redis.Client, channel string, bus *Bus, logger *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{
		client:   client,
		channel:  channel,
		instance: uuid.NewString(),
		bus:      bus,
		log:      logger,
	}
}

// Instance returns the id stamped on forwarded snapshots.
func (r *RedisRelay) Instance() string { return r.instance }

// Forward publishes snap for the other instances.
func (r *RedisRelay) Forward(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(envelope{Origin: r.instance, Snapshot: snap})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Run receives peer snapshots until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := pubsub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("snapshot relay subscribed",
		zap.String("channel", r.channel),
		zap.String("instance", r.instance))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

// handle rebroadcasts a peer snapshot. It reports whether the payload was
// delivered locally.
func (r *RedisRelay) handle(payload string) bool {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warn("discarding malformed relay message", zap.Error(err))
		return false
	}
	if env.Origin == r.instance {
		return false
	}
	r.bus.Broadcast(env.Snapshot)
	return true
}
