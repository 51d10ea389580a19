package redis

import (
	"context"

	"github.com/makerhub/reputation-engine/internal/infrastructure/messaging"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUB/SUB ADAPTER
// Bridges the go-redis client to the event bus's RedisClient contract so
// multi-instance deployments can fan events out over a Redis channel.
// ══════════════════════════════════════════════════════════════════════════════

// PubSubAdapter adapts a Cache's Redis client to messaging.RedisClient.
type PubSubAdapter struct {
	cache *Cache
}

// NewPubSubAdapter creates a new PubSubAdapter.
func NewPubSubAdapter(cache *Cache) *PubSubAdapter {
	return &PubSubAdapter{cache: cache}
}

// Publish sends a message to the given channel.
func (a *PubSubAdapter) Publish(ctx context.Context, channel string, message interface{}) error {
	return a.cache.Client().Publish(ctx, channel, message).Err()
}

// Subscribe listens on the given channels and forwards messages until the
// context is cancelled.
func (a *PubSubAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.RedisMessage, error) {
	pubsub := a.cache.Client().Subscribe(ctx, channels...)

	// Confirm the subscription before handing back the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan messaging.RedisMessage)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out <- messaging.RedisMessage{
					Channel: msg.Channel,
					Payload: msg.Payload,
				}
			}
		}
	}()

	return out, nil
}

// Close is a no-op; the underlying client is owned by the Cache.
func (a *PubSubAdapter) Close() error {
	return nil
}
