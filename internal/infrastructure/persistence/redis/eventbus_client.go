package redis

import (
	"context"

	"github.com/eduhub/assessment-engine/internal/infrastructure/messaging"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT BUS CLIENT ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

// EventBusClient adapts Cache to the messaging.RedisClient interface so the
// Redis event bus can ride on the same connection pool as the cache.
type EventBusClient struct {
	cache *Cache
}

// NewEventBusClient creates an adapter over an existing cache client.
func NewEventBusClient(cache *Cache) *EventBusClient {
	return &EventBusClient{cache: cache}
}

// Publish implements messaging.RedisClient.
func (c *EventBusClient) Publish(ctx context.Context, channel string, message interface{}) error {
	// The bus hands over an already-serialized envelope string; publish it
	// raw instead of double-encoding through Cache.Publish.
	if s, ok := message.(string); ok {
		return c.cache.Client().Publish(ctx, channel, s).Err()
	}
	return c.cache.Publish(ctx, channel, message)
}

// Subscribe implements messaging.RedisClient. The returned channel closes
// when ctx is cancelled.
func (c *EventBusClient) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.RedisMessage, error) {
	pubsub := c.cache.Subscribe(ctx, channels...)

	// Confirm the subscription before returning.
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
				select {
				case out <- messaging.RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close implements messaging.RedisClient. The underlying cache connection
// is shared, so closing the adapter is a no-op.
func (c *EventBusClient) Close() error {
	return nil
}
