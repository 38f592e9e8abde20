package broadcast

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"fixhub/pkg/logger"
)

// redisBroadcaster runs conversation topics over Redis Pub/Sub so several API
// processes can share the same logical channel. Delivery stays best-effort:
// nothing is persisted and disconnected subscribers miss events.
type redisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(client *redis.Client) Broadcaster {
	return &redisBroadcaster{client: client}
}

func (b *redisBroadcaster) Publish(ctx context.Context, topic string, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, topic, raw).Err()
}

func (b *redisBroadcaster) Subscribe(topic string) (*Subscription, error) {
	pubsub := b.client.Subscribe(context.Background(), topic)

	// Force the subscription to be established before returning, so events
	// published right after Subscribe are not silently missed.
	if _, err := pubsub.Receive(context.Background()); err != nil {
		pubsub.Close()
		return nil, err
	}

	sub := newSubscription(topic, subscriptionBuffer, func() {
		pubsub.Close()
	})

	go func() {
		defer close(sub.events)
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn("broadcast: discarding malformed event on %s: %v", topic, err)
				continue
			}
			select {
			case sub.events <- event:
			default:
				logger.Warn("broadcast: dropping %s event for slow subscriber on %s", event.Type, topic)
			}
		}
	}()

	return sub, nil
}
