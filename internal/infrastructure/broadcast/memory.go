package broadcast

import (
	"context"
	"sync"

	"fixhub/pkg/logger"
)

const subscriptionBuffer = 64

// memoryBroadcaster fans out events to in-process subscribers. It is the
// default driver: one API process, one logical channel per conversation.
type memoryBroadcaster struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
}

func NewMemoryBroadcaster() Broadcaster {
	return &memoryBroadcaster{
		topics: make(map[string]map[*Subscription]struct{}),
	}
}

func (b *memoryBroadcaster) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.topics[topic] {
		select {
		case sub.events <- event:
		default:
			// Slow consumer: drop rather than block the publisher. The
			// message itself is already durable and shows up on next poll.
			logger.Warn("broadcast: dropping %s event for slow subscriber on %s", event.Type, topic)
		}
	}
	return nil
}

func (b *memoryBroadcaster) Subscribe(topic string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sub *Subscription
	sub = newSubscription(topic, subscriptionBuffer, func() {
		b.unsubscribe(topic, sub)
	})

	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*Subscription]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	return sub, nil
}

func (b *memoryBroadcaster) unsubscribe(topic string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
	close(sub.events)
}
