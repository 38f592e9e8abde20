package broadcast

import (
	"context"
	"sync"
)

// Broadcaster is a best-effort, non-durable publish/subscribe channel keyed by
// conversation topic. Publish never fails the write that triggered it; callers
// log the returned error and move on.
type Broadcaster interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(topic string) (*Subscription, error)
}

// Subscription yields events for one topic until Close is called. Events from
// a single publisher arrive in publish order; nothing is replayed across
// reconnects.
type Subscription struct {
	topic  string
	events chan Event

	closeOnce sync.Once
	closeFn   func()
}

func newSubscription(topic string, buffer int, closeFn func()) *Subscription {
	return &Subscription{
		topic:   topic,
		events:  make(chan Event, buffer),
		closeFn: closeFn,
	}
}

func (s *Subscription) Topic() string {
	return s.topic
}

// Events returns the event stream. The channel is closed after Close.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.closeFn != nil {
			s.closeFn()
		}
	})
}
