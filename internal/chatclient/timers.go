package chatclient

import (
	"sync"
	"time"
)

// DebouncedEmitter fires its emit callback once the trigger stream has been
// quiet for the configured delay. Every Trigger resets the countdown; Cancel
// drops a pending emit without firing. The send side of typing presence uses
// it so a burst of keystrokes produces one typing_started, not one per key.
type DebouncedEmitter struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	emit  func()
}

func NewDebouncedEmitter(delay time.Duration, emit func()) *DebouncedEmitter {
	return &DebouncedEmitter{
		delay: delay,
		emit:  emit,
	}
}

// Trigger (re)starts the quiet-period countdown.
func (d *DebouncedEmitter) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.emit)
}

// Cancel stops any pending emit. Safe to call when nothing is pending.
func (d *DebouncedEmitter) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// ExpiringSet holds entries that disappear on their own after a TTL unless
// refreshed. The receive side of typing presence keeps active typists in one:
// a repeated typing_started resets the entry's timer, typing_stopped or expiry
// removes it.
type ExpiringSet struct {
	mu       sync.Mutex
	ttl      time.Duration
	values   map[string]string
	timers   map[string]*time.Timer
	onChange func()
}

// NewExpiringSet creates a set with the given TTL. onChange fires after every
// mutation, including expiry, and may be nil.
func NewExpiringSet(ttl time.Duration, onChange func()) *ExpiringSet {
	return &ExpiringSet{
		ttl:      ttl,
		values:   make(map[string]string),
		timers:   make(map[string]*time.Timer),
		onChange: onChange,
	}
}

// Add inserts or refreshes an entry and restarts its expiry timer.
func (s *ExpiringSet) Add(id, label string) {
	s.mu.Lock()
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
	}
	s.values[id] = label
	s.timers[id] = time.AfterFunc(s.ttl, func() {
		s.expire(id)
	})
	s.mu.Unlock()

	s.notify()
}

func (s *ExpiringSet) expire(id string) {
	s.mu.Lock()
	_, ok := s.values[id]
	if ok {
		delete(s.values, id)
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if ok {
		s.notify()
	}
}

// Remove drops an entry and cancels its timer.
func (s *ExpiringSet) Remove(id string) {
	s.mu.Lock()
	_, ok := s.values[id]
	if ok {
		s.timers[id].Stop()
		delete(s.values, id)
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if ok {
		s.notify()
	}
}

// Clear empties the set and cancels every timer.
func (s *ExpiringSet) Clear() {
	s.mu.Lock()
	changed := len(s.values) > 0
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.values = make(map[string]string)
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// Labels returns the current entries' labels in no particular order.
func (s *ExpiringSet) Labels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	labels := make([]string, 0, len(s.values))
	for _, label := range s.values {
		labels = append(labels, label)
	}
	return labels
}

// Contains reports whether id is currently in the set.
func (s *ExpiringSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.values[id]
	return ok
}

func (s *ExpiringSet) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
