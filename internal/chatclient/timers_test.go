package chatclient

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncedEmitterCoalescesBurst(t *testing.T) {
	var fired int32
	d := NewDebouncedEmitter(30*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})

	// A burst of triggers inside the quiet period yields one emit.
	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestDebouncedEmitterCancel(t *testing.T) {
	var fired int32
	d := NewDebouncedEmitter(20*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})

	d.Trigger()
	d.Cancel()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestDebouncedEmitterFiresAgainAfterQuiet(t *testing.T) {
	var fired int32
	d := NewDebouncedEmitter(10*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})

	d.Trigger()
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) == 1
	}, time.Second, 2*time.Millisecond)

	d.Trigger()
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) == 2
	}, time.Second, 2*time.Millisecond)
}

func TestExpiringSetExpires(t *testing.T) {
	s := NewExpiringSet(40*time.Millisecond, nil)

	s.Add("u1", "Dana")
	assert.True(t, s.Contains("u1"))
	assert.Equal(t, []string{"Dana"}, s.Labels())

	assert.Eventually(t, func() bool {
		return !s.Contains("u1")
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, s.Labels())
}

func TestExpiringSetAddResetsTimer(t *testing.T) {
	s := NewExpiringSet(50*time.Millisecond, nil)

	s.Add("u1", "Dana")
	time.Sleep(30 * time.Millisecond)
	s.Add("u1", "Dana")
	time.Sleep(30 * time.Millisecond)

	// 60ms after the first Add but only 30ms after the refresh.
	assert.True(t, s.Contains("u1"))
}

func TestExpiringSetRemoveIsImmediate(t *testing.T) {
	s := NewExpiringSet(time.Hour, nil)

	s.Add("u1", "Dana")
	s.Remove("u1")

	assert.False(t, s.Contains("u1"))
	s.Remove("u1") // removing an absent entry is a no-op
}

func TestExpiringSetClear(t *testing.T) {
	var changes int32
	s := NewExpiringSet(time.Hour, func() {
		atomic.AddInt32(&changes, 1)
	})

	s.Add("u1", "Dana")
	s.Add("u2", "Morgan")
	s.Clear()

	assert.Empty(t, s.Labels())
	assert.Equal(t, int32(3), atomic.LoadInt32(&changes))
}
