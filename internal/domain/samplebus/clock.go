package samplebus

import (
	"sync"
	"time"
)

// Clock yields monotonic millisecond timestamps.
type Clock interface {
	NowMs() int64
}

// MonotonicClock measures milliseconds since its creation using the
// monotonic reading of time.Time.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock starts a clock at zero.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// NowMs implements Clock.
func (c *MonotonicClock) NowMs() int64 {
	return time.Since(c.start).Milliseconds()
}

// ManualClock is a Clock advanced explicitly. It is safe for concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock returns a clock reading nowMs.
func NewManualClock(nowMs int64) *ManualClock {
	return &ManualClock{now: nowMs}
}

// NowMs implements Clock.
func (c *ManualClock) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to nowMs. Moving backwards is ignored.
func (c *ManualClock) Set(nowMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if nowMs > c.now {
		c.now = nowMs
	}
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now += d.Milliseconds()
	}
	return c.now
}
