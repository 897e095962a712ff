package samplebus

import (
	"time"

	"github.com/okian/syncgaze/pkg/logger"
)

// Option applies a configuration option to the Bus.
type Option func(*Bus)

// WithClock sets the timestamp source.
func WithClock(c Clock) Option {
	return func(b *Bus) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithBufferSize sets the per-subscription channel capacity.
func WithBufferSize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithLogger sets a custom logger for the bus.
func WithLogger(l logger.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*Subscription)

// WithThrottle forwards at most one sample per interval. Samples arriving
// sooner than interval after the last forwarded one are discarded.
func WithThrottle(interval time.Duration) SubscribeOption {
	return func(s *Subscription) {
		if interval > 0 {
			s.throttleMs = interval.Milliseconds()
		}
	}
}
