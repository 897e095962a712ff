// Package samplebus carries gaze, pointer and target samples from their
// producers to the single consumer attached to each stream.
//
// Publishing never blocks: a sample is stamped, filtered by the subscriber's
// throttle and then either handed over or dropped.
package samplebus

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/pkg/logger"
	"github.com/okian/syncgaze/pkg/metrics"
)

const defaultBufferSize = 256

// Drop reasons reported to metrics.
const (
	dropNull         = "null"
	dropNoSubscriber = "no_subscriber"
	dropThrottled    = "throttled"
	dropBufferFull   = "buffer_full"
	dropClosed       = "closed"
)

// Delivery is a sample tagged with the generation of the subscription that
// accepted it. Consumers compare Gen with their current generation to
// discard deliveries from a superseded subscription.
type Delivery struct {
	Gen    uint64
	Sample model.Sample
}

// Bus is a set of single-consumer streams.
type Bus struct {
	mu         sync.Mutex
	clock      Clock
	bufferSize int
	nextGen    uint64
	subs       map[model.StreamKind]*Subscription
	closed     bool
	logger     logger.Logger
}

// New creates a bus with a monotonic clock unless overridden.
func New(opts ...Option) *Bus {
	b := &Bus{
		clock:      NewMonotonicClock(),
		bufferSize: defaultBufferSize,
		subs:       make(map[model.StreamKind]*Subscription, len(model.Streams)),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.Get().Named("samplebus")
	}
	return b
}

// Now returns the bus clock reading.
func (b *Bus) Now() int64 {
	return b.clock.NowMs()
}

// Subscribe attaches the consumer of stream. A stream has at most one
// subscriber; a second call fails with ErrStreamBusy until the first
// subscription is closed.
func (b *Bus) Subscribe(stream model.StreamKind, opts ...SubscribeOption) (*Subscription, error) {
	if stream > model.StreamTarget {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStream, stream)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if _, ok := b.subs[stream]; ok {
		return nil, fmt.Errorf("%w: %s", ErrStreamBusy, stream)
	}

	b.nextGen++
	s := &Subscription{
		bus:    b,
		stream: stream,
		gen:    b.nextGen,
		ch:     make(chan Delivery, b.bufferSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	b.subs[stream] = s
	metrics.UpdateBusSubscribers(stream.String(), 1)
	b.logger.Debug(context.Background(), "stream subscribed",
		logger.String("stream", stream.String()),
		logger.Any("gen", s.gen),
		logger.Int64("throttleMs", s.throttleMs))
	return s, nil
}

// Publish stamps p with the bus clock and offers it to the stream's
// subscriber. A nil p is a valid "no estimate" signal from the producer and
// is dropped. It reports whether the sample was delivered.
func (b *Bus) Publish(stream model.StreamKind, p *model.Point) bool {
	if p == nil {
		metrics.RecordSampleDropped(stream.String(), dropNull)
		return false
	}
	return b.PublishSample(model.Sample{
		Stream:      stream,
		X:           p.X,
		Y:           p.Y,
		TimestampMs: b.clock.NowMs(),
	})
}

// PublishSample offers an already stamped sample.
func (b *Bus) PublishSample(s model.Sample) bool {
	name := s.Stream.String()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		metrics.RecordSampleDropped(name, dropClosed)
		return false
	}
	sub, ok := b.subs[s.Stream]
	if !ok {
		metrics.RecordSampleDropped(name, dropNoSubscriber)
		return false
	}
	if sub.throttleMs > 0 && sub.forwarded && s.TimestampMs-sub.lastForwardedMs < sub.throttleMs {
		metrics.RecordSampleDropped(name, dropThrottled)
		return false
	}

	select {
	case sub.ch <- Delivery{Gen: sub.gen, Sample: s}:
		sub.forwarded = true
		sub.lastForwardedMs = s.TimestampMs
		metrics.RecordSamplePublished(name)
		return true
	default:
		metrics.RecordSampleDropped(name, dropBufferFull)
		return false
	}
}

// Subscribed reports whether stream currently has a consumer.
func (b *Bus) Subscribed(stream model.StreamKind) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[stream]
	return ok
}

// Close detaches every subscriber. Later publishes are dropped and later
// subscriptions fail with ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for stream, sub := range b.subs {
		sub.closeLocked()
		delete(b.subs, stream)
	}
}

func (b *Bus) release(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return
	}
	s.closeLocked()
	if cur, ok := b.subs[s.stream]; ok && cur == s {
		delete(b.subs, s.stream)
	}
	b.logger.Debug(context.Background(), "stream released",
		logger.String("stream", s.stream.String()),
		logger.Any("gen", s.gen))
}

// Subscription is the consumer end of one stream.
type Subscription struct {
	bus             *Bus
	stream          model.StreamKind
	gen             uint64
	ch              chan Delivery
	throttleMs      int64
	lastForwardedMs int64
	forwarded       bool
	closed          bool
}

// C returns the delivery channel. It is closed when the subscription is.
func (s *Subscription) C() <-chan Delivery {
	return s.ch
}

// Generation identifies this subscription among all subscriptions of the bus.
func (s *Subscription) Generation() uint64 {
	return s.gen
}

// Stream returns the subscribed stream.
func (s *Subscription) Stream() model.StreamKind {
	return s.stream
}

// Close detaches the subscription. It is idempotent.
func (s *Subscription) Close() {
	s.bus.release(s)
}

func (s *Subscription) closeLocked() {
	s.closed = true
	close(s.ch)
	metrics.UpdateBusSubscribers(s.stream.String(), 0)
}
