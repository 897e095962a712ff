// Package remote adapts an estimator running outside the process, typically
// in the participant's browser, to calibration.Estimator. Gaze estimates are
// pushed in; lifecycle and training commands are sent out through a Sink.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/okian/syncgaze/internal/domain/calibration"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/pkg/metrics"
)

var (
	// ErrNotConnected is returned by Begin when no peer is attached.
	ErrNotConnected = errors.New("estimator peer not connected")
	// ErrQueueFull is returned when a lifecycle command cannot be queued.
	ErrQueueFull = errors.New("estimator peer queue full")
)

// Command kinds sent to the peer.
const (
	CommandBegin = "begin"
	CommandEnd   = "end"
	CommandTrain = "train"
	CommandClear = "clear"
)

// Command is an instruction for the peer estimator.
type Command struct {
	Type string   `json:"type"`
	X    *float64 `json:"x,omitempty"`
	Y    *float64 `json:"y,omitempty"`
}

// DefaultQueueSize is the number of commands buffered per peer.
const DefaultQueueSize = 64

// Sink delivers commands to the peer. Send runs on a writer goroutine owned
// by the feed and may block.
type Sink interface {
	Send(cmd Command) error
}

// outbox queues commands for one peer and writes them in order from its own
// goroutine. Once a Send fails the rest of the queue is discarded.
type outbox struct {
	sink      Sink
	queue     chan Command
	closeOnce sync.Once
}

func newOutbox(s Sink, size int) *outbox {
	o := &outbox{sink: s, queue: make(chan Command, size)}
	go o.run()
	return o
}

func (o *outbox) run() {
	for cmd := range o.queue {
		if err := o.sink.Send(cmd); err != nil {
			for range o.queue {
			}
			return
		}
	}
}

// offer enqueues cmd without blocking.
func (o *outbox) offer(cmd Command) bool {
	select {
	case o.queue <- cmd:
		return true
	default:
		metrics.RecordErrorByComponent("remote_estimator", "queue_full")
		return false
	}
}

func (o *outbox) close() {
	o.closeOnce.Do(func() { close(o.queue) })
}

// Option configures a Feed.
type Option func(*Feed)

// WithQueueSize sets the per-peer command buffer.
func WithQueueSize(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.queueSize = n
		}
	}
}

// Feed is a calibration.Estimator fed by a remote peer. Commands never block
// the caller: they are queued for the attached peer and dropped when its
// queue is full.
type Feed struct {
	mu        sync.Mutex
	out       *outbox
	listener  func(*model.Point)
	active    bool
	trained   int
	dropped   int
	queueSize int
}

var (
	_ calibration.Estimator = (*Feed)(nil)
	_ calibration.Trainer   = (*Feed)(nil)
)

// New returns a detached feed.
func New(opts ...Option) *Feed {
	f := &Feed{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Attach connects a peer. It replaces any previous one and returns a function
// that detaches it again if it is still the current peer.
func (f *Feed) Attach(s Sink) (detach func()) {
	o := newOutbox(s, f.queueSize)

	f.mu.Lock()
	if f.out != nil {
		f.out.close()
	}
	f.out = o
	if f.active {
		f.offerLocked(Command{Type: CommandBegin})
	}
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.out == o {
			f.out = nil
		}
		o.close()
	}
}

// Connected reports whether a peer is attached.
func (f *Feed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out != nil
}

// Dropped returns the number of commands discarded because a peer's queue
// was full.
func (f *Feed) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// offerLocked queues cmd for the current peer. f.mu must be held.
func (f *Feed) offerLocked(cmd Command) bool {
	if f.out == nil {
		return false
	}
	if !f.out.offer(cmd) {
		f.dropped++
		return false
	}
	return true
}

// Push delivers an estimate from the peer. nil means no estimate. Estimates
// arriving while the feed is not started are ignored.
func (f *Feed) Push(p *model.Point) {
	f.mu.Lock()
	fn := f.listener
	active := f.active
	f.mu.Unlock()
	if active && fn != nil {
		fn(p)
	}
}

// Begin asks the peer to start estimating.
func (f *Feed) Begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.out == nil {
		return ErrNotConnected
	}
	if !f.offerLocked(Command{Type: CommandBegin}) {
		return fmt.Errorf("send begin: %w", ErrQueueFull)
	}
	f.active = true
	return nil
}

// End asks the peer to stop.
func (f *Feed) End() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
	if f.out == nil {
		return nil
	}
	if !f.offerLocked(Command{Type: CommandEnd}) {
		return fmt.Errorf("send end: %w", ErrQueueFull)
	}
	return nil
}

// SetGazeListener sets the function receiving pushed estimates.
func (f *Feed) SetGazeListener(fn func(*model.Point)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = fn
}

// ClearGazeListener removes the listener.
func (f *Feed) ClearGazeListener() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = nil
}

// ClearData tells the peer to drop its training data.
func (f *Feed) ClearData() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trained = 0
	f.offerLocked(Command{Type: CommandClear})
}

// Train forwards a known screen position to the peer.
func (f *Feed) Train(x, y float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trained++
	f.offerLocked(Command{Type: CommandTrain, X: &x, Y: &y})
}

// Trained returns the number of training points since the last ClearData.
func (f *Feed) Trained() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trained
}
