// Package session owns one participant session: its sample bus, its
// calibration machine and its record log, all driven from a single
// goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/syncgaze/internal/domain/calibration"
	"github.com/okian/syncgaze/internal/domain/correlate"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/recordlog"
	"github.com/okian/syncgaze/internal/domain/samplebus"
	"github.com/okian/syncgaze/pkg/logger"
)

const (
	initialRecordCapacity = 4096
	maxPump               = 1024
)

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("session loop already running")

// Outcome is what a session hands over for analytics and reporting.
type Outcome struct {
	SessionID   string
	CreatedAt   time.Time
	FinishedAt  *time.Time
	Participant model.Participant
	Calibration model.CalibrationInfo
	Records     []model.CorrelatedRecord
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"createdAt"`
	FinishedAt  *time.Time        `json:"finishedAt,omitempty"`
	Participant model.Participant `json:"participant"`
	Calibration calibration.State `json:"calibration"`
	Records     int               `json:"records"`
}

type command struct {
	fn    func(nowMs int64) error
	reply chan error
}

// Session is the owned state of one participant run. All mutation happens
// on the goroutine executing Run; public methods post commands to it and
// wait for the reply.
type Session struct {
	id          string
	createdAt   time.Time
	participant model.Participant

	clock         samplebus.Clock
	bus           *samplebus.Bus
	machine       *calibration.Machine
	log           *recordlog.Log
	correlator    *correlate.Correlator
	targets       TargetProvider
	frameInterval time.Duration
	maxHitSkew    time.Duration
	machineOpts   []calibration.Option
	busBuffer     int
	logger        logger.Logger

	cmds    chan command
	ready   chan struct{}
	done    chan struct{}
	running atomic.Bool
	closing bool

	mu           sync.RWMutex
	phase        model.Phase
	calibratedAt *time.Time
	finishedAt   *time.Time
}

// New creates a session around est. Call Run to start its loop.
func New(id string, est calibration.Estimator, opts ...Option) *Session {
	s := &Session{
		id:            id,
		createdAt:     time.Now().UTC(),
		clock:         samplebus.NewMonotonicClock(),
		log:           recordlog.New(initialRecordCapacity),
		correlator:    correlate.New(),
		targets:       &TargetBoard{},
		frameInterval: DefaultFrameInterval,
		maxHitSkew:    DefaultMaxHitSkew,
		cmds:          make(chan command),
		ready:         make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("session")
	}
	busOpts := []samplebus.Option{samplebus.WithClock(s.clock), samplebus.WithLogger(s.logger.Named("samplebus"))}
	if s.busBuffer > 0 {
		busOpts = append(busOpts, samplebus.WithBufferSize(s.busBuffer))
	}
	s.bus = samplebus.New(busOpts...)

	machineOpts := append([]calibration.Option{
		calibration.WithTaskSink(&recorder{log: s.log, targets: s.targets}),
		calibration.WithTransitionHook(s.onTransition),
		calibration.WithLogger(s.logger.Named("calibration")),
	}, s.machineOpts...)
	s.machine = calibration.New(s.bus, est, machineOpts...)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Phase returns the active phase without going through the loop.
func (s *Session) Phase() model.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Ready is closed once Run has started accepting commands.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Done is closed when the loop exits.
func (s *Session) Done() <-chan struct{} { return s.done }

// Records returns a copy of the record log.
func (s *Session) Records() []model.CorrelatedRecord { return s.log.Snapshot() }

// Now returns the session clock reading in milliseconds.
func (s *Session) Now() int64 { return s.clock.NowMs() }

// Run executes the session loop until ctx is cancelled or Close is called.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)
	close(s.ready)

	var tick <-chan time.Time
	if s.frameInterval > 0 {
		t := time.NewTicker(s.frameInterval)
		defer t.Stop()
		tick = t.C
	}

	s.logger.Info(ctx, "session loop started", logger.String("session", s.id))
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case cmd := <-s.cmds:
			s.pump()
			cmd.reply <- cmd.fn(s.clock.NowMs())
			if s.closing {
				s.shutdown()
				return nil
			}
		case d, ok := <-s.machine.GazeC():
			s.deliver(model.StreamGaze, d, ok)
		case d, ok := <-s.machine.PointerC():
			s.deliver(model.StreamPointer, d, ok)
		case <-tick:
			s.pump()
			s.frame(ctx, s.clock.NowMs())
		}
	}
}

// pump applies every delivery already queued so that commands and frames
// observe all samples published before them.
func (s *Session) pump() {
	for range maxPump {
		select {
		case d, ok := <-s.machine.GazeC():
			s.deliver(model.StreamGaze, d, ok)
		case d, ok := <-s.machine.PointerC():
			s.deliver(model.StreamPointer, d, ok)
		default:
			return
		}
	}
}

func (s *Session) deliver(stream model.StreamKind, d samplebus.Delivery, ok bool) {
	switch {
	case !ok:
		s.machine.HandleClosed(stream)
	case stream == model.StreamGaze:
		s.machine.HandleGaze(d)
	default:
		s.machine.HandlePointer(d)
	}
}

func (s *Session) frame(ctx context.Context, nowMs int64) {
	if err := s.machine.Tick(nowMs); err != nil {
		s.logger.Error(ctx, "frame failed", logger.String("session", s.id), logger.Error(err))
	}
}

func (s *Session) shutdown() {
	s.machine.Close(s.clock.NowMs())
	s.bus.Close()
	s.logger.Info(context.Background(), "session loop stopped", logger.String("session", s.id))
}

func (s *Session) do(ctx context.Context, fn func(nowMs int64) error) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) onTransition(from, to model.Phase) {
	now := time.Now().UTC()
	s.mu.Lock()
	s.phase = to
	switch to {
	case model.PhaseFaceCheck:
		s.calibratedAt, s.finishedAt = nil, nil
	case model.PhaseTask:
		s.calibratedAt = &now
	case model.PhaseFinished:
		s.finishedAt = &now
	}
	s.mu.Unlock()

	if to == model.PhaseFaceCheck {
		s.log.Clear()
	}
	s.logger.Debug(context.Background(), "session phase",
		logger.String("session", s.id),
		logger.String("from", from.String()),
		logger.String("to", to.String()))
}

// Start begins the estimator and the face check.
func (s *Session) Start(ctx context.Context) error {
	return s.do(ctx, func(now int64) error { return s.machine.Start(ctx, now) })
}

// ConfirmFace advances past face check.
func (s *Session) ConfirmFace(ctx context.Context) error {
	return s.do(ctx, s.machine.ConfirmFace)
}

// Click registers a click on the current calibration dot.
func (s *Session) Click(ctx context.Context) error {
	return s.do(ctx, s.machine.Click)
}

// ConfirmValidation starts the validation window.
func (s *Session) ConfirmValidation(ctx context.Context) error {
	return s.do(ctx, s.machine.ConfirmValidation)
}

// Proceed accepts the validation result.
func (s *Session) Proceed(ctx context.Context) error {
	return s.do(ctx, s.machine.Proceed)
}

// Recalibrate rejects the validation result.
func (s *Session) Recalibrate(ctx context.Context) error {
	return s.do(ctx, s.machine.Recalibrate)
}

// Tick runs one frame at the current clock reading.
func (s *Session) Tick(ctx context.Context) error {
	return s.do(ctx, func(now int64) error {
		s.frame(ctx, now)
		return nil
	})
}

// Hit correlates ev against the log and appends the resulting record. A
// zero timestamp is replaced with the current clock reading; any other must
// lie within the configured skew of it.
func (s *Session) Hit(ctx context.Context, ev model.HitEvent) (model.CorrelatedRecord, error) {
	var rec model.CorrelatedRecord
	err := s.do(ctx, func(now int64) error {
		if p := s.machine.Phase(); p != model.PhaseTask {
			return fmt.Errorf("%w: %s", calibration.ErrInvalidPhase, p)
		}
		if ev.TimestampMs == 0 {
			ev.TimestampMs = now
		}
		if skew := s.maxHitSkew.Milliseconds(); ev.TimestampMs < now-skew || ev.TimestampMs > now+skew {
			return fmt.Errorf("%w: %d is more than %s from %d", ErrTimestampRange, ev.TimestampMs, s.maxHitSkew, now)
		}
		window := s.log.Between(ev.TimestampMs-s.correlator.Horizon(), ev.TimestampMs)
		rec = s.correlator.Correlate(ev, s.targets.Frame(), window)
		s.log.Append(rec)
		return nil
	})
	return rec, err
}

// SetTarget updates the current target frame. It reports false when the
// session uses an external TargetProvider.
func (s *Session) SetTarget(f *model.TargetFrame) bool {
	b, ok := s.targets.(*TargetBoard)
	if ok {
		b.Set(f)
	}
	return ok
}

// PublishPointer feeds a native pointer position into the bus.
func (s *Session) PublishPointer(p *model.Point) bool {
	return s.bus.Publish(model.StreamPointer, p)
}

// Finish ends the task and returns the outcome.
func (s *Session) Finish(ctx context.Context) (*Outcome, error) {
	var out *Outcome
	err := s.do(ctx, func(now int64) error {
		if err := s.machine.Finish(now); err != nil {
			return err
		}
		out = s.outcome()
		return nil
	})
	return out, err
}

// Outcome returns the current outcome without changing phase.
func (s *Session) Outcome(ctx context.Context) (*Outcome, error) {
	var out *Outcome
	err := s.do(ctx, func(int64) error {
		out = s.outcome()
		return nil
	})
	return out, err
}

// State returns a snapshot of the session.
func (s *Session) State(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func(int64) error {
		s.mu.RLock()
		finished := s.finishedAt
		s.mu.RUnlock()
		snap = Snapshot{
			ID:          s.id,
			CreatedAt:   s.createdAt,
			FinishedAt:  finished,
			Participant: s.participant,
			Calibration: s.machine.State(),
			Records:     s.log.Len(),
		}
		return nil
	})
	return snap, err
}

// Close stops the estimator and the loop.
func (s *Session) Close(ctx context.Context) error {
	err := s.do(ctx, func(int64) error {
		s.closing = true
		return nil
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (s *Session) outcome() *Outcome {
	info := s.machine.Info()
	s.mu.RLock()
	info.CompletedAt = s.calibratedAt
	finished := s.finishedAt
	s.mu.RUnlock()
	return &Outcome{
		SessionID:   s.id,
		CreatedAt:   s.createdAt,
		FinishedAt:  finished,
		Participant: s.participant,
		Calibration: info,
		Records:     s.log.Snapshot(),
	}
}
