package session

import (
	"time"

	"github.com/okian/syncgaze/internal/domain/calibration"
	"github.com/okian/syncgaze/internal/domain/correlate"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/samplebus"
	"github.com/okian/syncgaze/pkg/logger"
)

const (
	// DefaultFrameInterval is the pace of Machine ticks.
	DefaultFrameInterval = 16 * time.Millisecond
	// DefaultMaxHitSkew bounds how far a hit timestamp may be from the
	// session clock.
	DefaultMaxHitSkew = time.Minute
)

// Option applies a configuration option to the Session.
type Option func(*Session)

// WithClock sets the clock shared by the bus and the session.
func WithClock(c samplebus.Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithFrameInterval sets the frame tick period. Zero disables automatic
// ticks; frames are then driven with Tick.
func WithFrameInterval(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.frameInterval = d
		}
	}
}

// WithMaxHitSkew sets how far a caller supplied hit timestamp may be from
// the session clock in either direction.
func WithMaxHitSkew(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.maxHitSkew = d
		}
	}
}

// WithMachineOptions forwards options to the calibration machine.
func WithMachineOptions(opts ...calibration.Option) Option {
	return func(s *Session) {
		s.machineOpts = append(s.machineOpts, opts...)
	}
}

// WithCorrelator sets the hit correlator.
func WithCorrelator(c *correlate.Correlator) Option {
	return func(s *Session) {
		if c != nil {
			s.correlator = c
		}
	}
}

// WithTargetProvider replaces the built-in TargetBoard.
func WithTargetProvider(p TargetProvider) Option {
	return func(s *Session) {
		if p != nil {
			s.targets = p
		}
	}
}

// WithParticipant attaches participant metadata.
func WithParticipant(p model.Participant) Option {
	return func(s *Session) {
		s.participant = p
	}
}

// WithBusBufferSize sets the per-stream delivery buffer.
func WithBusBufferSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.busBuffer = n
		}
	}
}

// WithLogger sets a custom logger for the session.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}
