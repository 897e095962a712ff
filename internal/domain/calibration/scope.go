package calibration

import (
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/samplebus"
)

// scope owns everything a phase acquires. release is the only way a phase
// gives its resources back and runs on every transition.
type scope struct {
	gen        uint64
	gaze       *samplebus.Subscription
	pointer    *samplebus.Subscription
	deadlineMs int64
	hasTimer   bool
}

func (s *scope) sub(stream model.StreamKind) **samplebus.Subscription {
	if stream == model.StreamPointer {
		return &s.pointer
	}
	return &s.gaze
}

func (s *scope) drop(stream model.StreamKind) {
	p := s.sub(stream)
	if *p != nil {
		(*p).Close()
		*p = nil
	}
}

func (s *scope) setTimer(deadlineMs int64) {
	s.deadlineMs = deadlineMs
	s.hasTimer = true
}

func (s *scope) clearTimer() {
	s.deadlineMs = 0
	s.hasTimer = false
}

func (s *scope) release() {
	s.drop(model.StreamGaze)
	s.drop(model.StreamPointer)
	s.clearTimer()
}
