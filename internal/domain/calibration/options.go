package calibration

import (
	"time"

	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/validation"
	"github.com/okian/syncgaze/pkg/logger"
)

// Defaults for the timed phases.
const (
	DefaultValidationWindow   = 3 * time.Second
	DefaultGazeSampleInterval = 100 * time.Millisecond
)

// TaskSink receives the samples collected while the task phase is active.
type TaskSink interface {
	Gaze(s model.Sample)
	Pointer(s model.Sample)
}

// TransitionFunc observes phase changes.
type TransitionFunc func(from, to model.Phase)

// Option applies a configuration option to the Machine.
type Option func(*Machine)

// WithViewport sets the screen the targets are laid out on.
func WithViewport(vp model.Viewport) Option {
	return func(m *Machine) {
		if vp.Valid() {
			m.viewport = vp
		}
	}
}

// WithGrid sets the click-grid dot sequence in viewport percentages.
func WithGrid(points []model.Point) Option {
	return func(m *Machine) {
		if len(points) > 0 {
			m.grid = append([]model.Point(nil), points...)
		}
	}
}

// WithClicksPerPoint sets how many clicks each grid dot needs.
func WithClicksPerPoint(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.clicksPerPoint = n
		}
	}
}

// WithPursuitDuration sets the length of the pursuit phase.
func WithPursuitDuration(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.pursuitDuration = d
		}
	}
}

// WithDwellRadius sets the pursuit on-target radius in pixels.
func WithDwellRadius(px float64) Option {
	return func(m *Machine) {
		if px > 0 {
			m.dwellRadius = px
		}
	}
}

// WithValidationWindow sets how long validation collects gaze samples.
func WithValidationWindow(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.validationWindow = d
		}
	}
}

// WithGazeSampleInterval sets the task-phase gaze throttle.
func WithGazeSampleInterval(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.gazeInterval = d
		}
	}
}

// WithAnalyzer sets the validation analyzer.
func WithAnalyzer(a *validation.Analyzer) Option {
	return func(m *Machine) {
		if a != nil {
			m.analyzer = a
		}
	}
}

// WithTaskSink sets the consumer of task-phase samples.
func WithTaskSink(s TaskSink) Option {
	return func(m *Machine) {
		m.sink = s
	}
}

// WithTransitionHook registers fn to be called after every phase change.
func WithTransitionHook(fn TransitionFunc) Option {
	return func(m *Machine) {
		if fn != nil {
			m.hooks = append(m.hooks, fn)
		}
	}
}

// WithLogger sets a custom logger for the machine.
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}
