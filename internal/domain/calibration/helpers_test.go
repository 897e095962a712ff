package calibration_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/okian/syncgaze/internal/domain/calibration"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/samplebus"
	"github.com/okian/syncgaze/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

var errNoCamera = errors.New("camera not found")

type fakeEstimator struct {
	mu       sync.Mutex
	listener func(*model.Point)
	beginErr error
	begun    int
	ended    int
	cleared  int
	trained  []model.Point
}

func (f *fakeEstimator) Begin(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.beginErr != nil {
		return f.beginErr
	}
	f.begun++
	return nil
}

func (f *fakeEstimator) End() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended++
	return nil
}

func (f *fakeEstimator) SetGazeListener(fn func(*model.Point)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = fn
}

func (f *fakeEstimator) ClearGazeListener() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = nil
}

func (f *fakeEstimator) ClearData() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

func (f *fakeEstimator) Train(x, y float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trained = append(f.trained, model.Point{X: x, Y: y})
}

func (f *fakeEstimator) hasListener() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listener != nil
}

// emit behaves like the estimator producing an estimate.
func (f *fakeEstimator) emit(p *model.Point) {
	f.mu.Lock()
	fn := f.listener
	f.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

type recordingSink struct {
	gaze    []model.Sample
	pointer []model.Sample
}

func (s *recordingSink) Gaze(smp model.Sample)    { s.gaze = append(s.gaze, smp) }
func (s *recordingSink) Pointer(smp model.Sample) { s.pointer = append(s.pointer, smp) }

type fixture struct {
	clock       *samplebus.ManualClock
	bus         *samplebus.Bus
	est         *fakeEstimator
	sink        *recordingSink
	m           *calibration.Machine
	transitions [][2]model.Phase
}

func newFixture(opts ...calibration.Option) *fixture {
	f := &fixture{
		clock: samplebus.NewManualClock(1000),
		est:   &fakeEstimator{},
		sink:  &recordingSink{},
	}
	f.bus = samplebus.New(samplebus.WithClock(f.clock))
	base := []calibration.Option{
		calibration.WithTaskSink(f.sink),
		calibration.WithTransitionHook(func(from, to model.Phase) {
			f.transitions = append(f.transitions, [2]model.Phase{from, to})
		}),
	}
	f.m = calibration.New(f.bus, f.est, append(base, opts...)...)
	return f
}

func (f *fixture) now() int64 { return f.clock.NowMs() }

// drain feeds every pending delivery to the machine, as the session loop does.
func (f *fixture) drain() {
	for {
		select {
		case d, ok := <-f.m.GazeC():
			if !ok {
				f.m.HandleClosed(model.StreamGaze)
				continue
			}
			f.m.HandleGaze(d)
		case d, ok := <-f.m.PointerC():
			if !ok {
				f.m.HandleClosed(model.StreamPointer)
				continue
			}
			f.m.HandlePointer(d)
		default:
			return
		}
	}
}

func (f *fixture) toCalibrating1() {
	must(f.m.Start(context.Background(), f.now()))
	f.est.emit(model.Pt(10, 10))
	f.drain()
	must(f.m.ConfirmFace(f.now()))
}

func (f *fixture) toCalibrating2() {
	f.toCalibrating1()
	for f.m.Phase() == model.PhaseCalibrating1 {
		must(f.m.Click(f.now()))
	}
}

// runPursuit ticks the pursuit every 16ms until it ends. gaze maps the
// current target to the gaze estimate emitted before each frame.
func (f *fixture) runPursuit(duration int64, vp model.Viewport, gaze func(model.Point) model.Point) {
	start := f.now()
	for f.m.Phase() == model.PhaseCalibrating2 {
		progress := float64(f.now()-start) / float64(duration)
		if progress > 1 {
			progress = 1
		}
		g := gaze(calibration.Position(progress, vp))
		f.est.emit(&g)
		f.drain()
		must(f.m.Tick(f.now()))
		if f.m.Phase() == model.PhaseCalibrating2 {
			f.clock.Advance(16 * time.Millisecond)
		}
	}
}

func (f *fixture) toValidating() {
	f.toCalibrating2()
	vp := model.Viewport{Width: 1920, Height: 1080}
	f.runPursuit(calibration.DefaultPursuitDuration.Milliseconds(), vp, func(p model.Point) model.Point { return p })
	must(f.m.ConfirmValidation(f.now()))
}

func (f *fixture) closeWindow(samples ...model.Point) {
	for i := range samples {
		f.est.emit(&samples[i])
	}
	f.drain()
	f.clock.Advance(calibration.DefaultValidationWindow)
	must(f.m.Tick(f.now()))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
