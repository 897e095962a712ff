// Package calibration drives the gaze estimator through face check,
// click-grid and pursuit calibration, validation and the task phase.
//
// The Machine is owned by a single goroutine. Stream deliveries, frame
// ticks and user commands are all fed to it by that goroutine; the machine
// never blocks and never starts goroutines of its own.
package calibration

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/samplebus"
	"github.com/okian/syncgaze/internal/domain/validation"
	"github.com/okian/syncgaze/pkg/logger"
	"github.com/okian/syncgaze/pkg/metrics"
)

// Calibration status values carried into reports.
const (
	StatusNotStarted = "not-started"
	StatusInProgress = "in-progress"
	StatusPassed     = "passed"
	StatusFailed     = "failed"
	StatusError      = "error"
)

// Machine is the calibration state machine.
type Machine struct {
	bus       *samplebus.Bus
	estimator Estimator
	analyzer  *validation.Analyzer
	sink      TaskSink
	hooks     []TransitionFunc
	logger    logger.Logger

	viewport         model.Viewport
	grid             []model.Point
	clicksPerPoint   int
	pursuitDuration  time.Duration
	dwellRadius      float64
	validationWindow time.Duration
	gazeInterval     time.Duration

	phase   model.Phase
	gen     uint64
	scope   scope
	running bool
	err     error

	faceDetected   bool
	point          int
	clicks         int
	pursuit        *pursuit
	lastGaze       *model.Point
	successRate    *float64
	buffer         []model.Point
	result         *model.ValidationResult
	recalibrations int
}

// State is a read-only view of the machine.
type State struct {
	Phase            model.Phase             `json:"phase"`
	Generation       uint64                  `json:"generation"`
	FaceDetected     bool                    `json:"faceDetected"`
	PointIndex       int                     `json:"pointIndex"`
	PointCount       int                     `json:"pointCount"`
	Clicks           int                     `json:"clicks"`
	ClicksPerPoint   int                     `json:"clicksPerPoint"`
	PursuitProgress  float64                 `json:"pursuitProgress"`
	SuccessRate      *float64                `json:"pursuitSuccessRate,omitempty"`
	Validation       *model.ValidationResult `json:"validation,omitempty"`
	AwaitingDecision bool                    `json:"awaitingDecision"`
	Unstable         bool                    `json:"unstable"`
	Recalibrations   int                     `json:"recalibrations"`
	Target           *model.Point            `json:"target,omitempty"`
	Error            string                  `json:"error,omitempty"`
}

// New returns a machine in the idle phase.
func New(bus *samplebus.Bus, est Estimator, opts ...Option) *Machine {
	m := &Machine{
		bus:              bus,
		estimator:        est,
		viewport:         model.Viewport{Width: 1920, Height: 1080},
		grid:             DefaultGrid,
		clicksPerPoint:   DefaultClicksPerPoint,
		pursuitDuration:  DefaultPursuitDuration,
		dwellRadius:      DefaultDwellRadiusPx,
		validationWindow: DefaultValidationWindow,
		gazeInterval:     DefaultGazeSampleInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.analyzer == nil {
		m.analyzer = validation.NewAnalyzer()
	}
	if m.logger == nil {
		m.logger = logger.Get().Named("calibration")
	}
	return m
}

// Phase returns the active phase.
func (m *Machine) Phase() model.Phase { return m.phase }

// Generation increments on every transition.
func (m *Machine) Generation() uint64 { return m.gen }

// Err returns the error that moved the machine to the error phase.
func (m *Machine) Err() error { return m.err }

// Result returns the latest validation result, if any.
func (m *Machine) Result() *model.ValidationResult { return m.result }

// SuccessRate returns the pursuit success rate once the pursuit completed.
func (m *Machine) SuccessRate() *float64 { return m.successRate }

// Recalibrations returns how often the protocol looped back.
func (m *Machine) Recalibrations() int { return m.recalibrations }

// GazeC returns the active gaze subscription channel or nil.
func (m *Machine) GazeC() <-chan samplebus.Delivery {
	if m.scope.gaze == nil {
		return nil
	}
	return m.scope.gaze.C()
}

// PointerC returns the active pointer subscription channel or nil.
func (m *Machine) PointerC() <-chan samplebus.Delivery {
	if m.scope.pointer == nil {
		return nil
	}
	return m.scope.pointer.C()
}

// Start begins the estimator and enters face check. A failing estimator
// moves the machine to the error phase.
func (m *Machine) Start(ctx context.Context, nowMs int64) error {
	if err := m.expect(model.PhaseIdle); err != nil {
		return err
	}
	bus := m.bus
	m.estimator.SetGazeListener(func(p *model.Point) {
		bus.Publish(model.StreamGaze, p)
	})
	if err := m.estimator.Begin(ctx); err != nil {
		m.estimator.ClearGazeListener()
		err = fmt.Errorf("%w: %w", ErrEstimatorUnavailable, err)
		m.Fail(err, nowMs)
		return err
	}
	m.running = true
	return m.transition(model.PhaseFaceCheck, nowMs)
}

// ConfirmFace advances past face check once a gaze sample was observed.
func (m *Machine) ConfirmFace(nowMs int64) error {
	if err := m.expect(model.PhaseFaceCheck); err != nil {
		return err
	}
	if !m.faceDetected {
		return ErrNoFaceDetected
	}
	return m.transition(model.PhaseCalibrating1, nowMs)
}

// Click registers a click on the current grid dot and trains the estimator
// at its position.
func (m *Machine) Click(nowMs int64) error {
	if err := m.expect(model.PhaseCalibrating1); err != nil {
		return err
	}
	dot := GridPoint(m.grid[m.point], m.viewport)
	m.train(dot)
	m.clicks++
	if m.clicks < m.clicksPerPoint {
		return nil
	}
	m.clicks = 0
	m.point++
	if m.point < len(m.grid) {
		return nil
	}
	return m.transition(model.PhaseCalibrating2, nowMs)
}

// ConfirmValidation starts the validation window.
func (m *Machine) ConfirmValidation(nowMs int64) error {
	if err := m.expect(model.PhaseConfirmValidation); err != nil {
		return err
	}
	return m.transition(model.PhaseValidating, nowMs)
}

// Proceed accepts the validation result, passed or not, and starts the task.
func (m *Machine) Proceed(nowMs int64) error {
	if err := m.decision(); err != nil {
		return err
	}
	return m.transition(model.PhaseTask, nowMs)
}

// Recalibrate rejects the validation result and restarts the click grid.
func (m *Machine) Recalibrate(nowMs int64) error {
	if err := m.decision(); err != nil {
		return err
	}
	return m.transition(model.PhaseRecalibrating, nowMs)
}

// Finish ends the task.
func (m *Machine) Finish(nowMs int64) error {
	if err := m.expect(model.PhaseTask); err != nil {
		return err
	}
	return m.transition(model.PhaseFinished, nowMs)
}

// Fail moves the machine to the error phase.
func (m *Machine) Fail(err error, nowMs int64) {
	m.err = err
	m.logger.Error(context.Background(), "calibration failed",
		logger.String("phase", m.phase.String()),
		logger.Error(err))
	_ = m.transition(model.PhaseError, nowMs)
}

// Close releases everything and resets the machine to idle.
func (m *Machine) Close(nowMs int64) {
	_ = m.transition(model.PhaseIdle, nowMs)
}

// Tick advances timed phases to nowMs. The session calls it once per frame.
func (m *Machine) Tick(nowMs int64) error {
	switch m.phase {
	case model.PhaseCalibrating2:
		return m.pursuitFrame(nowMs)
	case model.PhaseValidating:
		if m.scope.hasTimer && nowMs >= m.scope.deadlineMs {
			return m.closeValidation(nowMs)
		}
	}
	return nil
}

// HandleGaze consumes a delivery from GazeC. Deliveries from a released
// subscription are dropped.
func (m *Machine) HandleGaze(d samplebus.Delivery) {
	if !m.current(m.scope.gaze, d) {
		return
	}
	p := d.Sample.Point()
	switch m.phase {
	case model.PhaseFaceCheck:
		m.faceDetected = true
		m.scope.drop(model.StreamGaze)
		m.logger.Debug(context.Background(), "face detected")
	case model.PhaseCalibrating2:
		m.lastGaze = &p
	case model.PhaseValidating:
		m.buffer = append(m.buffer, p)
	case model.PhaseTask:
		if m.sink != nil {
			m.sink.Gaze(d.Sample)
		}
	}
}

// HandlePointer consumes a delivery from PointerC.
func (m *Machine) HandlePointer(d samplebus.Delivery) {
	if !m.current(m.scope.pointer, d) {
		return
	}
	switch m.phase {
	case model.PhaseCalibrating2:
		m.train(d.Sample.Point())
	case model.PhaseTask:
		if m.sink != nil {
			m.sink.Pointer(d.Sample)
		}
	}
}

// HandleClosed forgets a subscription whose channel was closed by the bus.
func (m *Machine) HandleClosed(stream model.StreamKind) {
	p := m.scope.sub(stream)
	*p = nil
}

// Target returns the position the participant should look at, if any.
func (m *Machine) Target() *model.Point {
	switch m.phase {
	case model.PhaseCalibrating1:
		p := GridPoint(m.grid[m.point], m.viewport)
		return &p
	case model.PhaseCalibrating2:
		p := m.pursuit.target
		return &p
	case model.PhaseConfirmValidation, model.PhaseValidating:
		p := m.viewport.Center()
		return &p
	}
	return nil
}

// State returns a snapshot of the machine.
func (m *Machine) State() State {
	s := State{
		Phase:          m.phase,
		Generation:     m.gen,
		FaceDetected:   m.faceDetected,
		PointIndex:     m.point,
		PointCount:     len(m.grid),
		Clicks:         m.clicks,
		ClicksPerPoint: m.clicksPerPoint,
		SuccessRate:    m.successRate,
		Validation:     m.result,
		Recalibrations: m.recalibrations,
		Target:         m.Target(),
	}
	if m.pursuit != nil {
		s.PursuitProgress = m.pursuit.t
	}
	if m.phase == model.PhaseValidating && m.result != nil {
		s.AwaitingDecision = true
	}
	if m.result != nil {
		s.Unstable = m.analyzer.Unstable(*m.result)
	}
	if m.err != nil {
		s.Error = m.err.Error()
	}
	return s
}

// Info returns the calibration context carried into reports.
func (m *Machine) Info() model.CalibrationInfo {
	vp := m.viewport
	info := model.CalibrationInfo{
		Status:             m.status(),
		Validation:         m.result,
		RecalibrationCount: m.recalibrations,
		PursuitSuccessRate: m.successRate,
		ThresholdPx:        m.analyzer.Threshold(),
		DwellRadiusPx:      m.dwellRadius,
		StabilityWarningPx: m.analyzer.StabilityWarning(),
		Viewport:           &vp,
	}
	return info
}

func (m *Machine) status() string {
	switch {
	case m.phase == model.PhaseError:
		return StatusError
	case m.result != nil && m.result.Passed:
		return StatusPassed
	case m.result != nil:
		return StatusFailed
	case m.phase == model.PhaseIdle:
		return StatusNotStarted
	default:
		return StatusInProgress
	}
}

func (m *Machine) expect(p model.Phase) error {
	if m.phase != p {
		return fmt.Errorf("%w: %s", ErrInvalidPhase, m.phase)
	}
	return nil
}

func (m *Machine) decision() error {
	if err := m.expect(model.PhaseValidating); err != nil {
		return err
	}
	if m.result == nil {
		return ErrValidationPending
	}
	return nil
}

func (m *Machine) current(sub *samplebus.Subscription, d samplebus.Delivery) bool {
	if sub == nil || sub.Generation() != d.Gen {
		metrics.RecordStaleDelivery()
		return false
	}
	return true
}

func (m *Machine) train(p model.Point) {
	if t, ok := m.estimator.(Trainer); ok {
		t.Train(p.X, p.Y)
	}
}

func (m *Machine) transition(to model.Phase, nowMs int64) error {
	from := m.phase
	if err := checkTransition(from, to); err != nil {
		return err
	}
	m.scope.release()
	m.gen++
	m.scope = scope{gen: m.gen}
	m.phase = to

	metrics.RecordPhaseTransition(from.String(), to.String())
	m.logger.Info(context.Background(), "phase transition",
		logger.String("from", from.String()),
		logger.String("to", to.String()),
		logger.Any("gen", m.gen))
	for _, h := range m.hooks {
		h(from, to)
	}
	return m.enter(to, nowMs)
}

func (m *Machine) enter(p model.Phase, nowMs int64) error {
	switch p {
	case model.PhaseIdle:
		m.stopEstimator()
		m.reset()
	case model.PhaseFaceCheck:
		m.faceDetected = false
		return m.subscribe(model.StreamGaze, nowMs)
	case model.PhaseCalibrating1:
		m.point, m.clicks = 0, 0
	case model.PhaseCalibrating2:
		m.pursuit = newPursuit(m.pursuitDuration, m.dwellRadius, m.viewport)
		m.lastGaze = nil
		if err := m.subscribe(model.StreamGaze, nowMs); err != nil {
			return err
		}
		return m.subscribe(model.StreamPointer, nowMs)
	case model.PhaseValidating:
		m.buffer = m.buffer[:0]
		m.result = nil
		m.scope.setTimer(nowMs + m.validationWindow.Milliseconds())
		return m.subscribe(model.StreamGaze, nowMs)
	case model.PhaseRecalibrating:
		m.estimator.ClearData()
		m.result = nil
		m.recalibrations++
		metrics.RecordRecalibration()
		return m.transition(model.PhaseCalibrating1, nowMs)
	case model.PhaseTask:
		if err := m.subscribe(model.StreamGaze, nowMs, samplebus.WithThrottle(m.gazeInterval)); err != nil {
			return err
		}
		return m.subscribe(model.StreamPointer, nowMs)
	case model.PhaseFinished, model.PhaseError:
		m.stopEstimator()
	}
	return nil
}

func (m *Machine) subscribe(stream model.StreamKind, nowMs int64, opts ...samplebus.SubscribeOption) error {
	sub, err := m.bus.Subscribe(stream, opts...)
	if err != nil {
		err = fmt.Errorf("subscribe %s: %w", stream, err)
		m.Fail(err, nowMs)
		return err
	}
	*m.scope.sub(stream) = sub
	return nil
}

func (m *Machine) pursuitFrame(nowMs int64) error {
	onTarget, done := m.pursuit.frame(nowMs, m.lastGaze)
	if onTarget {
		target := m.pursuit.target
		m.bus.Publish(model.StreamPointer, &target)
	}
	if !done {
		return nil
	}
	rate := m.pursuit.successRate()
	m.successRate = &rate
	metrics.RecordPursuitSuccessRate(rate)
	m.logger.Info(context.Background(), "pursuit complete",
		logger.Int("frames", m.pursuit.frames),
		logger.Int("onTarget", m.pursuit.onTarget),
		logger.Float64("successRate", rate))
	return m.transition(model.PhaseConfirmValidation, nowMs)
}

func (m *Machine) closeValidation(nowMs int64) error {
	m.scope.release()
	res, err := m.analyzer.Analyze(m.buffer, m.viewport.Center())
	if err != nil {
		metrics.RecordValidationEmpty()
		m.logger.Warn(context.Background(), "validation window empty, recalibrating")
		return m.transition(model.PhaseRecalibrating, nowMs)
	}
	m.result = &res
	metrics.RecordValidation(res.ErrorPx, res.Passed)
	m.logger.Info(context.Background(), "validation complete",
		logger.Float64("errorPx", res.ErrorPx),
		logger.Float64("stabilityPx", res.StabilityPx),
		logger.Int("samples", res.SampleCount),
		logger.Bool("passed", res.Passed))
	if m.analyzer.Unstable(res) {
		m.logger.Warn(context.Background(), "gaze unstable",
			logger.Float64("stabilityPx", res.StabilityPx))
	}
	return nil
}

func (m *Machine) stopEstimator() {
	if !m.running {
		return
	}
	m.running = false
	m.estimator.ClearGazeListener()
	if err := m.estimator.End(); err != nil {
		m.logger.Warn(context.Background(), "estimator end failed", logger.Error(err))
	}
}

func (m *Machine) reset() {
	m.err = nil
	m.faceDetected = false
	m.point, m.clicks = 0, 0
	m.pursuit = nil
	m.lastGaze = nil
	m.successRate = nil
	m.buffer = nil
	m.result = nil
	m.recalibrations = 0
}
