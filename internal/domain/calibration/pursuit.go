package calibration

import (
	"math"
	"time"

	"github.com/okian/syncgaze/internal/domain/model"
)

// Pursuit defaults.
const (
	DefaultPursuitDuration = 20 * time.Second
	DefaultDwellRadiusPx   = 150
	pursuitAmplitude       = 0.45
)

// Position returns the pursuit target at progress t in [0,1]:
// x = cx + Rx*sin(4*pi*t), y = cy + Ry*cos(6*pi*t) with R = 0.45 of the
// viewport. t is clamped.
func Position(t float64, vp model.Viewport) model.Point {
	t = math.Min(math.Max(t, 0), 1)
	c := vp.Center()
	return model.Point{
		X: c.X + pursuitAmplitude*vp.Width*math.Sin(4*math.Pi*t),
		Y: c.Y + pursuitAmplitude*vp.Height*math.Cos(6*math.Pi*t),
	}
}

// pursuit tracks one time-bounded pursuit run. Timing starts at the first
// frame.
type pursuit struct {
	durationMs int64
	radius     float64
	viewport   model.Viewport

	started  bool
	startMs  int64
	t        float64
	frames   int
	onTarget int
	target   model.Point
}

func newPursuit(d time.Duration, radius float64, vp model.Viewport) *pursuit {
	p := &pursuit{durationMs: d.Milliseconds(), radius: radius, viewport: vp}
	p.target = Position(0, vp)
	return p
}

func (p *pursuit) progress(nowMs int64) float64 {
	switch {
	case !p.started:
		return 0
	case p.durationMs <= 0:
		return 1
	}
	return math.Min(float64(nowMs-p.startMs)/float64(p.durationMs), 1)
}

// frame advances to nowMs and scores gaze against the target. It reports
// whether the frame was on target and whether the run is complete.
func (p *pursuit) frame(nowMs int64, gaze *model.Point) (onTarget, done bool) {
	if !p.started {
		p.started = true
		p.startMs = nowMs
	}
	t := p.progress(nowMs)
	p.t = t
	p.target = Position(t, p.viewport)
	p.frames++
	if gaze != nil && gaze.Distance(p.target) < p.radius {
		p.onTarget++
		onTarget = true
	}
	return onTarget, t >= 1
}

func (p *pursuit) successRate() float64 {
	if p.frames == 0 {
		return 0
	}
	return float64(p.onTarget) / float64(p.frames)
}
