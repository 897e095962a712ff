// Package validation scores a fixation window of gaze samples against the
// known fixation target.
package validation

import (
	"errors"
	"math"

	"github.com/okian/syncgaze/internal/domain/model"
	"gonum.org/v1/gonum/stat"
)

// Defaults for the gaze validation thresholds.
const (
	DefaultThresholdPx        = 80
	DefaultStabilityWarningPx = 50
)

// ErrNoSamples is returned for an empty window. Callers treat it as a
// recalibration trigger, not a failure.
var ErrNoSamples = errors.New("no gaze samples in validation window")

// Analyzer computes accuracy and precision of a fixation window.
type Analyzer struct {
	thresholdPx        float64
	stabilityWarningPx float64
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithThreshold sets the largest error that still passes.
func WithThreshold(px float64) Option {
	return func(a *Analyzer) {
		if px > 0 {
			a.thresholdPx = px
		}
	}
}

// WithStabilityWarning sets the jitter level above which a passing
// validation is flagged as unstable.
func WithStabilityWarning(px float64) Option {
	return func(a *Analyzer) {
		if px > 0 {
			a.stabilityWarningPx = px
		}
	}
}

// NewAnalyzer returns an analyzer with the default thresholds.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		thresholdPx:        DefaultThresholdPx,
		stabilityWarningPx: DefaultStabilityWarningPx,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Threshold returns the pass threshold in pixels.
func (a *Analyzer) Threshold() float64 { return a.thresholdPx }

// StabilityWarning returns the jitter warning level in pixels.
func (a *Analyzer) StabilityWarning() float64 { return a.stabilityWarningPx }

// Analyze computes the mean gaze position, its distance to target and the
// population standard deviation of the samples about their own mean.
func (a *Analyzer) Analyze(samples []model.Point, target model.Point) (model.ValidationResult, error) {
	if len(samples) == 0 {
		return model.ValidationResult{}, ErrNoSamples
	}

	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, p := range samples {
		xs[i], ys[i] = p.X, p.Y
	}
	meanX, sdX := stat.PopMeanStdDev(xs, nil)
	meanY, sdY := stat.PopMeanStdDev(ys, nil)

	errPx := math.Hypot(target.X-meanX, target.Y-meanY)
	return model.ValidationResult{
		ErrorPx:     errPx,
		StabilityPx: (sdX + sdY) / 2,
		Passed:      errPx <= a.thresholdPx,
		SampleCount: len(samples),
		MeanX:       meanX,
		MeanY:       meanY,
	}, nil
}

// Unstable reports whether r passed but with jitter above the warning level.
func (a *Analyzer) Unstable(r model.ValidationResult) bool {
	return r.Passed && r.StabilityPx > a.stabilityWarningPx
}
