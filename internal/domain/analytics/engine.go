// Package analytics aggregates a finished record log into a session summary.
package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/syncgaze/internal/domain/correlate"
	"github.com/okian/syncgaze/internal/domain/model"
)

// DefaultAccuracyRadiusPx is the distance within which gaze or pointer
// counts as on target.
const DefaultAccuracyRadiusPx = 100

const bucketMs = 1000

// Engine computes session summaries. Every statistic has a zero value when
// nothing contributes to it.
type Engine struct {
	radius     float64
	correlator *correlate.Correlator
}

// Option configures an Engine.
type Option func(*Engine)

// WithAccuracyRadius sets the on-target radius in pixels.
func WithAccuracyRadius(px float64) Option {
	return func(e *Engine) {
		if px > 0 {
			e.radius = px
		}
	}
}

// WithCorrelator sets the correlator used to resolve errors at hit time.
func WithCorrelator(c *correlate.Correlator) Option {
	return func(e *Engine) {
		if c != nil {
			e.correlator = c
		}
	}
}

// NewEngine returns an Engine with default settings.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{radius: DefaultAccuracyRadiusPx, correlator: correlate.New()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AccuracyRadius returns the on-target radius in pixels.
func (e *Engine) AccuracyRadius() float64 { return e.radius }

// Summarize computes the summary of records. The input is not modified.
func (e *Engine) Summarize(records []model.CorrelatedRecord) *model.SessionSummary {
	s := &model.SessionSummary{}
	if len(records) == 0 {
		return s
	}

	log := make([]model.CorrelatedRecord, len(records))
	copy(log, records)
	sort.SliceStable(log, func(i, j int) bool { return log[i].TimestampMs < log[j].TimestampMs })

	s.Records = len(log)
	s.DurationMs = log[len(log)-1].TimestampMs - log[0].TimestampMs

	var (
		targets       = map[string]struct{}{}
		firstSeen     = map[string]int64{}
		firstGazeOn   = map[string]int64{}
		gazeErrs      []float64
		pointerErrs   []float64
		syncDists     []float64
		withGaze      int
		withPointer   int
		framesTarget  int
		gazeOnFrames  int
		mouseOnFrames int
		hitTimes      []float64
	)

	for i := range log {
		r := &log[i]
		if r.Gaze != nil {
			withGaze++
		}
		if r.Pointer != nil {
			withPointer++
		}
		if r.Gaze != nil && r.Pointer != nil {
			syncDists = append(syncDists, r.Gaze.Distance(*r.Pointer))
		}
		if r.TargetScreen != nil {
			if r.Gaze != nil {
				gazeErrs = append(gazeErrs, r.Gaze.Distance(*r.TargetScreen))
			}
			if r.Pointer != nil {
				pointerErrs = append(pointerErrs, r.Pointer.Distance(*r.TargetScreen))
			}
		}
		if r.HitRegistered {
			hitTimes = append(hitTimes, float64(r.TimestampMs))
		}
		if r.TargetID == nil {
			continue
		}
		id := *r.TargetID
		targets[id] = struct{}{}
		if _, ok := firstSeen[id]; !ok {
			firstSeen[id] = r.TimestampMs
		}
		if r.TargetScreen == nil {
			continue
		}
		framesTarget++
		if r.Gaze != nil && r.Gaze.Distance(*r.TargetScreen) <= e.radius {
			gazeOnFrames++
			if _, ok := firstGazeOn[id]; !ok {
				firstGazeOn[id] = r.TimestampMs
			}
		}
		if r.Pointer != nil && r.Pointer.Distance(*r.TargetScreen) <= e.radius {
			mouseOnFrames++
		}
	}

	s.TargetsHit = len(hitTimes)
	s.TotalTargets = len(targets)
	if s.TotalTargets == 0 {
		s.TotalTargets = s.TargetsHit
	}
	s.Accuracy = ratio(s.TargetsHit, s.TotalTargets)
	s.GazeAccuracy = ratio(gazeOnFrames, framesTarget)
	s.MouseAccuracy = ratio(mouseOnFrames, framesTarget)
	s.Coverage = model.Coverage{Gaze: ratio(withGaze, len(log)), Pointer: ratio(withPointer, len(log))}

	var reactions []float64
	for i := range log {
		r := &log[i]
		if !r.HitRegistered || r.TargetID == nil {
			continue
		}
		if seen, ok := firstSeen[*r.TargetID]; ok && r.TimestampMs >= seen {
			reactions = append(reactions, float64(r.TimestampMs-seen))
		}
	}
	s.AvgReactionTimeMs = mean(reactions)
	s.ReactionSamples = len(reactions)

	var gazeReactions []float64
	for id, seen := range firstSeen {
		if on, ok := firstGazeOn[id]; ok && on >= seen {
			gazeReactions = append(gazeReactions, float64(on-seen))
		}
	}
	s.AvgGazeReactionMs = mean(gazeReactions)

	s.GazeError = Errors(gazeErrs)
	s.PointerError = Errors(pointerErrs)
	s.Synchronization = mean(syncDists)
	s.SynchronizationRows = len(syncDists)
	s.HitIntervals = Intervals(hitTimes)
	s.GazeErrorAtHit, s.PointerErrorAtHit = e.errorsAtHit(log)
	s.ErrorSeries = errorSeries(log)
	return s
}

func (e *Engine) errorsAtHit(log []model.CorrelatedRecord) (gaze, pointer model.ErrorStats) {
	var gazeErrs, pointerErrs []float64
	for i := range log {
		r := &log[i]
		if !r.HitRegistered {
			continue
		}
		frame := &model.TargetFrame{TargetID: r.TargetID, Screen: r.TargetScreen, World: r.Target3D}
		resolved := e.correlator.Resolve(model.HitEvent{TimestampMs: r.TimestampMs, TargetID: r.TargetID}, frame, log[:i])
		if resolved.TargetScreen == nil {
			continue
		}
		g, p := r.Gaze, r.Pointer
		if g == nil {
			g = resolved.Gaze
		}
		if p == nil {
			p = resolved.Pointer
		}
		if g != nil {
			gazeErrs = append(gazeErrs, g.Distance(*resolved.TargetScreen))
		}
		if p != nil {
			pointerErrs = append(pointerErrs, p.Distance(*resolved.TargetScreen))
		}
	}
	return Errors(gazeErrs), Errors(pointerErrs)
}

// errorSeries averages per-second errors. Only seconds with at least one
// targeted record get a bucket, so the series length is bounded by the log
// length rather than its time span.
func errorSeries(log []model.CorrelatedRecord) []model.ErrorBucket {
	start := log[0].TimestampMs
	type acc struct {
		gazeSum, pointerSum float64
		gazeN, pointerN     int
	}
	accs := make(map[int64]*acc)
	for i := range log {
		r := &log[i]
		if r.TargetScreen == nil {
			continue
		}
		k := (r.TimestampMs - start) / bucketMs
		a, ok := accs[k]
		if !ok {
			a = &acc{}
			accs[k] = a
		}
		if r.Gaze != nil {
			a.gazeSum += r.Gaze.Distance(*r.TargetScreen)
			a.gazeN++
		}
		if r.Pointer != nil {
			a.pointerSum += r.Pointer.Distance(*r.TargetScreen)
			a.pointerN++
		}
	}
	if len(accs) == 0 {
		return nil
	}
	keys := make([]int64, 0, len(accs))
	for k := range accs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]model.ErrorBucket, len(keys))
	for i, k := range keys {
		a := accs[k]
		out[i].SecondOffset = int(k)
		if a.gazeN > 0 {
			v := a.gazeSum / float64(a.gazeN)
			out[i].GazeError = &v
		}
		if a.pointerN > 0 {
			v := a.pointerSum / float64(a.pointerN)
			out[i].PointerError = &v
		}
	}
	return out
}

// Errors summarises a set of distances. The input is not modified.
func Errors(values []float64) model.ErrorStats {
	if len(values) == 0 {
		return model.ErrorStats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return model.ErrorStats{
		Avg:     stat.Mean(sorted, nil),
		Median:  Percentile(sorted, 50),
		P95:     Percentile(sorted, 95),
		Max:     floats.Max(sorted),
		Samples: len(sorted),
	}
}

// Intervals summarises the gaps between successive timestamps. Fewer than
// two timestamps yield zeros.
func Intervals(timestamps []float64) model.IntervalStats {
	if len(timestamps) < 2 {
		return model.IntervalStats{}
	}
	sorted := append([]float64(nil), timestamps...)
	sort.Float64s(sorted)
	diffs := make([]float64, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		diffs[i-1] = sorted[i] - sorted[i-1]
	}
	return model.IntervalStats{
		Avg:     stat.Mean(diffs, nil),
		Min:     floats.Min(diffs),
		Max:     floats.Max(diffs),
		Samples: len(diffs),
	}
}

// Percentile returns the nearest-rank percentile p (0-100) of sorted: the
// value at rank ceil(p/100*n). The median of [1 2 3 4] is therefore 2.
// An empty slice yields 0.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 || math.IsNaN(p) {
		return 0
	}
	p = math.Min(math.Max(p, 0), 100)
	return stat.Quantile(p/100, stat.Empirical, sorted, nil)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
