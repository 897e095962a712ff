// Package correlate resolves hit events against the most recent usable
// sample of each stream.
package correlate

import (
	"sort"
	"time"

	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/pkg/metrics"
)

// Default lookback windows.
const (
	DefaultTargetLookback = 1000 * time.Millisecond
	DefaultSampleLookback = 500 * time.Millisecond
)

// Correlator builds hit records. It is stateless; the caller supplies the
// record log and the current target frame.
type Correlator struct {
	targetLookbackMs int64
	sampleLookbackMs int64
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithTargetLookback bounds the backward search for the target position.
func WithTargetLookback(d time.Duration) Option {
	return func(c *Correlator) {
		if d >= 0 {
			c.targetLookbackMs = d.Milliseconds()
		}
	}
}

// WithSampleLookback bounds the backward search for gaze and pointer.
func WithSampleLookback(d time.Duration) Option {
	return func(c *Correlator) {
		if d >= 0 {
			c.sampleLookbackMs = d.Milliseconds()
		}
	}
}

// New returns a Correlator with the default windows.
func New(opts ...Option) *Correlator {
	c := &Correlator{
		targetLookbackMs: DefaultTargetLookback.Milliseconds(),
		sampleLookbackMs: DefaultSampleLookback.Milliseconds(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Horizon returns the widest lookback in milliseconds. Records older than
// a hit by more than this never contribute to it.
func (c *Correlator) Horizon() int64 {
	return max(c.targetLookbackMs, c.sampleLookbackMs)
}

// Correlate returns the record for ev. records must be ordered by timestamp
// (a record log snapshot); frame is the task's current target view and may
// be nil. Fields that cannot be resolved within their window stay nil.
func (c *Correlator) Correlate(ev model.HitEvent, frame *model.TargetFrame, records []model.CorrelatedRecord) model.CorrelatedRecord {
	rec := c.Resolve(ev, frame, records)
	if rec.TargetScreen == nil {
		metrics.RecordCorrelationMiss("target")
	}
	if rec.Gaze == nil {
		metrics.RecordCorrelationMiss("gaze")
	}
	if rec.Pointer == nil {
		metrics.RecordCorrelationMiss("pointer")
	}
	metrics.RecordHitCorrelated()
	return rec
}

// Resolve is Correlate without metrics. Analytics uses it to re-resolve
// hits from a finished log.
func (c *Correlator) Resolve(ev model.HitEvent, frame *model.TargetFrame, records []model.CorrelatedRecord) model.CorrelatedRecord {
	rec := model.CorrelatedRecord{
		TimestampMs:   ev.TimestampMs,
		Phase:         model.PhaseTask,
		TargetID:      ev.TargetID,
		HitRegistered: true,
	}
	if frame != nil {
		rec.CameraRotation = frame.CameraRotation
		rec.PlayerPosition = frame.PlayerPosition
	}

	// records[:end] are at or before the hit.
	end := sort.Search(len(records), func(i int) bool { return records[i].TimestampMs > ev.TimestampMs })
	prior := records[:end]

	if ev.TargetID != nil {
		id := *ev.TargetID
		if frame != nil && frame.TargetID != nil && *frame.TargetID == id && frame.Screen != nil {
			rec.TargetScreen = frame.Screen
			rec.Target3D = frame.World
		} else if r := c.findTarget(prior, id, ev.TimestampMs); r != nil {
			rec.TargetScreen = r.TargetScreen
			rec.Target3D = r.Target3D
		}
	}
	rec.Gaze = c.findPoint(prior, ev.TimestampMs, func(r *model.CorrelatedRecord) *model.Point { return r.Gaze })
	rec.Pointer = c.findPoint(prior, ev.TimestampMs, func(r *model.CorrelatedRecord) *model.Point { return r.Pointer })
	return rec
}

func (c *Correlator) findTarget(records []model.CorrelatedRecord, id string, t0 int64) *model.CorrelatedRecord {
	for i := len(records) - 1; i >= 0; i-- {
		r := &records[i]
		if t0-r.TimestampMs > c.targetLookbackMs {
			return nil
		}
		if r.HasTarget(id) && r.TargetScreen != nil {
			return r
		}
	}
	return nil
}

func (c *Correlator) findPoint(records []model.CorrelatedRecord, t0 int64, field func(*model.CorrelatedRecord) *model.Point) *model.Point {
	for i := len(records) - 1; i >= 0; i-- {
		r := &records[i]
		if t0-r.TimestampMs > c.sampleLookbackMs {
			return nil
		}
		if p := field(r); p != nil {
			return p
		}
	}
	return nil
}
