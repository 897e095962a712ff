package session

import (
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/recordlog"
)

// recorder turns task-phase samples into log records stamped with the
// target frame current at that moment.
type recorder struct {
	log     *recordlog.Log
	targets TargetProvider
}

func (r *recorder) Gaze(s model.Sample) {
	p := s.Point()
	rec := r.base(s.TimestampMs)
	rec.Gaze = &p
	r.log.Append(rec)
}

func (r *recorder) Pointer(s model.Sample) {
	p := s.Point()
	rec := r.base(s.TimestampMs)
	rec.Pointer = &p
	r.log.Append(rec)
}

func (r *recorder) base(ts int64) model.CorrelatedRecord {
	rec := model.CorrelatedRecord{TimestampMs: ts, Phase: model.PhaseTask}
	if f := r.targets.Frame(); f != nil {
		rec.TargetID = f.TargetID
		rec.TargetScreen = f.Screen
		rec.Target3D = f.World
		rec.CameraRotation = f.CameraRotation
		rec.PlayerPosition = f.PlayerPosition
	}
	return rec
}
