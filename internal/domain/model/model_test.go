package model_test

import (
	"encoding/json"
	"testing"
	"time"

	model "github.com/okian/syncgaze/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestPhase(t *testing.T) {
	convey.Convey("Given every phase", t, func() {
		phases := []model.Phase{
			model.PhaseIdle, model.PhaseFaceCheck, model.PhaseCalibrating1, model.PhaseCalibrating2,
			model.PhaseConfirmValidation, model.PhaseValidating, model.PhaseTask,
			model.PhaseRecalibrating, model.PhaseFinished, model.PhaseError,
		}

		convey.Convey("When parsing the string form back", func() {
			convey.Convey("Then it should return the same phase", func() {
				for _, p := range phases {
					got, err := model.ParsePhase(p.String())
					convey.So(err, convey.ShouldBeNil)
					convey.So(got, convey.ShouldEqual, p)
				}
			})
		})

		convey.Convey("When parsing an unknown name", func() {
			_, err := model.ParsePhase("warmup")

			convey.Convey("Then it should fail", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When a phase is marshalled to JSON", func() {
			b, err := json.Marshal(struct {
				P model.Phase `json:"p"`
			}{P: model.PhaseValidating})

			convey.Convey("Then it should use the name", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(b), convey.ShouldEqual, `{"p":"validating"}`)
			})
		})
	})
}

func TestGeometry(t *testing.T) {
	convey.Convey("Given two points 3-4-5 apart", t, func() {
		a := model.Point{X: 1, Y: 1}
		b := model.Point{X: 4, Y: 5}

		convey.Convey("Then the distance should be 5", func() {
			convey.So(a.Distance(b), convey.ShouldEqual, 5)
		})
	})

	convey.Convey("Given a 1920x1080 viewport", t, func() {
		v := model.Viewport{Width: 1920, Height: 1080}

		convey.Convey("Then its center is the middle of the screen", func() {
			convey.So(v.Center(), convey.ShouldResemble, model.Point{X: 960, Y: 540})
			convey.So(v.Valid(), convey.ShouldBeTrue)
			convey.So(model.Viewport{}.Valid(), convey.ShouldBeFalse)
		})
	})
}

func TestRecordHelpers(t *testing.T) {
	convey.Convey("Given a record bearing target t-1", t, func() {
		r := model.CorrelatedRecord{TargetID: model.ID("t-1")}

		convey.Convey("Then it matches only that id", func() {
			convey.So(r.HasTarget("t-1"), convey.ShouldBeTrue)
			convey.So(r.HasTarget("t-2"), convey.ShouldBeFalse)
		})

		convey.Convey("And an empty id is treated as absent", func() {
			convey.So(model.ID(""), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a summary", t, func() {
		s := &model.SessionSummary{DurationMs: 61500, Accuracy: 0.5, TargetsHit: 2, TotalTargets: 4}
		date := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

		convey.Convey("When projecting it to a persisted record", func() {
			rec := model.NewSessionRecord("s-1", date, s, nil)

			convey.Convey("Then duration is in seconds", func() {
				convey.So(rec.DurationSec, convey.ShouldEqual, 61.5)
				convey.So(rec.TargetsHit, convey.ShouldEqual, 2)
				convey.So(rec.TotalTargets, convey.ShouldEqual, 4)
				convey.So(rec.Date, convey.ShouldEqual, date)
			})
		})
	})
}
