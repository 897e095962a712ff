package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/syncgaze/internal/app"
	"github.com/okian/syncgaze/internal/adapters/estimator/synthetic"
	"github.com/okian/syncgaze/internal/config"
	"github.com/okian/syncgaze/internal/domain/calibration"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/report"
	"github.com/okian/syncgaze/internal/domain/samplebus"
	"github.com/okian/syncgaze/internal/domain/session"
	"github.com/okian/syncgaze/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

type estimators struct {
	mu   sync.Mutex
	byID map[string]*synthetic.Estimator
}

func (e *estimators) build(_ context.Context, id, _ string) (calibration.Estimator, error) {
	est := synthetic.New(synthetic.WithInterval(0), synthetic.WithNoise(0), synthetic.WithBias(0, 0))
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byID[id] = est
	return est, nil
}

func (e *estimators) get(id string) *synthetic.Estimator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.byID[id]
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.New()
	cfg.DBPath = filepath.Join(t.TempDir(), "service.db")
	cfg.FrameIntervalMS = 0
	cfg.GazeSampleIntervalMS = 0
	cfg.ClicksPerPoint = 1
	cfg.PursuitDurationMS = 100
	cfg.ValidationWindowMS = 100
	return cfg
}

func do(ctx context.Context, svc *service.Service, id string, a service.Action) service.ActionResult {
	res, err := svc.Do(ctx, id, a)
	So(err, ShouldBeNil)
	return res
}

// calibrate drives a session from idle into the task phase.
func calibrate(ctx context.Context, svc *service.Service, clock *samplebus.ManualClock, est *synthetic.Estimator, id string) {
	center := model.Pt(960, 540)

	do(ctx, svc, id, service.Action{Name: service.ActionStart})
	est.Look(center)
	So(est.Emit(), ShouldBeTrue)
	do(ctx, svc, id, service.Action{Name: service.ActionConfirmFace})
	res := do(ctx, svc, id, service.Action{Name: service.ActionClick})
	So(res.State.Calibration.Phase, ShouldEqual, model.PhaseCalibrating2)

	do(ctx, svc, id, service.Action{Name: service.ActionTick})
	clock.Advance(100 * time.Millisecond)
	res = do(ctx, svc, id, service.Action{Name: service.ActionTick})
	So(res.State.Calibration.Phase, ShouldEqual, model.PhaseConfirmValidation)

	do(ctx, svc, id, service.Action{Name: service.ActionConfirmValidation})
	for range 3 {
		est.Emit()
	}
	clock.Advance(100 * time.Millisecond)
	res = do(ctx, svc, id, service.Action{Name: service.ActionTick})
	So(res.State.Calibration.AwaitingDecision, ShouldBeTrue)
	So(res.State.Calibration.Validation.Passed, ShouldBeTrue)

	res = do(ctx, svc, id, service.Action{Name: service.ActionProceed})
	So(res.State.Calibration.Phase, ShouldEqual, model.PhaseTask)
}

func TestService(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		clock := samplebus.NewManualClock(10_000)
		ests := &estimators{byID: make(map[string]*synthetic.Estimator)}
		svc := service.New(
			service.WithConfig(testConfig(t)),
			service.WithEstimatorFactory(ests.build),
			service.WithSessionOptions(
				session.WithClock(clock),
				session.WithMachineOptions(calibration.WithGrid([]model.Point{{X: 50, Y: 50}})),
			),
		)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() {
			So(svc.Stop(ctx), ShouldBeNil)
		})

		st, err := svc.CreateSession(ctx, service.CreateRequest{
			Participant: model.Participant{Label: "P07"},
		})
		So(err, ShouldBeNil)
		id := st.ID
		So(id, ShouldNotBeEmpty)
		So(st.Calibration.Phase, ShouldEqual, model.PhaseIdle)

		Convey("Then the session is listed", func() {
			live := svc.Sessions(ctx)
			So(live, ShouldHaveLength, 1)
			So(live[0].Participant.Label, ShouldEqual, "P07")
		})

		Convey("When an unknown action is applied", func() {
			_, err := svc.Do(ctx, id, service.Action{Name: "jump"})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrUnknownAction), ShouldBeTrue)
			})
		})

		Convey("When a hit is sent without parameters", func() {
			_, err := svc.Do(ctx, id, service.Action{Name: service.ActionHit})

			Convey("Then the parameters are reported missing", func() {
				So(errors.Is(err, service.ErrMissingActionParams), ShouldBeTrue)
			})
		})

		Convey("When an unknown session is addressed", func() {
			_, err := svc.Do(ctx, "missing", service.Action{Name: service.ActionStart})

			Convey("Then it is not found", func() {
				So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
			})
		})

		Convey("When the session runs through the task and finishes", func() {
			est := ests.get(id)
			So(est, ShouldNotBeNil)
			calibrate(ctx, svc, clock, est, id)

			do(ctx, svc, id, service.Action{
				Name:   service.ActionTarget,
				Target: &model.TargetFrame{TargetID: model.ID("t1"), Screen: model.Pt(500, 500)},
			})
			clock.Advance(10 * time.Millisecond)
			do(ctx, svc, id, service.Action{Name: service.ActionPointer, Pointer: model.Pt(490, 500)})
			est.Look(model.Pt(520, 500))
			So(est.Emit(), ShouldBeTrue)
			res := do(ctx, svc, id, service.Action{
				Name: service.ActionHit,
				Hit:  &model.HitEvent{TargetID: model.ID("t1"), Kind: model.HitClick},
			})
			So(res.Record, ShouldNotBeNil)
			So(res.Record.HitRegistered, ShouldBeTrue)
			So(res.Record.Gaze, ShouldResemble, model.Pt(520, 500))

			res = do(ctx, svc, id, service.Action{Name: service.ActionFinish})
			fin := res.Finished
			So(fin, ShouldNotBeNil)
			So(res.State.Calibration.Phase, ShouldEqual, model.PhaseFinished)

			Convey("Then the summary covers the task records", func() {
				So(fin.SessionID, ShouldEqual, id)
				So(fin.Summary.Records, ShouldEqual, 3)
				So(fin.Summary.TargetsHit, ShouldEqual, 1)
				So(fin.StoragePath, ShouldStartWith, "sessions/"+id+"/gaze-results-")
				So(fin.StoragePath, ShouldEndWith, ".csv")
				So(fin.Upload.State, ShouldEqual, model.UploadPending)
			})

			Convey("Then the session record is stored", func() {
				rec, err := svc.Record(ctx, id)
				So(err, ShouldBeNil)
				So(rec.TargetsHit, ShouldEqual, 1)
				So(rec.RawData, ShouldHaveLength, 3)

				list, err := svc.Records(ctx, 10)
				So(err, ShouldBeNil)
				So(list, ShouldHaveLength, 1)
			})

			Convey("Then the report can be exported and parsed back", func() {
				r, err := svc.ExportReport(ctx, id)
				So(err, ShouldBeNil)
				So(r.ID, ShouldEqual, fin.ReportID)

				parsed, err := report.Parse(strings.NewReader(r.Body))
				So(err, ShouldBeNil)
				So(parsed.SessionID(), ShouldEqual, id)
				So(parsed.Records, ShouldHaveLength, 3)
				label, _ := parsed.Value("Participant Label")
				So(label, ShouldEqual, "P07")
			})

			Convey("Then stats count the stored data", func() {
				stats, err := svc.GetStats(ctx)
				So(err, ShouldBeNil)
				So(stats.ActiveSessions, ShouldEqual, 1)
				So(stats.StoredSessions, ShouldEqual, 1)
				So(stats.StoredReports, ShouldEqual, 1)
				So(stats.UploadEnabled, ShouldBeFalse)
			})

			Convey("And the report is uploaded back to the service", func() {
				r, err := svc.ExportReport(ctx, id)
				So(err, ShouldBeNil)

				first, err := svc.IngestReport(ctx, "copy-1", "r-1", []byte(r.Body))
				So(err, ShouldBeNil)
				So(first.Duplicate, ShouldBeFalse)
				So(first.SessionID, ShouldEqual, "copy-1")
				So(first.Records, ShouldEqual, 3)

				again, err := svc.IngestReport(ctx, "copy-1", "r-1", []byte(r.Body))

				Convey("Then the repeat is acknowledged as a duplicate", func() {
					So(err, ShouldBeNil)
					So(again.Duplicate, ShouldBeTrue)
					So(again.StoragePath, ShouldEqual, first.StoragePath)

					stats, err := svc.GetStats(ctx)
					So(err, ShouldBeNil)
					So(stats.StoredReports, ShouldEqual, 2)
					So(stats.StoredSessions, ShouldEqual, 2)
				})
			})
		})

		Convey("When a live session is exported before finishing", func() {
			r, err := svc.ExportReport(ctx, id)

			Convey("Then the report is rendered on the fly", func() {
				So(err, ShouldBeNil)
				So(r.ID, ShouldBeEmpty)
				So(r.Body, ShouldContainSubstring, report.Header)
			})
		})

		Convey("When the session is closed", func() {
			res, err := svc.Do(ctx, id, service.Action{Name: service.ActionClose})
			So(err, ShouldBeNil)
			So(res.State.ID, ShouldEqual, id)

			Convey("Then it is eventually forgotten", func() {
				deadline := time.Now().Add(2 * time.Second)
				for len(svc.Sessions(ctx)) > 0 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				_, err := svc.State(ctx, id)
				So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestIngestReport(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithConfig(testConfig(t)))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() {
			So(svc.Stop(ctx), ShouldBeNil)
		})

		Convey("When the body is not a report", func() {
			_, err := svc.IngestReport(ctx, "s-1", "r-bad", []byte("hello"))

			Convey("Then it is rejected and the id can be retried", func() {
				So(errors.Is(err, service.ErrInvalidReport), ShouldBeTrue)

				body, err := report.Serialize(&report.Document{SessionID: "s-1", Date: time.Now()})
				So(err, ShouldBeNil)
				res, err := svc.IngestReport(ctx, "", "r-bad", body)
				So(err, ShouldBeNil)
				So(res.Duplicate, ShouldBeFalse)
				So(res.SessionID, ShouldEqual, "s-1")
			})
		})

		Convey("When rows carry values the store cannot encode", func() {
			for i, rows := range []string{
				"1,task,t1,,,,NaN,5,,,,,,,,,,,false\n",
				"0,task,t1,,,,1,1,,,,,,,,,,,false\n3600000000,task,t1,,,,1,1,,,,,,,,,,,false\n",
			} {
				_, err := svc.IngestReport(ctx, "s-2", fmt.Sprintf("r-range-%d", i), []byte(report.Header+"\n"+rows))
				So(errors.Is(err, service.ErrInvalidReport), ShouldBeTrue)
			}

			Convey("Then nothing is stored for the session", func() {
				_, err := svc.Record(ctx, "s-2")
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When neither header nor report names a session", func() {
			body, err := report.Serialize(&report.Document{Date: time.Now()})
			So(err, ShouldBeNil)
			_, err = svc.IngestReport(ctx, "", "r-anon", body)

			Convey("Then the session id is reported missing", func() {
				So(errors.Is(err, service.ErrMissingSessionID), ShouldBeTrue)
			})
		})

		Convey("When an uploaded report has no records", func() {
			body, err := report.Serialize(&report.Document{SessionID: "s-2", Date: time.Now()})
			So(err, ShouldBeNil)
			res, err := svc.IngestReport(ctx, "", "", body)

			Convey("Then a report id is assigned and the record stored", func() {
				So(err, ShouldBeNil)
				So(res.ReportID, ShouldNotBeEmpty)
				So(res.Records, ShouldEqual, 0)

				rec, err := svc.Record(ctx, "s-2")
				So(err, ShouldBeNil)
				So(rec.TargetsHit, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a service that was never started", t, func() {
		svc := service.New(service.WithConfig(testConfig(t)))

		Convey("Then sessions cannot be created", func() {
			_, err := svc.CreateSession(context.Background(), service.CreateRequest{})
			So(err, ShouldEqual, service.ErrNotStarted)
		})
	})
}
