package session_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/okian/syncgaze/internal/adapters/estimator/remote"
	"github.com/okian/syncgaze/internal/domain/calibration"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/samplebus"
	"github.com/okian/syncgaze/internal/domain/session"
	"github.com/okian/syncgaze/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

type stubEstimator struct {
	mu       sync.Mutex
	listener func(*model.Point)
	ended    int
}

func (e *stubEstimator) Begin(context.Context) error { return nil }

func (e *stubEstimator) End() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ended++
	return nil
}

func (e *stubEstimator) SetGazeListener(fn func(*model.Point)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = fn
}

func (e *stubEstimator) ClearGazeListener() { e.SetGazeListener(nil) }
func (e *stubEstimator) ClearData()         {}

func (e *stubEstimator) emit(p *model.Point) {
	e.mu.Lock()
	fn := e.listener
	e.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func newSession(clock *samplebus.ManualClock, est *stubEstimator) *session.Session {
	return session.New("s-1", est,
		session.WithClock(clock),
		session.WithFrameInterval(0),
		session.WithParticipant(model.Participant{Label: "P01"}),
		session.WithMachineOptions(
			calibration.WithGrid([]model.Point{{X: 50, Y: 50}}),
			calibration.WithClicksPerPoint(1),
			calibration.WithPursuitDuration(100*time.Millisecond),
			calibration.WithValidationWindow(100*time.Millisecond),
		),
	)
}

func TestSession(t *testing.T) {
	Convey("Given a session that is not running", t, func() {
		s := newSession(samplebus.NewManualClock(0), &stubEstimator{})

		Convey("Then commands are rejected", func() {
			So(s.Start(context.Background()), ShouldEqual, session.ErrNotRunning)
		})
	})

	Convey("Given a running session", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		clock := samplebus.NewManualClock(10_000)
		est := &stubEstimator{}
		s := newSession(clock, est)
		go func() { _ = s.Run(ctx) }()
		<-s.Ready()

		So(s.Start(ctx), ShouldBeNil)
		So(s.Phase(), ShouldEqual, model.PhaseFaceCheck)

		Convey("When a hit arrives before the task", func() {
			_, err := s.Hit(ctx, model.HitEvent{TargetID: model.ID("t1")})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, calibration.ErrInvalidPhase), ShouldBeTrue)
			})
		})

		Convey("When the protocol runs through to the task", func() {
			est.emit(model.Pt(10, 10))
			So(s.ConfirmFace(ctx), ShouldBeNil)
			So(s.Click(ctx), ShouldBeNil)
			So(s.Phase(), ShouldEqual, model.PhaseCalibrating2)

			So(s.Tick(ctx), ShouldBeNil)
			clock.Advance(100 * time.Millisecond)
			So(s.Tick(ctx), ShouldBeNil)
			So(s.Phase(), ShouldEqual, model.PhaseConfirmValidation)

			So(s.ConfirmValidation(ctx), ShouldBeNil)
			for i := 0; i < 3; i++ {
				est.emit(model.Pt(990, 580))
			}
			clock.Advance(100 * time.Millisecond)
			So(s.Tick(ctx), ShouldBeNil)

			st, err := s.State(ctx)
			So(err, ShouldBeNil)
			So(st.Calibration.AwaitingDecision, ShouldBeTrue)
			So(st.Calibration.Validation.SampleCount, ShouldEqual, 3)
			So(st.Calibration.Validation.ErrorPx, ShouldAlmostEqual, 50, 1e-9)
			So(*st.Calibration.SuccessRate, ShouldEqual, 0)

			So(s.Proceed(ctx), ShouldBeNil)
			So(s.Phase(), ShouldEqual, model.PhaseTask)

			s.SetTarget(&model.TargetFrame{TargetID: model.ID("t1"), Screen: model.Pt(500, 500)})
			clock.Advance(10 * time.Millisecond)
			So(s.PublishPointer(model.Pt(490, 500)), ShouldBeTrue)
			est.emit(model.Pt(520, 500))
			rec, err := s.Hit(ctx, model.HitEvent{TargetID: model.ID("t1"), Kind: model.HitClick})
			So(err, ShouldBeNil)

			Convey("Then the hit is correlated with the latest samples", func() {
				So(rec.HitRegistered, ShouldBeTrue)
				So(rec.TimestampMs, ShouldEqual, clock.NowMs())
				So(rec.TargetScreen, ShouldResemble, model.Pt(500, 500))
				So(rec.Gaze, ShouldResemble, model.Pt(520, 500))
				So(rec.Pointer, ShouldResemble, model.Pt(490, 500))
			})

			Convey("Then hits stamped far from the session clock are rejected", func() {
				now := clock.NowMs()
				for _, ts := range []int64{now + 3_600_000_000, now + 61_000, now - 120_000} {
					_, err := s.Hit(ctx, model.HitEvent{TimestampMs: ts, TargetID: model.ID("t1"), Kind: model.HitClick})
					So(errors.Is(err, session.ErrTimestampRange), ShouldBeTrue)
				}
				So(s.Records(), ShouldHaveLength, 3)

				rec, err := s.Hit(ctx, model.HitEvent{TimestampMs: now - 5_000, TargetID: model.ID("t1"), Kind: model.HitClick})
				So(err, ShouldBeNil)
				So(rec.TimestampMs, ShouldEqual, now-5_000)
			})

			Convey("Then task samples carry the current target", func() {
				records := s.Records()
				So(records, ShouldHaveLength, 3)
				So(*records[0].TargetID, ShouldEqual, "t1")
				So(records[0].Phase, ShouldEqual, model.PhaseTask)
			})

			Convey("And finishing returns the outcome", func() {
				out, err := s.Finish(ctx)
				So(err, ShouldBeNil)
				So(s.Phase(), ShouldEqual, model.PhaseFinished)
				So(out.SessionID, ShouldEqual, "s-1")
				So(out.Participant.Label, ShouldEqual, "P01")
				So(out.Records, ShouldHaveLength, 3)
				So(out.Calibration.Status, ShouldEqual, calibration.StatusPassed)
				So(out.Calibration.CompletedAt, ShouldNotBeNil)
				So(out.FinishedAt, ShouldNotBeNil)
				So(est.ended, ShouldEqual, 1)
			})
		})

		Convey("When the session is closed", func() {
			So(s.Close(ctx), ShouldBeNil)
			<-s.Done()

			Convey("Then the loop is gone", func() {
				So(s.Click(ctx), ShouldEqual, session.ErrClosed)
				So(s.Close(ctx), ShouldBeNil)
			})
		})
	})
}

// stalledPeer blocks every Send until release is closed.
type stalledPeer struct {
	release chan struct{}
}

func (p *stalledPeer) Send(remote.Command) error {
	<-p.release
	return nil
}

func TestSessionWithStalledPeer(t *testing.T) {
	Convey("Given a session whose remote estimator peer stopped reading", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		feed := remote.New(remote.WithQueueSize(1))
		peer := &stalledPeer{release: make(chan struct{})}
		detach := feed.Attach(peer)
		Reset(func() {
			close(peer.release)
			detach()
		})

		grid := []model.Point{{X: 10, Y: 10}, {X: 50, Y: 10}, {X: 90, Y: 10}, {X: 10, Y: 90}, {X: 90, Y: 90}}
		s := session.New("s-2", feed,
			session.WithClock(samplebus.NewManualClock(1_000)),
			session.WithFrameInterval(0),
			session.WithMachineOptions(
				calibration.WithGrid(grid),
				calibration.WithClicksPerPoint(1),
			),
		)
		go func() { _ = s.Run(ctx) }()
		<-s.Ready()

		So(s.Start(ctx), ShouldBeNil)
		feed.Push(model.Pt(10, 10))
		So(s.ConfirmFace(ctx), ShouldBeNil)

		Convey("When the participant clicks through the grid", func() {
			done := make(chan error, 1)
			go func() {
				for range grid {
					if err := s.Click(ctx); err != nil {
						done <- err
						return
					}
				}
				done <- nil
			}()

			Convey("Then every click returns and the machine advances", func() {
				var (
					err     error
					stalled bool
				)
				select {
				case err = <-done:
				case <-time.After(2 * time.Second):
					stalled = true
				}
				So(stalled, ShouldBeFalse)
				So(err, ShouldBeNil)
				So(s.Phase(), ShouldEqual, model.PhaseCalibrating2)
				So(feed.Trained(), ShouldEqual, len(grid))
				So(feed.Dropped(), ShouldBeGreaterThan, 0)
			})
		})
	})
}
