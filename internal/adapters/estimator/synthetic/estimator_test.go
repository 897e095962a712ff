package synthetic_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/syncgaze/internal/adapters/estimator/synthetic"
	"github.com/okian/syncgaze/internal/domain/model"
)

func TestEstimator(t *testing.T) {
	ctx := context.Background()

	Convey("Given a noiseless estimator driven by hand", t, func() {
		est := synthetic.New(
			synthetic.WithInterval(0),
			synthetic.WithNoise(0),
			synthetic.WithBias(100, -40),
			synthetic.WithDecay(0.5),
		)
		var got []*model.Point
		est.SetGazeListener(func(p *model.Point) { got = append(got, p) })

		Convey("When nothing has started", func() {
			Convey("Then Emit does nothing", func() {
				So(est.Emit(), ShouldBeFalse)
			})
		})

		Convey("When it runs and the participant looks at a point", func() {
			So(est.Begin(ctx), ShouldBeNil)
			est.Look(model.Pt(500, 300))
			So(est.Emit(), ShouldBeTrue)

			Convey("Then the estimate carries the untrained bias", func() {
				So(*got[0], ShouldResemble, model.Point{X: 600, Y: 260})
			})

			Convey("And training shrinks the bias", func() {
				est.Train(500, 300)
				est.Train(500, 300)
				est.Emit()
				So(*got[1], ShouldResemble, model.Point{X: 525, Y: 290})
				So(est.Trained(), ShouldEqual, 2)

				Convey("And clearing data restores it", func() {
					est.ClearData()
					So(est.Bias(), ShouldResemble, model.Point{X: 100, Y: -40})
					So(est.Trained(), ShouldEqual, 0)
				})
			})

			Convey("And a hidden face yields nil estimates", func() {
				est.Look(nil)
				est.Emit()
				So(got[1], ShouldBeNil)
			})
		})
	})

	Convey("Given a seeded noisy estimator", t, func() {
		mk := func() *synthetic.Estimator {
			return synthetic.New(synthetic.WithInterval(0), synthetic.WithSeed(7), synthetic.WithBias(0, 0), synthetic.WithNoise(10))
		}
		a, b := mk(), mk()
		var pa, pb []model.Point
		a.SetGazeListener(func(p *model.Point) { pa = append(pa, *p) })
		b.SetGazeListener(func(p *model.Point) { pb = append(pb, *p) })
		for _, e := range []*synthetic.Estimator{a, b} {
			So(e.Begin(ctx), ShouldBeNil)
			e.Look(model.Pt(0, 0))
			for i := 0; i < 200; i++ {
				e.Emit()
			}
		}

		Convey("Then the same seed reproduces the same estimates", func() {
			So(pa, ShouldResemble, pb)
		})

		Convey("And the noise is centred on the target", func() {
			var sx float64
			for _, p := range pa {
				sx += p.X
			}
			So(math.Abs(sx/float64(len(pa))), ShouldBeLessThan, 3)
		})
	})

	Convey("Given an estimator without a camera", t, func() {
		boom := errors.New("no camera")
		est := synthetic.New(synthetic.WithBeginError(boom))
		So(errors.Is(est.Begin(ctx), boom), ShouldBeTrue)
	})

	Convey("Given an estimator emitting on its own", t, func() {
		est := synthetic.New(synthetic.WithInterval(time.Millisecond), synthetic.WithNoise(0))
		est.Look(model.Pt(1, 1))
		var (
			mu sync.Mutex
			n  int
		)
		est.SetGazeListener(func(*model.Point) {
			mu.Lock()
			n++
			mu.Unlock()
		})
		So(est.Begin(ctx), ShouldBeNil)
		time.Sleep(30 * time.Millisecond)
		So(est.End(), ShouldBeNil)

		Convey("Then it produced estimates and stops after End", func() {
			mu.Lock()
			seen := n
			mu.Unlock()
			So(seen, ShouldBeGreaterThan, 0)
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			defer mu.Unlock()
			So(n, ShouldEqual, seen)
		})
	})
}
