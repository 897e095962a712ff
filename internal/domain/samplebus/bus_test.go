package samplebus_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/samplebus"
	"github.com/okian/syncgaze/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func drain(sub *samplebus.Subscription) []samplebus.Delivery {
	var out []samplebus.Delivery
	for {
		select {
		case d, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, d)
		default:
			return out
		}
	}
}

func TestBus_Subscribe(t *testing.T) {
	Convey("Given a bus", t, func() {
		bus := samplebus.New(samplebus.WithClock(samplebus.NewManualClock(0)))

		Convey("When the gaze stream is subscribed twice", func() {
			first, err := bus.Subscribe(model.StreamGaze)
			So(err, ShouldBeNil)
			_, err = bus.Subscribe(model.StreamGaze)

			Convey("Then the second subscription is rejected", func() {
				So(errors.Is(err, samplebus.ErrStreamBusy), ShouldBeTrue)
			})

			Convey("And closing the first frees the stream", func() {
				first.Close()
				first.Close()
				second, err := bus.Subscribe(model.StreamGaze)
				So(err, ShouldBeNil)
				So(second.Generation(), ShouldBeGreaterThan, first.Generation())
			})
		})

		Convey("When the bus is closed", func() {
			sub, _ := bus.Subscribe(model.StreamPointer)
			bus.Close()

			Convey("Then subscriber channels are closed and new subscriptions fail", func() {
				_, ok := <-sub.C()
				So(ok, ShouldBeFalse)
				_, err := bus.Subscribe(model.StreamPointer)
				So(errors.Is(err, samplebus.ErrClosed), ShouldBeTrue)
				So(bus.Publish(model.StreamPointer, model.Pt(1, 1)), ShouldBeFalse)
			})
		})
	})
}

func TestBus_Publish(t *testing.T) {
	Convey("Given a bus with a manual clock", t, func() {
		clock := samplebus.NewManualClock(1000)
		bus := samplebus.New(samplebus.WithClock(clock), samplebus.WithBufferSize(4))

		Convey("When nothing is subscribed", func() {
			ok := bus.Publish(model.StreamGaze, model.Pt(1, 2))

			Convey("Then the sample is dropped", func() {
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a nil estimate is published", func() {
			sub, _ := bus.Subscribe(model.StreamGaze)
			ok := bus.Publish(model.StreamGaze, nil)

			Convey("Then it is tolerated and not delivered", func() {
				So(ok, ShouldBeFalse)
				So(drain(sub), ShouldBeEmpty)
			})
		})

		Convey("When a sample is published", func() {
			sub, _ := bus.Subscribe(model.StreamPointer)
			bus.Publish(model.StreamPointer, model.Pt(10, 20))

			Convey("Then it is stamped with the bus clock and tagged with the generation", func() {
				got := drain(sub)
				So(got, ShouldHaveLength, 1)
				So(got[0].Gen, ShouldEqual, sub.Generation())
				So(got[0].Sample, ShouldResemble, model.Sample{Stream: model.StreamPointer, X: 10, Y: 20, TimestampMs: 1000})
			})
		})

		Convey("When the subscriber buffer is full", func() {
			sub, _ := bus.Subscribe(model.StreamPointer)
			for i := 0; i < 4; i++ {
				So(bus.Publish(model.StreamPointer, model.Pt(float64(i), 0)), ShouldBeTrue)
			}

			Convey("Then further samples are dropped without blocking", func() {
				So(bus.Publish(model.StreamPointer, model.Pt(9, 9)), ShouldBeFalse)
				So(drain(sub), ShouldHaveLength, 4)
			})
		})
	})
}

func TestBus_Throttle(t *testing.T) {
	Convey("Given a gaze subscription throttled to 100ms", t, func() {
		clock := samplebus.NewManualClock(0)
		bus := samplebus.New(samplebus.WithClock(clock))
		sub, err := bus.Subscribe(model.StreamGaze, samplebus.WithThrottle(100*time.Millisecond))
		So(err, ShouldBeNil)

		Convey("When samples arrive every 30ms for 300ms", func() {
			for ts := int64(0); ts <= 300; ts += 30 {
				clock.Set(ts)
				bus.Publish(model.StreamGaze, model.Pt(float64(ts), 0))
			}

			Convey("Then only samples at least 100ms after the last forwarded one pass", func() {
				var stamps []int64
				for _, d := range drain(sub) {
					stamps = append(stamps, d.Sample.TimestampMs)
				}
				So(stamps, ShouldResemble, []int64{0, 120, 240})
			})
		})

		Convey("And a pointer subscription without throttle sees every sample", func() {
			ptr, _ := bus.Subscribe(model.StreamPointer)
			for ts := int64(0); ts < 50; ts += 10 {
				clock.Set(ts)
				bus.Publish(model.StreamPointer, model.Pt(1, 1))
			}
			So(drain(ptr), ShouldHaveLength, 5)
		})
	})
}
