package remote_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/syncgaze/internal/adapters/estimator/remote"
	"github.com/okian/syncgaze/internal/domain/model"
)

type sink struct {
	mu   sync.Mutex
	cmds []remote.Command
}

func (s *sink) Send(c remote.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, c)
	return nil
}

func (s *sink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cmds))
	for i, c := range s.cmds {
		out[i] = c.Type
	}
	return out
}

// waitTypes polls until s has received n commands or a second passes.
func waitTypes(s *sink, n int) []string {
	deadline := time.Now().Add(time.Second)
	for len(s.types()) < n && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return s.types()
}

// stuckSink blocks every Send until release is closed.
type stuckSink struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStuckSink() *stuckSink {
	return &stuckSink{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *stuckSink) Send(remote.Command) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return nil
}

// failingSink rejects every command and counts the attempts.
type failingSink struct {
	mu    sync.Mutex
	calls int
}

func (s *failingSink) Send(remote.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return errors.New("connection reset")
}

func TestFeed(t *testing.T) {
	ctx := context.Background()

	Convey("Given a feed with no peer", t, func() {
		f := remote.New()

		Convey("Then Begin fails as unavailable", func() {
			So(errors.Is(f.Begin(ctx), remote.ErrNotConnected), ShouldBeTrue)
			So(f.Connected(), ShouldBeFalse)
		})
	})

	Convey("Given a feed with an attached peer", t, func() {
		f := remote.New()
		s := &sink{}
		detach := f.Attach(s)

		var got []*model.Point
		f.SetGazeListener(func(p *model.Point) { got = append(got, p) })

		Convey("When estimates arrive before Begin", func() {
			f.Push(model.Pt(1, 1))

			Convey("Then they are ignored", func() {
				So(got, ShouldBeEmpty)
			})
		})

		Convey("When the estimator runs", func() {
			So(f.Begin(ctx), ShouldBeNil)
			f.Push(model.Pt(10, 20))
			f.Push(nil)
			f.Train(5, 6)
			f.ClearData()
			So(f.End(), ShouldBeNil)
			f.Push(model.Pt(3, 3))

			Convey("Then estimates reach the listener including nil", func() {
				So(got, ShouldHaveLength, 2)
				So(*got[0], ShouldResemble, model.Point{X: 10, Y: 20})
				So(got[1], ShouldBeNil)
			})

			Convey("And lifecycle and training commands reach the peer", func() {
				So(waitTypes(s, 4), ShouldResemble, []string{"begin", "train", "clear", "end"})
				So(*s.cmds[1].X, ShouldEqual, 5)
				So(*s.cmds[1].Y, ShouldEqual, 6)
				So(f.Trained(), ShouldEqual, 0)
			})
		})

		Convey("When the listener is cleared", func() {
			So(f.Begin(ctx), ShouldBeNil)
			f.ClearGazeListener()
			f.Push(model.Pt(1, 1))
			So(got, ShouldBeEmpty)
		})

		Convey("When a peer reconnects during a run", func() {
			So(f.Begin(ctx), ShouldBeNil)
			next := &sink{}
			f.Attach(next)
			detach()

			Convey("Then the new peer is told to begin and stays attached", func() {
				So(waitTypes(next, 1), ShouldResemble, []string{"begin"})
				So(f.Connected(), ShouldBeTrue)
			})
		})
	})
	Convey("Given a peer that stops reading", t, func() {
		f := remote.New(remote.WithQueueSize(2))
		s := newStuckSink()
		detach := f.Attach(s)
		Reset(func() {
			close(s.release)
			detach()
		})
		So(f.Begin(ctx), ShouldBeNil)
		<-s.entered

		Convey("When training points keep coming", func() {
			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < 10; i++ {
					f.Train(float64(i), float64(i))
				}
			}()

			Convey("Then the caller is never blocked and the overflow is dropped", func() {
				blocked := false
				select {
				case <-done:
				case <-time.After(time.Second):
					blocked = true
				}
				So(blocked, ShouldBeFalse)
				So(f.Trained(), ShouldEqual, 10)
				So(f.Dropped(), ShouldEqual, 8)
			})

			Convey("And lifecycle commands report the full queue", func() {
				<-done
				So(errors.Is(f.End(), remote.ErrQueueFull), ShouldBeTrue)
			})
		})
	})

	Convey("Given a peer whose connection failed", t, func() {
		f := remote.New()
		s := &failingSink{}
		detach := f.Attach(s)
		Reset(detach)

		Convey("When commands follow the failed one", func() {
			So(f.Begin(ctx), ShouldBeNil)
			f.Train(1, 1)
			f.ClearData()
			time.Sleep(20 * time.Millisecond)

			Convey("Then only the first write is attempted", func() {
				s.mu.Lock()
				defer s.mu.Unlock()
				So(s.calls, ShouldEqual, 1)
			})
		})
	})
}
