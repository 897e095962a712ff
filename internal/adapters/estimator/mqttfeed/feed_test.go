package mqttfeed_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/syncgaze/internal/adapters/estimator/mqttfeed"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

type token struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *token {
	t := &token{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *token) Wait() bool                     { <-t.done; return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Done() <-chan struct{}          { return t.done }
func (t *token) Error() error                   { return t.err }

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 1 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 0 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

type published struct {
	topic   string
	payload string
}

type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	handlers   map[string]mqtt.MessageHandler
	published  []published
	// unsubscribed, when set, is the token returned by Unsubscribe.
	unsubscribed *token
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = c.connectErr == nil
	return doneToken(c.connectErr)
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = cb
	return doneToken(nil)
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.handlers, t)
	}
	if c.unsubscribed != nil {
		return c.unsubscribed
	}
	return doneToken(nil)
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload any) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, payload: string(payload.([]byte))})
	return doneToken(nil)
}

func (c *fakeClient) deliver(topic, payload string) bool {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.mu.Unlock()
	if ok {
		h(nil, message{topic: topic, payload: []byte(payload)})
	}
	return ok
}

func TestEstimator(t *testing.T) {
	ctx := context.Background()

	Convey("Given an estimator for session s1", t, func() {
		client := newFakeClient()
		est := mqttfeed.NewBroker(client, "syncgaze").Estimator("s1")

		var got []*model.Point
		est.SetGazeListener(func(p *model.Point) { got = append(got, p) })

		Convey("When it begins", func() {
			So(est.Begin(ctx), ShouldBeNil)

			Convey("Then it connects, subscribes and announces itself", func() {
				So(client.IsConnected(), ShouldBeTrue)
				So(client.published[0], ShouldResemble, published{topic: "syncgaze/s1/control", payload: `{"type":"begin"}`})
			})

			Convey("And gaze messages reach the listener, null as nil", func() {
				So(client.deliver("syncgaze/s1/gaze", `{"x":12.5,"y":40}`), ShouldBeTrue)
				So(client.deliver("syncgaze/s1/gaze", `null`), ShouldBeTrue)
				So(client.deliver("syncgaze/s1/gaze", `{"x":1}`), ShouldBeTrue)
				So(got, ShouldHaveLength, 3)
				So(*got[0], ShouldResemble, model.Point{X: 12.5, Y: 40})
				So(got[1], ShouldBeNil)
				So(got[2], ShouldBeNil)
			})

			Convey("And training points are published", func() {
				est.Train(100, 200)
				last := client.published[len(client.published)-1]
				So(last.topic, ShouldEqual, "syncgaze/s1/train")
				var m map[string]float64
				So(json.Unmarshal([]byte(last.payload), &m), ShouldBeNil)
				So(m, ShouldResemble, map[string]float64{"x": 100, "y": 200})
			})

			Convey("And End unsubscribes", func() {
				So(est.End(), ShouldBeNil)
				So(client.deliver("syncgaze/s1/gaze", `{"x":1,"y":1}`), ShouldBeFalse)
				last := client.published[len(client.published)-1]
				So(last.payload, ShouldEqual, `{"type":"end"}`)
			})
		})

		Convey("When the broker never acknowledges the unsubscribe", func() {
			So(est.Begin(ctx), ShouldBeNil)
			pending := &token{done: make(chan struct{})}
			client.mu.Lock()
			client.unsubscribed = pending
			client.mu.Unlock()
			Reset(func() { close(pending.done) })

			Convey("Then End returns without waiting for the broker", func() {
				ended := make(chan error, 1)
				go func() { ended <- est.End() }()
				var (
					err     error
					blocked bool
				)
				select {
				case err = <-ended:
				case <-time.After(time.Second):
					blocked = true
				}
				So(blocked, ShouldBeFalse)
				So(err, ShouldBeNil)
				client.mu.Lock()
				last := client.published[len(client.published)-1]
				client.mu.Unlock()
				So(last.payload, ShouldEqual, `{"type":"end"}`)
			})
		})

		Convey("When the broker is unreachable", func() {
			client.connectErr = errors.New("connection refused")

			Convey("Then Begin fails", func() {
				So(est.Begin(ctx), ShouldNotBeNil)
				So(client.IsConnected(), ShouldBeFalse)
			})
		})
	})
}
