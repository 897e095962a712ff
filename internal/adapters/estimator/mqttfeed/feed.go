// Package mqttfeed connects session estimators to an MQTT broker. A session
// with id S reads estimates from {prefix}/S/gaze and publishes training
// points to {prefix}/S/train and lifecycle commands to {prefix}/S/control.
package mqttfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/syncgaze/internal/domain/calibration"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/pkg/logger"
)

const (
	qos            = 1
	defaultTimeout = 5 * time.Second
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// Client is the part of mqtt.Client the feed uses.
type Client interface {
	IsConnected() bool
	Connect() mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// Dial creates a paho client for broker. The connection is established on
// the first Begin.
func Dial(broker, clientID string) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(defaultTimeout)
	return mqtt.NewClient(opts)
}

// Broker hands out per-session estimators sharing one connection.
type Broker struct {
	client  Client
	prefix  string
	timeout time.Duration
	logger  logger.Logger
	mu      sync.Mutex
}

// NewBroker wraps client. Topics are rooted at prefix.
func NewBroker(client Client, prefix string) *Broker {
	return &Broker{
		client:  client,
		prefix:  prefix,
		timeout: defaultTimeout,
		logger:  logger.Get().Named("mqttfeed"),
	}
}

// Estimator returns the estimator of sessionID.
func (b *Broker) Estimator(sessionID string) *Estimator {
	base := b.prefix + "/" + sessionID
	return &Estimator{
		broker:  b,
		gaze:    base + "/gaze",
		train:   base + "/train",
		control: base + "/control",
	}
}

func (b *Broker) wait(ctx context.Context, t mqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(b.timeout):
		return ErrTimeout
	}
}

func (b *Broker) connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client.IsConnected() {
		return nil
	}
	if err := b.wait(ctx, b.client.Connect()); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

func (b *Broker) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error(context.Background(), "encode mqtt payload", logger.String("topic", topic), logger.Error(err))
		return
	}
	// Fire and forget: the estimator contract has no error path here.
	b.client.Publish(topic, qos, false, payload)
}

type gazeMessage struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type trainMessage struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type controlMessage struct {
	Type string `json:"type"`
}

// Estimator implements calibration.Estimator over MQTT.
type Estimator struct {
	broker  *Broker
	gaze    string
	train   string
	control string

	mu       sync.Mutex
	listener func(*model.Point)
	active   bool
}

var (
	_ calibration.Estimator = (*Estimator)(nil)
	_ calibration.Trainer   = (*Estimator)(nil)
)

// Begin connects if needed, subscribes to the gaze topic and tells the
// remote estimator to start.
func (e *Estimator) Begin(ctx context.Context) error {
	if err := e.broker.connect(ctx); err != nil {
		return err
	}
	if err := e.broker.wait(ctx, e.broker.client.Subscribe(e.gaze, qos, e.onGaze)); err != nil {
		return fmt.Errorf("subscribe %s: %w", e.gaze, err)
	}
	e.mu.Lock()
	e.active = true
	e.mu.Unlock()
	e.broker.publish(e.control, controlMessage{Type: "begin"})
	return nil
}

// onGaze decodes {"x":..,"y":..}. A null body or missing coordinate is an
// absent estimate.
func (e *Estimator) onGaze(_ mqtt.Client, msg mqtt.Message) {
	var p *model.Point
	var m gazeMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		e.broker.logger.Debug(context.Background(), "bad gaze payload", logger.String("topic", msg.Topic()), logger.Error(err))
	} else if m.X != nil && m.Y != nil {
		p = model.Pt(*m.X, *m.Y)
	}

	e.mu.Lock()
	fn, active := e.listener, e.active
	e.mu.Unlock()
	if active && fn != nil {
		fn(p)
	}
}

// End tells the remote estimator to stop and unsubscribes without waiting
// for the broker. Estimates arriving before the unsubscribe completes are
// ignored because the estimator is no longer active.
func (e *Estimator) End() error {
	e.mu.Lock()
	wasActive := e.active
	e.active = false
	e.mu.Unlock()
	if !wasActive {
		return nil
	}
	e.broker.publish(e.control, controlMessage{Type: "end"})
	t := e.broker.client.Unsubscribe(e.gaze)
	go func() {
		if err := e.broker.wait(context.Background(), t); err != nil {
			e.broker.logger.Warn(context.Background(), "unsubscribe failed",
				logger.String("topic", e.gaze), logger.Error(err))
		}
	}()
	return nil
}

// SetGazeListener sets the estimate callback.
func (e *Estimator) SetGazeListener(fn func(*model.Point)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = fn
}

// ClearGazeListener removes the estimate callback.
func (e *Estimator) ClearGazeListener() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = nil
}

// ClearData tells the remote estimator to forget its training.
func (e *Estimator) ClearData() {
	e.broker.publish(e.control, controlMessage{Type: "clear"})
}

// Train publishes a known screen position.
func (e *Estimator) Train(x, y float64) {
	e.broker.publish(e.train, trainMessage{X: x, Y: y})
}
