package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/okian/syncgaze/internal/adapters/estimator/remote"
	"github.com/okian/syncgaze/internal/adapters/estimator/synthetic"
	"github.com/okian/syncgaze/internal/adapters/http/api"
	service "github.com/okian/syncgaze/internal/app"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/pkg/logger"
)

// inbound is any message the server sends on the feed: an estimator
// command or a reply.
type inbound struct {
	Type    string          `json:"type"`
	X       *float64        `json:"x,omitempty"`
	Y       *float64        `json:"y,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

// peer plays the browser side of a remote session: it runs a local
// synthetic estimator, streams its estimates and obeys the server's
// estimator commands.
type peer struct {
	conn    *websocket.Conn
	est     *synthetic.Estimator
	replies chan inbound
	quit    chan struct{}
	done    chan struct{}
	logger  logger.Logger

	mu  sync.Mutex
	err error
}

func dialPeer(ctx context.Context, url string, est *synthetic.Estimator, l logger.Logger) (*peer, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	_ = resp.Body.Close()

	p := &peer{
		conn:    conn,
		est:     est,
		replies: make(chan inbound, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  l,
	}
	est.SetGazeListener(p.sendGaze)
	go p.read()
	return p, nil
}

// read applies commands and forwards replies until the connection ends.
func (p *peer) read() {
	defer close(p.done)
	for {
		var msg inbound
		if err := p.conn.ReadJSON(&msg); err != nil {
			p.fail(err)
			return
		}
		switch msg.Type {
		case remote.CommandBegin:
			if err := p.est.Begin(context.Background()); err != nil {
				p.logger.Warn(context.Background(), "estimator begin failed", logger.Error(err))
			}
		case remote.CommandEnd:
			_ = p.est.End()
		case remote.CommandClear:
			p.est.ClearData()
		case remote.CommandTrain:
			if msg.X != nil && msg.Y != nil {
				p.est.Train(*msg.X, *msg.Y)
			}
		default:
			select {
			case p.replies <- msg:
			case <-p.quit:
				return
			}
		}
	}
}

func (p *peer) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
	}
}

func (p *peer) closedErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Errorf("%w: %w", ErrFeedClosed, p.err)
}

func (p *peer) send(m api.FeedMessage) error {
	return p.conn.WriteJSON(m)
}

func (p *peer) sendGaze(pt *model.Point) {
	m := api.FeedMessage{Type: api.FeedGaze}
	if pt != nil {
		m.X, m.Y = &pt.X, &pt.Y
	}
	if err := p.send(m); err != nil {
		p.fail(err)
	}
}

// look points the simulated eyes at pt and emits one estimate.
func (p *peer) look(pt *model.Point) {
	p.est.Look(pt)
	p.est.Emit()
}

func (p *peer) pointer(pt model.Point) error {
	return p.send(api.FeedMessage{Type: api.FeedPointer, X: &pt.X, Y: &pt.Y})
}

func (p *peer) target(f *model.TargetFrame) error {
	return p.send(api.FeedMessage{Type: api.FeedTarget, Target: f})
}

// action sends an action or hit and waits for its reply.
func (p *peer) action(ctx context.Context, m api.FeedMessage) (service.ActionResult, error) {
	var res service.ActionResult
	if err := p.send(m); err != nil {
		return res, fmt.Errorf("send %s: %w", m.Type, err)
	}
	select {
	case r := <-p.replies:
		if r.Type == "error" {
			return res, fmt.Errorf("%w: %s %s: %s", ErrActionFailed, m.Type, m.Action, r.Message)
		}
		if err := json.Unmarshal(r.Result, &res); err != nil {
			return res, fmt.Errorf("decode reply: %w", err)
		}
		return res, nil
	case <-p.done:
		return res, p.closedErr()
	case <-ctx.Done():
		return res, ctx.Err()
	}
}

func (p *peer) do(ctx context.Context, name string) (service.ActionResult, error) {
	return p.action(ctx, api.FeedMessage{Type: api.FeedAction, Action: name})
}

func (p *peer) close() {
	p.est.ClearGazeListener()
	close(p.quit)
	_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = p.conn.Close()
	<-p.done
	_ = p.est.End()
}
