package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/syncgaze/internal/adapters/estimator/remote"
	service "github.com/okian/syncgaze/internal/app"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/session"
	"github.com/okian/syncgaze/pkg/logger"
	"github.com/okian/syncgaze/pkg/metrics"
)

const feedWriteTimeout = 5 * time.Second

// Feed message types sent by the peer.
const (
	FeedGaze    = "gaze"
	FeedPointer = "pointer"
	FeedTarget  = "target"
	FeedHit     = "hit"
	FeedAction  = "action"
)

// FeedMessage is one message from the peer. X and Y carry gaze and pointer
// positions; a gaze message without coordinates means no estimate.
type FeedMessage struct {
	Type   string             `json:"type"`
	X      *float64           `json:"x,omitempty"`
	Y      *float64           `json:"y,omitempty"`
	Target *model.TargetFrame `json:"target,omitempty"`
	Hit    *model.HitEvent    `json:"hit,omitempty"`
	Action string             `json:"action,omitempty"`
}

// FeedReply is sent back for hit and action messages.
type FeedReply struct {
	Type    string                `json:"type"`
	Result  *service.ActionResult `json:"result,omitempty"`
	Message string                `json:"message,omitempty"`
}

// FeedDependencies defines what the websocket feed needs.
type FeedDependencies interface {
	Feed(id string) (*remote.Feed, *session.Session, error)
	Do(ctx context.Context, id string, a service.Action) (service.ActionResult, error)
}

// FeedHandler bridges a browser estimator to a session over a websocket.
type FeedHandler struct {
	deps     FeedDependencies
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(deps FeedDependencies, l logger.Logger) *FeedHandler {
	return &FeedHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: l,
	}
}

// wsSink serialises writes to the connection. Commands come from the feed's
// writer goroutine while replies come from the read loop, so neither runs on
// the session loop.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
	return s.conn.WriteJSON(v)
}

// Send implements remote.Sink. A failed write closes the connection, which
// ends the read loop and detaches the peer.
func (s *wsSink) Send(cmd remote.Command) error {
	if err := s.write(cmd); err != nil {
		_ = s.conn.Close()
		return err
	}
	return nil
}

// HandleFeed handles GET /sessions/{id}/feed websocket upgrades.
func (h *FeedHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	feed, sess, err := h.deps.Feed(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.String("session", id), logger.Error(err))
		return
	}
	defer conn.Close()

	sink := &wsSink{conn: conn}
	detach := feed.Attach(sink)
	defer detach()
	h.logger.Info(r.Context(), "estimator feed attached", logger.String("session", id))

	ctx := r.Context()
	for {
		var msg FeedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug(ctx, "feed read ended", logger.String("session", id), logger.Error(err))
			}
			break
		}
		reply, err := h.handle(ctx, id, feed, sess, msg)
		if err != nil {
			metrics.RecordErrorByComponent("feed", errorCode(err))
			reply = &FeedReply{Type: "error", Message: err.Error()}
		}
		if reply == nil {
			continue
		}
		if err := sink.write(reply); err != nil {
			h.logger.Debug(ctx, "feed write failed", logger.String("session", id), logger.Error(err))
			break
		}
	}
	h.logger.Info(ctx, "estimator feed detached", logger.String("session", id))
}

func (h *FeedHandler) handle(ctx context.Context, id string, feed *remote.Feed, sess *session.Session, msg FeedMessage) (*FeedReply, error) {
	const op = "api.feed"
	switch msg.Type {
	case FeedGaze:
		feed.Push(point(msg.X, msg.Y))
		return nil, nil
	case FeedPointer:
		if p := point(msg.X, msg.Y); p != nil {
			sess.PublishPointer(p)
		}
		return nil, nil
	case FeedTarget:
		sess.SetTarget(msg.Target)
		return nil, nil
	case FeedHit:
		return h.do(ctx, id, service.Action{Name: service.ActionHit, Hit: msg.Hit})
	case FeedAction:
		return h.do(ctx, id, service.Action{Name: msg.Action})
	default:
		return nil, WrapKind(op, ErrUnknownMessage, errors.New(msg.Type))
	}
}

func (h *FeedHandler) do(ctx context.Context, id string, a service.Action) (*FeedReply, error) {
	res, err := h.deps.Do(ctx, id, a)
	if err != nil {
		return nil, err
	}
	return &FeedReply{Type: "result", Result: &res}, nil
}

func point(x, y *float64) *model.Point {
	if x == nil || y == nil {
		return nil
	}
	return model.Pt(*x, *y)
}

func errorCode(err error) string {
	_, code := classify(err)
	return code
}
