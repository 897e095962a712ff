package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	service "github.com/okian/syncgaze/internal/app"
	"github.com/okian/syncgaze/internal/domain/session"
)

// SessionDependencies defines the session operations used by the handlers.
type SessionDependencies interface {
	CreateSession(ctx context.Context, req service.CreateRequest) (session.Snapshot, error)
	Sessions(ctx context.Context) []session.Snapshot
	State(ctx context.Context, id string) (session.Snapshot, error)
	Do(ctx context.Context, id string, a service.Action) (service.ActionResult, error)
}

// SessionsHandler handles session requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

type sessionsResponse struct {
	Sessions []session.Snapshot `json:"sessions"`
}

// HandleCreate handles POST /sessions requests. An empty body creates a
// session with defaults.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_session"
	var req service.CreateRequest
	if err := decodeOptional(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	st, err := h.deps.CreateSession(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// HandleList handles GET /sessions requests.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: h.deps.Sessions(r.Context())})
}

// HandleGet handles GET /sessions/{id} requests.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.State(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleAction handles POST /sessions/{id}/{action} requests. The body
// carries the parameters of hit, target and pointer.
func (h *SessionsHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	const op = "api.session_action"
	var a service.Action
	if err := decodeOptional(r.Body, &a); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	a.Name = r.PathValue("action")

	res, err := h.deps.Do(r.Context(), r.PathValue("id"), a)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decodeOptional decodes a JSON body into v, accepting an empty body.
func decodeOptional(body io.Reader, v any) error {
	if body == nil {
		return nil
	}
	err := json.NewDecoder(body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
