// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/syncgaze/internal/adapters/estimator/remote"
	"github.com/okian/syncgaze/internal/adapters/repository"
	service "github.com/okian/syncgaze/internal/app"
	"github.com/okian/syncgaze/internal/domain/calibration"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/session"
	"github.com/okian/syncgaze/pkg/logger"
)

// DefaultMaxReportBytes caps POST /reports bodies when no limit is set.
const DefaultMaxReportBytes = 32 << 20

// Dependencies required by HTTP handlers. *service.Service implements it.
type Dependencies interface {
	CreateSession(ctx context.Context, req service.CreateRequest) (session.Snapshot, error)
	Sessions(ctx context.Context) []session.Snapshot
	State(ctx context.Context, id string) (session.Snapshot, error)
	Do(ctx context.Context, id string, a service.Action) (service.ActionResult, error)
	Feed(id string) (*remote.Feed, *session.Session, error)

	ExportReport(ctx context.Context, id string) (repository.Report, error)
	IngestReport(ctx context.Context, sessionID, reportID string, body []byte) (service.IngestResult, error)
	Records(ctx context.Context, limit int) ([]model.SessionRecord, error)
	Record(ctx context.Context, id string) (model.SessionRecord, error)

	GetStats(ctx context.Context) (service.Stats, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	sessionsHandler *SessionsHandler
	recordsHandler  *RecordsHandler
	reportsHandler  *ReportsHandler
	feedHandler     *FeedHandler
}

// Option configures the Server.
type Option func(*settings)

type settings struct {
	maxReportBytes int64
	logger         logger.Logger
}

// WithMaxReportBytes caps the size of uploaded reports.
func WithMaxReportBytes(n int64) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxReportBytes = n
		}
	}
}

// WithLogger sets the logger used by the handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	cfg := settings{maxReportBytes: DefaultMaxReportBytes}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get().Named("api")
	}
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		sessionsHandler: NewSessionsHandler(deps),
		recordsHandler:  NewRecordsHandler(deps),
		reportsHandler:  NewReportsHandler(deps, cfg.maxReportBytes),
		feedHandler:     NewFeedHandler(deps, cfg.logger),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /sessions", MetricsMiddleware(s.sessionsHandler.HandleCreate, "sessions"))
	mux.HandleFunc("GET /sessions", MetricsMiddleware(s.sessionsHandler.HandleList, "sessions"))
	mux.HandleFunc("GET /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleGet, "session"))
	mux.HandleFunc("POST /sessions/{id}/{action}", MetricsMiddleware(s.sessionsHandler.HandleAction, "session_action"))
	mux.HandleFunc("GET /sessions/{id}/report", MetricsMiddleware(s.reportsHandler.HandleExport, "session_report"))
	mux.HandleFunc("GET /sessions/{id}/feed", s.feedHandler.HandleFeed)

	mux.HandleFunc("GET /records", MetricsMiddleware(s.recordsHandler.HandleList, "records"))
	mux.HandleFunc("GET /records/{id}", MetricsMiddleware(s.recordsHandler.HandleGet, "record"))
	mux.HandleFunc("POST /reports", MetricsMiddleware(s.reportsHandler.HandleIngest, "reports"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps an upstream error to a status and error code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrPayloadTooBig):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrEmptyReport),
		errors.Is(err, service.ErrUnknownAction),
		errors.Is(err, service.ErrUnknownEstimator),
		errors.Is(err, service.ErrEstimatorDisabled),
		errors.Is(err, service.ErrInvalidReport),
		errors.Is(err, service.ErrMissingSessionID),
		errors.Is(err, service.ErrMissingActionParams),
		errors.Is(err, session.ErrTimestampRange),
		errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, calibration.ErrInvalidPhase),
		errors.Is(err, calibration.ErrInvalidTransition),
		errors.Is(err, calibration.ErrNoFaceDetected),
		errors.Is(err, calibration.ErrValidationPending),
		errors.Is(err, calibration.ErrEstimatorUnavailable),
		errors.Is(err, service.ErrNoFeed),
		errors.Is(err, session.ErrClosed):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
