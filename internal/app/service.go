// Package service owns the live sessions and the finish pipeline that turns
// a session into a stored record, a report and an upload job.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/syncgaze/internal/adapters/estimator/mqttfeed"
	"github.com/okian/syncgaze/internal/adapters/estimator/remote"
	"github.com/okian/syncgaze/internal/adapters/estimator/synthetic"
	"github.com/okian/syncgaze/internal/adapters/mq/queue"
	"github.com/okian/syncgaze/internal/adapters/mq/worker"
	"github.com/okian/syncgaze/internal/adapters/repository"
	"github.com/okian/syncgaze/internal/adapters/upload"
	"github.com/okian/syncgaze/internal/config"
	"github.com/okian/syncgaze/internal/domain/analytics"
	"github.com/okian/syncgaze/internal/domain/calibration"
	"github.com/okian/syncgaze/internal/domain/correlate"
	"github.com/okian/syncgaze/internal/domain/dedupe"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/session"
	"github.com/okian/syncgaze/internal/domain/validation"
	"github.com/okian/syncgaze/pkg/logger"
	"github.com/okian/syncgaze/pkg/metrics"
)

const closeTimeout = 5 * time.Second

// CreateRequest describes a new session.
type CreateRequest struct {
	Participant model.Participant `json:"participant"`
	Estimator   string            `json:"estimator,omitempty"`
	Viewport    *model.Viewport   `json:"viewport,omitempty"`
}

type entry struct {
	sess   *session.Session
	est    calibration.Estimator
	cancel context.CancelFunc
}

// Service implements the API dependencies for session management.
type Service struct {
	mu sync.RWMutex

	cfg         *config.Config
	store       repository.Store
	ownsStore   bool
	deduper     dedupe.Deduper
	queue       *queue.InMemoryQueue
	pool        *worker.Pool
	uploader    worker.Uploader
	mqtt        *mqttfeed.Broker
	factory     EstimatorFactory
	correlator  *correlate.Correlator
	engine      *analytics.Engine
	sessionOpts []session.Option

	sessions map[string]*entry
	started  bool
	runCtx   context.Context
	stopRuns context.CancelFunc

	logger logger.Logger
}

// New constructs a Service. Call Start before use.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:      config.New(),
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.factory == nil {
		s.factory = s.defaultEstimator
	}
	return s
}

// Start opens the store and starts the upload workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	cfg := s.cfg

	if s.store == nil {
		st, err := repository.Open(cfg.DBPath, repository.WithLogger(s.logger.Named("repository")))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = st
		s.ownsStore = true
	}

	s.correlator = correlate.New(
		correlate.WithTargetLookback(time.Duration(cfg.TargetLookbackMS)*time.Millisecond),
		correlate.WithSampleLookback(time.Duration(cfg.SampleLookbackMS)*time.Millisecond),
	)
	s.engine = analytics.NewEngine(
		analytics.WithAccuracyRadius(cfg.AccuracyRadiusPx),
		analytics.WithCorrelator(s.correlator),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.UploadQueueSize))

	if s.uploader == nil {
		if cfg.UploadURL == "" {
			s.uploader = upload.Disabled{}
		} else {
			s.uploader = upload.New(cfg.UploadURL,
				upload.WithRetries(cfg.UploadRetries),
				upload.WithRetryDelay(cfg.UploadRetryDelay()),
				upload.WithTimeout(cfg.UploadTimeout()),
				upload.WithLogger(s.logger.Named("upload")),
			)
		}
	}
	s.pool = worker.NewPool(cfg.UploadWorkers, s.queue, s.uploader, s.store)
	s.runCtx, s.stopRuns = context.WithCancel(context.Background())
	s.pool.Start(s.runCtx)

	s.started = true
	s.logger.Info(ctx, "session service started",
		logger.String("db", cfg.DBPath),
		logger.Bool("upload", cfg.UploadURL != ""),
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", cfg.UploadQueueSize),
	)
	return nil
}

// Stop closes live sessions, drains the upload queue and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	live := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		live = append(live, e)
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping session service", logger.Int("sessions", len(live)))
	for _, e := range live {
		cctx, cancel := context.WithTimeout(ctx, closeTimeout)
		if err := e.sess.Close(cctx); err != nil {
			s.logger.Warn(ctx, "session close failed", logger.String("session", e.sess.ID()), logger.Error(err))
		}
		cancel()
		e.cancel()
	}

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.stopRuns()
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	metrics.UpdateSessionsActive(0)
	s.logger.Info(ctx, "session service stopped")
	return errors.Join(errs...)
}

// CreateSession builds and starts a session.
func (s *Service) CreateSession(ctx context.Context, req CreateRequest) (session.Snapshot, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return session.Snapshot{}, ErrNotStarted
	}

	id := uuid.NewString()
	est, err := s.factory(ctx, id, req.Estimator)
	if err != nil {
		return session.Snapshot{}, err
	}

	vp := s.cfg.Viewport()
	if req.Viewport != nil && req.Viewport.Width > 0 && req.Viewport.Height > 0 {
		vp = *req.Viewport
	}
	opts := append([]session.Option{
		session.WithFrameInterval(s.cfg.FrameInterval()),
		session.WithCorrelator(s.correlator),
		session.WithParticipant(req.Participant),
		session.WithLogger(s.logger.Named("session")),
		session.WithMachineOptions(
			calibration.WithViewport(vp),
			calibration.WithClicksPerPoint(s.cfg.ClicksPerPoint),
			calibration.WithPursuitDuration(s.cfg.PursuitDuration()),
			calibration.WithDwellRadius(s.cfg.DwellRadiusPx),
			calibration.WithValidationWindow(s.cfg.ValidationWindow()),
			calibration.WithGazeSampleInterval(s.cfg.GazeSampleInterval()),
			calibration.WithAnalyzer(validation.NewAnalyzer(
				validation.WithThreshold(s.cfg.RecalibrationThresholdPx),
				validation.WithStabilityWarning(s.cfg.StabilityWarningPx),
			)),
		),
	}, s.sessionOpts...)
	sess := session.New(id, est, opts...)

	runCtx, cancel := context.WithCancel(s.runCtx)
	e := &entry{sess: sess, est: est, cancel: cancel}

	s.mu.Lock()
	s.sessions[id] = e
	active := len(s.sessions)
	s.mu.Unlock()
	metrics.UpdateSessionsActive(active)

	go func() {
		if err := sess.Run(runCtx); err != nil {
			s.logger.Error(runCtx, "session loop failed", logger.String("session", id), logger.Error(err))
		}
	}()
	go s.forgetWhenDone(id, e)

	select {
	case <-sess.Ready():
	case <-ctx.Done():
		return session.Snapshot{}, ctx.Err()
	}

	s.logger.Info(ctx, "session created",
		logger.String("session", id),
		logger.String("estimator", req.Estimator),
		logger.String("participant", req.Participant.Label),
	)
	return sess.State(ctx)
}

func (s *Service) forgetWhenDone(id string, e *entry) {
	<-e.sess.Done()
	e.cancel()
	s.mu.Lock()
	if s.sessions[id] == e {
		delete(s.sessions, id)
	}
	active := len(s.sessions)
	s.mu.Unlock()
	metrics.UpdateSessionsActive(active)
}

func (s *Service) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return e, nil
}

// State returns a snapshot of a live session.
func (s *Service) State(ctx context.Context, id string) (session.Snapshot, error) {
	e, err := s.lookup(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return e.sess.State(ctx)
}

// Sessions returns snapshots of every live session.
func (s *Service) Sessions(ctx context.Context) []session.Snapshot {
	s.mu.RLock()
	live := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		live = append(live, e)
	}
	s.mu.RUnlock()

	out := make([]session.Snapshot, 0, len(live))
	for _, e := range live {
		if st, err := e.sess.State(ctx); err == nil {
			out = append(out, st)
		}
	}
	return out
}

// Feed returns the remote feed of a session using the remote estimator.
func (s *Service) Feed(id string) (*remote.Feed, *session.Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	f, ok := e.est.(*remote.Feed)
	if !ok {
		return nil, nil, fmt.Errorf("session %s: %w", id, ErrNoFeed)
	}
	return f, e.sess, nil
}

// Synthetic returns the simulated estimator of a session, if it has one.
func (s *Service) Synthetic(id string) (*synthetic.Estimator, bool) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, false
	}
	est, ok := e.est.(*synthetic.Estimator)
	return est, ok
}

// Stats is a point-in-time summary of the service.
type Stats struct {
	ActiveSessions int  `json:"activeSessions"`
	StoredSessions int  `json:"storedSessions"`
	StoredReports  int  `json:"storedReports"`
	UploadQueue    int  `json:"uploadQueue"`
	UploadWorkers  int  `json:"uploadWorkers"`
	DedupeSize     int  `json:"dedupeSize"`
	UploadEnabled  bool `json:"uploadEnabled"`
}

// GetStats returns service statistics.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	started := s.started
	st := Stats{ActiveSessions: len(s.sessions), UploadEnabled: s.cfg.UploadURL != ""}
	s.mu.RUnlock()
	if !started {
		return st, ErrNotStarted
	}

	var err error
	if st.StoredSessions, err = s.store.CountSessions(ctx); err != nil {
		return st, err
	}
	if st.StoredReports, err = s.store.CountReports(ctx); err != nil {
		return st, err
	}
	st.UploadQueue = s.queue.Len()
	st.UploadWorkers = s.pool.Size()
	st.DedupeSize = s.deduper.Size()
	return st, nil
}

// Records lists stored session records, newest first.
func (s *Service) Records(ctx context.Context, limit int) ([]model.SessionRecord, error) {
	return s.store.ListSessions(ctx, limit)
}

// Record returns one stored session record with its raw data.
func (s *Service) Record(ctx context.Context, id string) (model.SessionRecord, error) {
	return s.store.Session(ctx, id)
}
