package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/syncgaze/internal/adapters/repository"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/internal/domain/report"
	"github.com/okian/syncgaze/internal/domain/session"
	"github.com/okian/syncgaze/pkg/logger"
	"github.com/okian/syncgaze/pkg/metrics"
)

// FinishResult is what the finish pipeline produced.
type FinishResult struct {
	SessionID   string                `json:"sessionId"`
	ReportID    string                `json:"reportId"`
	StoragePath string                `json:"storagePath"`
	Summary     *model.SessionSummary `json:"summary"`
	Upload      model.UploadStatus    `json:"upload"`
}

// IngestResult acknowledges an uploaded report.
type IngestResult struct {
	ReportID    string `json:"reportId"`
	SessionID   string `json:"sessionId"`
	StoragePath string `json:"storagePath"`
	Records     int    `json:"records"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

// StoragePath is the storage reference of a report produced at t.
func StoragePath(sessionID string, t time.Time) string {
	return fmt.Sprintf("sessions/%s/gaze-results-%d.csv", sessionID, t.UnixMilli())
}

// Finish ends the task of a session and runs the pipeline: analytics,
// session record, report, local store and upload queue. The report stays in
// the store whatever happens to the upload.
func (s *Service) Finish(ctx context.Context, id string) (*FinishResult, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	out, err := e.sess.Finish(ctx)
	if err != nil {
		return nil, err
	}

	summary := s.engine.Summarize(out.Records)
	rec := model.NewSessionRecord(out.SessionID, out.CreatedAt, summary, out.Records)
	if err := s.store.SaveSession(ctx, &rec); err != nil {
		return nil, fmt.Errorf("store session record: %w", err)
	}
	metrics.RecordSessionFinished(summary.Accuracy)

	body, err := report.Serialize(document(out, summary))
	if err != nil {
		return nil, fmt.Errorf("serialize report: %w", err)
	}
	now := time.Now().UTC()
	r := repository.Report{
		ID:          uuid.NewString(),
		SessionID:   out.SessionID,
		StoragePath: StoragePath(out.SessionID, now),
		Body:        string(body),
		CreatedAt:   now,
		Upload:      model.UploadStatus{State: model.UploadPending},
	}
	if err := s.store.SaveReport(ctx, &r); err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}

	res := &FinishResult{
		SessionID:   out.SessionID,
		ReportID:    r.ID,
		StoragePath: r.StoragePath,
		Summary:     summary,
		Upload:      r.Upload,
	}
	job := model.UploadJob{SessionID: r.SessionID, ReportID: r.ID, Body: r.Body, CreatedAt: now}
	if !s.queue.Enqueue(ctx, job) {
		res.Upload = model.UploadStatus{State: model.UploadFailed, Error: "upload queue full"}
		if err := s.store.SetUploadStatus(ctx, r.ID, res.Upload); err != nil {
			s.logger.Error(ctx, "record upload status", logger.String("reportID", r.ID), logger.Error(err))
		}
		s.logger.Warn(ctx, "report not queued for upload, kept for manual export",
			logger.String("session", id), logger.String("reportID", r.ID))
	}

	s.logger.Info(ctx, "session finished",
		logger.String("session", id),
		logger.Int("records", summary.Records),
		logger.Float64("accuracy", summary.Accuracy),
		logger.String("storagePath", r.StoragePath),
	)
	return res, nil
}

func document(out *session.Outcome, summary *model.SessionSummary) *report.Document {
	return &report.Document{
		SessionID:   out.SessionID,
		Date:        out.CreatedAt,
		Participant: out.Participant,
		Calibration: out.Calibration,
		Summary:     summary,
		Records:     out.Records,
	}
}

// ExportReport returns the latest stored report of a session. A live
// session without a stored report is rendered on the fly.
func (s *Service) ExportReport(ctx context.Context, id string) (repository.Report, error) {
	r, err := s.store.LatestReport(ctx, id)
	if err == nil || !errors.Is(err, repository.ErrNotFound) {
		return r, err
	}

	e, lerr := s.lookup(id)
	if lerr != nil {
		return r, err
	}
	out, oerr := e.sess.Outcome(ctx)
	if oerr != nil {
		return r, oerr
	}
	body, serr := report.Serialize(document(out, s.engine.Summarize(out.Records)))
	if serr != nil {
		return r, fmt.Errorf("serialize report: %w", serr)
	}
	now := time.Now().UTC()
	return repository.Report{
		SessionID:   id,
		StoragePath: StoragePath(id, now),
		Body:        string(body),
		CreatedAt:   now,
	}, nil
}

// IngestReport accepts a report uploaded by a client. reportID is the
// idempotency key; a repeat returns the stored result with Duplicate set.
// sessionID overrides the id found in the report metadata.
func (s *Service) IngestReport(ctx context.Context, sessionID, reportID string, body []byte) (IngestResult, error) {
	if reportID == "" {
		reportID = uuid.NewString()
	}
	if s.deduper.SeenAndRecord(ctx, reportID) {
		return s.duplicate(ctx, reportID)
	}

	res, err := s.ingest(ctx, sessionID, reportID, body)
	if err != nil {
		s.deduper.Unrecord(ctx, reportID)
		if errors.Is(err, repository.ErrDuplicate) {
			s.deduper.SeenAndRecord(ctx, reportID)
			return s.duplicate(ctx, reportID)
		}
		return res, err
	}
	metrics.RecordReportIngested(len(body))
	return res, nil
}

func (s *Service) duplicate(ctx context.Context, reportID string) (IngestResult, error) {
	metrics.RecordReportDuplicate()
	r, err := s.store.Report(ctx, reportID)
	if err != nil {
		// recorded by a concurrent ingest that has not stored yet
		s.logger.Debug(ctx, "duplicate report not stored yet", logger.String("reportID", reportID), logger.Error(err))
		return IngestResult{ReportID: reportID, Duplicate: true}, nil
	}
	return IngestResult{
		ReportID:    r.ID,
		SessionID:   r.SessionID,
		StoragePath: r.StoragePath,
		Duplicate:   true,
	}, nil
}

func (s *Service) ingest(ctx context.Context, sessionID, reportID string, body []byte) (IngestResult, error) {
	parsed, err := report.Parse(bytes.NewReader(body))
	if err != nil {
		return IngestResult{}, fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}
	if sessionID == "" {
		sessionID = parsed.SessionID()
	}
	if sessionID == "" {
		return IngestResult{}, ErrMissingSessionID
	}

	now := time.Now().UTC()
	date, ok := parsed.Date()
	if !ok {
		date = now
	}
	summary := s.engine.Summarize(parsed.Records)
	rec := model.NewSessionRecord(sessionID, date, summary, parsed.Records)
	if err := s.store.SaveSession(ctx, &rec); err != nil {
		return IngestResult{}, fmt.Errorf("store session record: %w", err)
	}

	path := StoragePath(sessionID, now)
	r := repository.Report{
		ID:          reportID,
		SessionID:   sessionID,
		StoragePath: path,
		Body:        string(body),
		CreatedAt:   now,
		Upload:      model.UploadStatus{State: model.UploadDone, StoragePath: path},
	}
	if err := s.store.SaveReport(ctx, &r); err != nil {
		return IngestResult{}, fmt.Errorf("store report: %w", err)
	}

	s.logger.Info(ctx, "report ingested",
		logger.String("session", sessionID),
		logger.String("reportID", reportID),
		logger.Int("records", len(parsed.Records)),
	)
	return IngestResult{
		ReportID:    reportID,
		SessionID:   sessionID,
		StoragePath: path,
		Records:     len(parsed.Records),
	}, nil
}
