package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/pkg/logger"
	"github.com/okian/syncgaze/pkg/metrics"
)

// SQLiteStore implements Store on a single sqlite file.
type SQLiteStore struct {
	db          *sql.DB
	busyTimeout time.Duration
	logger      logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("repository")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path, s.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	s.db = db

	if err := s.migrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info(context.Background(), "store opened", logger.String("path", path))
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// observe records latency and, for unexpected failures, an error for op.
func observe(op string, start time.Time, err *error) {
	metrics.RecordRepositoryLatency(op, float64(time.Since(start).Milliseconds()))
	if *err != nil && !errors.Is(*err, ErrNotFound) && !errors.Is(*err, ErrDuplicate) {
		metrics.RecordRepositoryError(op)
		metrics.RecordErrorByComponent("repository", op)
	}
}

// SaveSession inserts or replaces a session record.
func (s *SQLiteStore) SaveSession(ctx context.Context, rec *model.SessionRecord) (err error) {
	defer observe("save_session", time.Now(), &err)

	raw, err := json.Marshal(rec.RawData)
	if err != nil {
		return fmt.Errorf("encode raw data of %s: %w", rec.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_records (
			id, date_ms, duration_sec, accuracy, targets_hit, total_targets,
			avg_reaction_time_ms, gaze_accuracy, mouse_accuracy, raw_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date_ms = excluded.date_ms,
			duration_sec = excluded.duration_sec,
			accuracy = excluded.accuracy,
			targets_hit = excluded.targets_hit,
			total_targets = excluded.total_targets,
			avg_reaction_time_ms = excluded.avg_reaction_time_ms,
			gaze_accuracy = excluded.gaze_accuracy,
			mouse_accuracy = excluded.mouse_accuracy,
			raw_data = excluded.raw_data`,
		rec.ID, rec.Date.UnixMilli(), rec.DurationSec, rec.Accuracy, rec.TargetsHit, rec.TotalTargets,
		rec.AvgReactionTimeMs, rec.GazeAccuracy, rec.MouseAccuracy, string(raw),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.ID, err)
	}
	return nil
}

// Session returns the record with id including its raw data.
func (s *SQLiteStore) Session(ctx context.Context, id string) (rec model.SessionRecord, err error) {
	defer observe("get_session", time.Now(), &err)

	var (
		dateMs int64
		raw    string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, date_ms, duration_sec, accuracy, targets_hit, total_targets,
			avg_reaction_time_ms, gaze_accuracy, mouse_accuracy, raw_data
		FROM session_records WHERE id = ?`, id,
	).Scan(&rec.ID, &dateMs, &rec.DurationSec, &rec.Accuracy, &rec.TargetsHit, &rec.TotalTargets,
		&rec.AvgReactionTimeMs, &rec.GazeAccuracy, &rec.MouseAccuracy, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("load session %s: %w", id, err)
	}
	rec.Date = time.UnixMilli(dateMs).UTC()
	if err = json.Unmarshal([]byte(raw), &rec.RawData); err != nil {
		return rec, fmt.Errorf("decode raw data of %s: %w", id, err)
	}
	return rec, nil
}

// ListSessions returns up to limit records, newest first, without raw data.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) (out []model.SessionRecord, err error) {
	defer observe("list_sessions", time.Now(), &err)

	if limit <= 0 || limit > MaxListLimit {
		return nil, fmt.Errorf("limit %d: %w", limit, ErrInvalidLimit)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date_ms, duration_sec, accuracy, targets_hit, total_targets,
			avg_reaction_time_ms, gaze_accuracy, mouse_accuracy
		FROM session_records ORDER BY date_ms DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec    model.SessionRecord
			dateMs int64
		)
		if err = rows.Scan(&rec.ID, &dateMs, &rec.DurationSec, &rec.Accuracy, &rec.TargetsHit, &rec.TotalTargets,
			&rec.AvgReactionTimeMs, &rec.GazeAccuracy, &rec.MouseAccuracy); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.Date = time.UnixMilli(dateMs).UTC()
		out = append(out, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// CountSessions returns the number of stored records.
func (s *SQLiteStore) CountSessions(ctx context.Context) (n int, err error) {
	defer observe("count_sessions", time.Now(), &err)
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_records`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// SaveReport stores a new report. The id is the idempotency key.
func (s *SQLiteStore) SaveReport(ctx context.Context, r *Report) (err error) {
	defer observe("save_report", time.Now(), &err)

	state := r.Upload.State
	if state == "" {
		state = model.UploadPending
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (
			id, session_id, storage_path, body, created_at_ms,
			upload_state, upload_path, upload_attempts, upload_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		r.ID, r.SessionID, r.StoragePath, r.Body, r.CreatedAt.UnixMilli(),
		string(state), r.Upload.StoragePath, r.Upload.Attempts, r.Upload.Error,
	)
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("report %s: %w", r.ID, ErrDuplicate)
	}
	return nil
}

const reportColumns = `id, session_id, storage_path, body, created_at_ms,
	upload_state, upload_path, upload_attempts, upload_error`

func scanReport(row *sql.Row) (Report, error) {
	var (
		r         Report
		createdMs int64
		state     string
	)
	err := row.Scan(&r.ID, &r.SessionID, &r.StoragePath, &r.Body, &createdMs,
		&state, &r.Upload.StoragePath, &r.Upload.Attempts, &r.Upload.Error)
	if err != nil {
		return r, err
	}
	r.CreatedAt = time.UnixMilli(createdMs).UTC()
	r.Upload.State = model.UploadState(state)
	return r, nil
}

// Report returns the report with id.
func (s *SQLiteStore) Report(ctx context.Context, id string) (r Report, err error) {
	defer observe("get_report", time.Now(), &err)

	r, err = scanReport(s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return r, fmt.Errorf("load report %s: %w", id, err)
	}
	return r, nil
}

// LatestReport returns the newest report stored for sessionID.
func (s *SQLiteStore) LatestReport(ctx context.Context, sessionID string) (r Report, err error) {
	defer observe("latest_report", time.Now(), &err)

	r, err = scanReport(s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE session_id = ? ORDER BY created_at_ms DESC, rowid DESC LIMIT 1`,
		sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("report of session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return r, fmt.Errorf("load report of session %s: %w", sessionID, err)
	}
	return r, nil
}

// SetUploadStatus records the latest delivery outcome of a report.
func (s *SQLiteStore) SetUploadStatus(ctx context.Context, reportID string, st model.UploadStatus) (err error) {
	defer observe("set_upload_status", time.Now(), &err)

	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET upload_state = ?, upload_path = ?, upload_attempts = ?, upload_error = ?
		WHERE id = ?`,
		string(st.State), st.StoragePath, st.Attempts, st.Error, reportID)
	if err != nil {
		return fmt.Errorf("update upload status of %s: %w", reportID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update upload status of %s: %w", reportID, err)
	}
	if n == 0 {
		return fmt.Errorf("report %s: %w", reportID, ErrNotFound)
	}
	return nil
}

// CountReports returns the number of stored reports.
func (s *SQLiteStore) CountReports(ctx context.Context) (n int, err error) {
	defer observe("count_reports", time.Now(), &err)
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return n, nil
}
