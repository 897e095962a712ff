// Package repository persists finished session records and their reports.
package repository

import (
	"context"
	"time"

	"github.com/okian/syncgaze/internal/domain/model"
)

// MaxListLimit caps ListSessions.
const MaxListLimit = 1000

// Report is a serialized session report and its delivery state.
type Report struct {
	ID          string             `json:"id"`
	SessionID   string             `json:"sessionId"`
	StoragePath string             `json:"storagePath"`
	Body        string             `json:"-"`
	CreatedAt   time.Time          `json:"createdAt"`
	Upload      model.UploadStatus `json:"upload"`
}

// SessionStore reads and writes persisted session records.
type SessionStore interface {
	// SaveSession inserts or replaces the record with rec.ID.
	SaveSession(ctx context.Context, rec *model.SessionRecord) error
	// Session returns ErrNotFound for an unknown id.
	Session(ctx context.Context, id string) (model.SessionRecord, error)
	// ListSessions returns the newest records first without their raw data.
	ListSessions(ctx context.Context, limit int) ([]model.SessionRecord, error)
	CountSessions(ctx context.Context) (int, error)
}

// ReportStore keeps report text available for export whether or not the
// upload succeeded.
type ReportStore interface {
	// SaveReport returns ErrDuplicate when r.ID is already stored.
	SaveReport(ctx context.Context, r *Report) error
	Report(ctx context.Context, id string) (Report, error)
	// LatestReport returns the newest report of a session.
	LatestReport(ctx context.Context, sessionID string) (Report, error)
	SetUploadStatus(ctx context.Context, reportID string, status model.UploadStatus) error
	CountReports(ctx context.Context) (int, error)
}

// Store is both stores backed by one database.
type Store interface {
	SessionStore
	ReportStore
	Close() error
}
