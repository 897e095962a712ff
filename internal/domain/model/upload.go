package model

import "time"

// UploadJob is a serialized report waiting to be delivered to the collector.
type UploadJob struct {
	SessionID string    // session the report belongs to
	ReportID  string    // idempotency key, stable across retries
	Body      string    // report text
	CreatedAt time.Time // when the report was produced
}

// UploadState tracks delivery of a session report.
type UploadState string

// Upload states.
const (
	UploadPending  UploadState = "pending"
	UploadDone     UploadState = "uploaded"
	UploadFailed   UploadState = "failed"
	UploadDisabled UploadState = "disabled"
)

// UploadStatus is the latest delivery outcome for a report.
type UploadStatus struct {
	State       UploadState `json:"state"`
	StoragePath string      `json:"storagePath,omitempty"`
	Attempts    int         `json:"attempts"`
	Error       string      `json:"error,omitempty"`
}
