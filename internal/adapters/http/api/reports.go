package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/okian/syncgaze/internal/adapters/repository"
	"github.com/okian/syncgaze/internal/adapters/upload"
	service "github.com/okian/syncgaze/internal/app"
)

// ReportsDependencies defines the report operations.
type ReportsDependencies interface {
	ExportReport(ctx context.Context, id string) (repository.Report, error)
	IngestReport(ctx context.Context, sessionID, reportID string, body []byte) (service.IngestResult, error)
}

// ReportsHandler handles report export and upload requests.
type ReportsHandler struct {
	deps     ReportsDependencies
	maxBytes int64
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(deps ReportsDependencies, maxBytes int64) *ReportsHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxReportBytes
	}
	return &ReportsHandler{deps: deps, maxBytes: maxBytes}
}

// HandleExport handles GET /sessions/{id}/report requests.
func (h *ReportsHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.ExportReport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(rep.StoragePath)))
	if rep.ID != "" {
		w.Header().Set(upload.HeaderReportID, rep.ID)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, rep.Body)
}

// HandleIngest handles POST /reports requests. The body is the raw report;
// X-Session-Id and X-Report-Id are optional headers.
func (h *ReportsHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	const op = "api.ingest_report"
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeFailure(w, WrapKind(op, ErrPayloadTooBig, err))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(body) == 0 {
		writeFailure(w, NewKind(op, ErrEmptyReport))
		return
	}

	res, err := h.deps.IngestReport(r.Context(), r.Header.Get(upload.HeaderSessionID), r.Header.Get(upload.HeaderReportID), body)
	if err != nil {
		writeFailure(w, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, upload.Receipt{
		ReportID:    res.ReportID,
		StoragePath: res.StoragePath,
		Duplicate:   res.Duplicate,
	})
}
