package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/syncgaze/internal/domain/model"
)

const defaultRecordsLimit = 100

// RecordsDependencies defines the stored record operations.
type RecordsDependencies interface {
	Records(ctx context.Context, limit int) ([]model.SessionRecord, error)
	Record(ctx context.Context, id string) (model.SessionRecord, error)
}

// RecordsHandler handles stored session record requests.
type RecordsHandler struct {
	deps RecordsDependencies
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(deps RecordsDependencies) *RecordsHandler {
	return &RecordsHandler{deps: deps}
}

type recordsResponse struct {
	Records []model.SessionRecord `json:"records"`
}

// HandleList handles GET /records?limit=N requests. Records are returned
// newest first without their raw data.
func (h *RecordsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_records"
	limit := defaultRecordsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}
	recs, err := h.deps.Records(r.Context(), limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if recs == nil {
		recs = []model.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, recordsResponse{Records: recs})
}

// HandleGet handles GET /records/{id} requests.
func (h *RecordsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Record(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
