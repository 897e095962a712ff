// Package upload delivers serialized session reports to a collector over
// HTTP with a bounded, fixed-delay retry policy.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/pkg/logger"
	"github.com/okian/syncgaze/pkg/metrics"
)

// Header names carried by every upload.
const (
	HeaderSessionID = "X-Session-Id"
	HeaderReportID  = "X-Report-Id"
)

const maxResponseBytes = 64 << 10

// Receipt is the collector's acknowledgement body.
type Receipt struct {
	ReportID    string `json:"reportId"`
	StoragePath string `json:"storagePath"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

// Client posts reports to {baseURL}/reports.
type Client struct {
	http       *http.Client
	endpoint   string
	retries    int
	retryDelay time.Duration
	logger     logger.Logger
}

// New creates a client for the collector at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{Timeout: defaultTimeout},
		endpoint:   strings.TrimRight(baseURL, "/") + "/reports",
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("upload")
	}
	return c
}

// Upload sends job, retrying network errors, 5xx and 429 responses. The
// report id is sent on every attempt so the collector can drop repeats.
func (c *Client) Upload(ctx context.Context, job model.UploadJob) (model.UploadStatus, error) {
	status := model.UploadStatus{State: model.UploadPending}
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return c.fail(status, ctx.Err()), ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		status.Attempts++
		receipt, retry, err := c.post(ctx, job)
		if err == nil {
			status.State = model.UploadDone
			status.StoragePath = receipt.StoragePath
			status.Error = ""
			return status, nil
		}
		lastErr = err
		if !retry {
			return c.fail(status, err), err
		}
		c.logger.Warn(ctx, "upload attempt failed",
			logger.String("reportID", job.ReportID),
			logger.Int("attempt", status.Attempts),
			logger.Error(err),
		)
	}

	metrics.RecordUploadExhausted()
	err := fmt.Errorf("%w after %d attempts: %w", ErrUploadExhausted, status.Attempts, lastErr)
	return c.fail(status, err), err
}

func (c *Client) fail(st model.UploadStatus, err error) model.UploadStatus {
	st.State = model.UploadFailed
	st.Error = err.Error()
	return st
}

// post performs one attempt and reports whether a failure is retryable.
func (c *Client) post(ctx context.Context, job model.UploadJob) (Receipt, bool, error) {
	start := time.Now()
	defer func() {
		metrics.RecordUploadAttempt(float64(time.Since(start).Milliseconds()))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(job.Body))
	if err != nil {
		return Receipt{}, false, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set(HeaderSessionID, job.SessionID)
	req.Header.Set(HeaderReportID, job.ReportID)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordUploadFailure("network")
		return Receipt{}, ctx.Err() == nil, fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var r Receipt
		if len(body) > 0 {
			if err := json.Unmarshal(body, &r); err != nil {
				c.logger.Debug(ctx, "collector receipt is not JSON", logger.Error(err))
			}
		}
		if r.ReportID == "" {
			r.ReportID = job.ReportID
		}
		return r, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		metrics.RecordUploadFailure(strconv.Itoa(resp.StatusCode))
		return Receipt{}, true, fmt.Errorf("collector returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		metrics.RecordUploadFailure(strconv.Itoa(resp.StatusCode))
		return Receipt{}, false, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// Disabled stands in for a Client when no collector is configured. Reports
// stay in the local store for manual export.
type Disabled struct{}

// Upload marks the report as not uploaded.
func (Disabled) Upload(context.Context, model.UploadJob) (model.UploadStatus, error) {
	return model.UploadStatus{State: model.UploadDisabled}, nil
}
