package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/syncgaze/internal/app"
	"github.com/okian/syncgaze/internal/domain/session"
)

// HTTPClient wraps http.Client for the service API.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var e apiError
		if json.Unmarshal(data, &e) == nil && e.Message != "" {
			return fmt.Errorf("%w: %s %s: %d %s: %s", ErrRequest, method, path, resp.StatusCode, e.Code, e.Message)
		}
		return fmt.Errorf("%w: %s %s: %d", ErrRequest, method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	switch v := out.(type) {
	case *string:
		*v = string(data)
		return nil
	default:
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	}
}

// Health checks that the service answers /healthz.
func (c *HTTPClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// CreateSession creates a session.
func (c *HTTPClient) CreateSession(ctx context.Context, req service.CreateRequest) (session.Snapshot, error) {
	var st session.Snapshot
	err := c.do(ctx, http.MethodPost, "/sessions", req, &st)
	return st, err
}

// State reads a session.
func (c *HTTPClient) State(ctx context.Context, id string) (session.Snapshot, error) {
	var st session.Snapshot
	err := c.do(ctx, http.MethodGet, "/sessions/"+id, nil, &st)
	return st, err
}

// Action applies an action through the REST route.
func (c *HTTPClient) Action(ctx context.Context, id string, a service.Action) (service.ActionResult, error) {
	var res service.ActionResult
	err := c.do(ctx, http.MethodPost, "/sessions/"+id+"/"+a.Name, a, &res)
	return res, err
}

// Report downloads the latest report of a session.
func (c *HTTPClient) Report(ctx context.Context, id string) (string, error) {
	var body string
	err := c.do(ctx, http.MethodGet, "/sessions/"+id+"/report", nil, &body)
	return body, err
}

// FeedURL is the websocket URL of a session's estimator feed.
func (c *HTTPClient) FeedURL(id string) string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/sessions/" + id + "/feed"
}
