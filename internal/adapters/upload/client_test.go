package upload_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/syncgaze/internal/adapters/upload"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/okian/syncgaze/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

var job = model.UploadJob{
	SessionID: "s-1",
	ReportID:  "r-1",
	Body:      "# Validation Error (pixels): 12.00\n",
	CreatedAt: time.Unix(0, 0),
}

// collector answers with the given status codes in order, repeating the last.
func collector(codes ...int) (*httptest.Server, *int32, *http.Request) {
	var calls int32
	seen := &http.Request{Header: http.Header{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1))
		seen.Method, seen.URL, seen.Header = r.Method, r.URL, r.Header.Clone()
		code := codes[len(codes)-1]
		if n <= len(codes) {
			code = codes[n-1]
		}
		w.WriteHeader(code)
		if code == http.StatusCreated {
			_, _ = w.Write([]byte(`{"reportId":"r-1","storagePath":"sessions/s-1/gaze-results-0.csv"}`))
		}
	}))
	return srv, &calls, seen
}

func TestClient_Upload(t *testing.T) {
	ctx := context.Background()

	Convey("Given a collector that accepts the first attempt", t, func() {
		srv, calls, seen := collector(http.StatusCreated)
		defer srv.Close()
		c := upload.New(srv.URL+"/", upload.WithRetryDelay(0))

		st, err := c.Upload(ctx, job)

		Convey("Then the report is posted once with its identifying headers", func() {
			So(err, ShouldBeNil)
			So(atomic.LoadInt32(calls), ShouldEqual, 1)
			So(seen.Method, ShouldEqual, http.MethodPost)
			So(seen.URL.Path, ShouldEqual, "/reports")
			So(seen.Header.Get(upload.HeaderSessionID), ShouldEqual, "s-1")
			So(seen.Header.Get(upload.HeaderReportID), ShouldEqual, "r-1")
			So(st, ShouldResemble, model.UploadStatus{
				State:       model.UploadDone,
				StoragePath: "sessions/s-1/gaze-results-0.csv",
				Attempts:    1,
			})
		})
	})

	Convey("Given a collector that recovers after transient failures", t, func() {
		srv, calls, _ := collector(http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusCreated)
		defer srv.Close()
		c := upload.New(srv.URL, upload.WithRetries(3), upload.WithRetryDelay(time.Millisecond))

		st, err := c.Upload(ctx, job)

		Convey("Then 5xx and 429 are retried until success", func() {
			So(err, ShouldBeNil)
			So(atomic.LoadInt32(calls), ShouldEqual, 3)
			So(st.Attempts, ShouldEqual, 3)
			So(st.State, ShouldEqual, model.UploadDone)
		})
	})

	Convey("Given a collector that keeps failing", t, func() {
		srv, calls, _ := collector(http.StatusInternalServerError)
		defer srv.Close()
		c := upload.New(srv.URL, upload.WithRetries(2), upload.WithRetryDelay(time.Millisecond))

		st, err := c.Upload(ctx, job)

		Convey("Then attempts stop at the bound and the report is marked failed", func() {
			So(errors.Is(err, upload.ErrUploadExhausted), ShouldBeTrue)
			So(atomic.LoadInt32(calls), ShouldEqual, 3)
			So(st.State, ShouldEqual, model.UploadFailed)
			So(st.Attempts, ShouldEqual, 3)
			So(st.Error, ShouldNotBeEmpty)
		})
	})

	Convey("Given a collector that rejects the report", t, func() {
		srv, calls, _ := collector(http.StatusBadRequest)
		defer srv.Close()
		c := upload.New(srv.URL, upload.WithRetries(5), upload.WithRetryDelay(time.Millisecond))

		st, err := c.Upload(ctx, job)

		Convey("Then a 4xx is not retried", func() {
			So(errors.Is(err, upload.ErrRejected), ShouldBeTrue)
			So(atomic.LoadInt32(calls), ShouldEqual, 1)
			So(st.State, ShouldEqual, model.UploadFailed)
		})
	})

	Convey("Given an unreachable collector and a cancelled context", t, func() {
		srv, _, _ := collector(http.StatusCreated)
		url := srv.URL
		srv.Close()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		c := upload.New(url, upload.WithRetries(3), upload.WithRetryDelay(time.Hour))

		_, err := c.Upload(cctx, job)

		Convey("Then the upload gives up without waiting for the retry delay", func() {
			So(err, ShouldNotBeNil)
		})
	})

	Convey("The disabled uploader keeps reports local", t, func() {
		st, err := upload.Disabled{}.Upload(ctx, job)
		So(err, ShouldBeNil)
		So(st.State, ShouldEqual, model.UploadDisabled)
	})
}
