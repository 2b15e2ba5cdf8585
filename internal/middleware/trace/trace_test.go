package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "koperasi/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Output: &buf, Component: applog.ComponentHTTP})
	m := NewMiddleware(logger, func(*http.Request) string { return "192.0.2.1" })

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/deposits", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("expected generated request id, got %q", seen)
	}
	if rec.Header().Get(HeaderRequestID) != seen {
		t.Fatalf("response header should echo the request id")
	}
	if !strings.Contains(buf.String(), "status_code=201") {
		t.Fatalf("completion log missing status: %s", buf.String())
	}
	if m.GetMetrics().TotalRequests != 1 {
		t.Fatalf("expected one counted request")
	}
}

func TestMiddlewareKeepsIncomingID(t *testing.T) {
	logger := applog.New(applog.Config{Output: &bytes.Buffer{}})
	m := NewMiddleware(logger, nil)

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "upstream-7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "upstream-7" {
		t.Fatalf("expected upstream id, got %q", seen)
	}
}

func TestResponseWriterFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	var _ http.Flusher = rw
	rw.Flush()
	if !rec.Flushed {
		t.Fatalf("flush not forwarded")
	}
}
