package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllowWindow(t *testing.T) {
	now := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	rl := NewLimiter(Config{RequestsPerMinute: 3})
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Fatalf("fourth request in the window should be limited")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatalf("other clients are counted separately")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("10.0.0.1") {
		t.Fatalf("new window should reset the count")
	}
	if got := rl.GetMetrics(); got.TotalHits != 1 || got.ClientCount != 2 {
		t.Fatalf("unexpected metrics %+v", got)
	}
}

func TestMiddlewareRejects(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 1})
	h := rl.Middleware(func(*http.Request) string { return "ip" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/deposits", nil))
	if first.Code != http.StatusNoContent {
		t.Fatalf("first request: got %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/deposits", nil))
	if second.Code != http.StatusTooManyRequests || second.Header().Get("Retry-After") != "60" {
		t.Fatalf("second request: got %d", second.Code)
	}
}
