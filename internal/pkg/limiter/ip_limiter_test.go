package limiter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"
)

func TestGetLimiterReturnsSameInstancePerIP(t *testing.T) {
	l := NewIPRateLimiter(1, 1)

	first := l.GetLimiter("10.0.0.1")
	second := l.GetLimiter("10.0.0.1")

	if first != second {
		t.Error("GetLimiter returned different limiters for the same IP")
	}

	other := l.GetLimiter("10.0.0.2")
	if first == other {
		t.Error("GetLimiter shared one limiter across different IPs")
	}
}

func TestLimiterAllowsBurstThenDenies(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(0.001), 2)
	lim := l.GetLimiter("10.0.0.1")

	if !lim.Allow() || !lim.Allow() {
		t.Fatal("burst capacity denied")
	}
	if lim.Allow() {
		t.Error("request beyond burst capacity allowed")
	}
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(0.001), 1)

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}
