package api

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 3})
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := range 3 {
		if !rl.Allow("192.0.2.1") {
			t.Fatalf("request %d within burst denied", i+1)
		}
	}
	if rl.Allow("192.0.2.1") {
		t.Error("request beyond burst allowed")
	}
	if !rl.Allow("192.0.2.2") {
		t.Error("a second client should have its own bucket")
	}

	now = now.Add(time.Second)
	if !rl.Allow("192.0.2.1") {
		t.Error("one token should refill after a second at 60/min")
	}
}

func TestRateLimiterSweepsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 1})
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("192.0.2.1")
	rl.Allow("192.0.2.2")
	if rl.Visitors() != 2 {
		t.Fatalf("Visitors() = %d, want 2", rl.Visitors())
	}

	now = now.Add(10 * time.Minute)
	rl.Allow("192.0.2.3")
	if rl.Visitors() != 1 {
		t.Errorf("idle visitors not swept: %d remain", rl.Visitors())
	}
}

func TestRateLimiterMiddlewareHeaders(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 30, BurstSize: 2})
	handler := rl.Middleware(okHandler())

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/resolve", nil)
		req.RemoteAddr = "198.51.100.7:5555"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != want {
			t.Fatalf("request %d: expected status %d, got %d", i+1, want, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "30" {
			t.Errorf("X-RateLimit-Limit = %q", w.Header().Get("X-RateLimit-Limit"))
		}
		if _, err := strconv.Atoi(w.Header().Get("X-RateLimit-Remaining")); err != nil {
			t.Errorf("X-RateLimit-Remaining not numeric: %v", err)
		}
		if want == http.StatusTooManyRequests && w.Header().Get("Retry-After") != "2" {
			t.Errorf("Retry-After = %q, want 2", w.Header().Get("Retry-After"))
		}
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"remote addr", "", "", "192.0.2.1:1234", "192.0.2.1"},
		{"forwarded first hop", "203.0.113.5, 10.0.0.1", "", "10.0.0.1:80", "203.0.113.5"},
		{"forwarded garbage", "not-an-ip", "", "192.0.2.1:1234", "192.0.2.1"},
		{"real ip", "", " 203.0.113.9 ", "10.0.0.1:80", "203.0.113.9"},
		{"ipv6", "", "", "[2001:db8::1]:443", "2001:db8::1"},
		{"unparseable", "", "", "somewhere", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
