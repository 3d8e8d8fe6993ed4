package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// captureLogOutput redirects the global logger to a buffer at debug level
// for the duration of f.
func captureLogOutput(t *testing.T, format Format, f func()) string {
	t.Helper()
	var buf bytes.Buffer
	InitLogger(LevelDebug, format)
	SetOutput(&buf)
	t.Cleanup(func() {
		InitLogger(LevelInfo, FormatJSON)
	})

	f()
	return buf.String()
}

// decodeLine parses the single JSON log line in out.
func decodeLine(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &m); err != nil {
		t.Fatalf("log output is not one JSON object: %v\n%s", err, out)
	}
	return m
}

func TestInitLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     Level
		debugSeen bool
		warnSeen  bool
	}{
		{"debug", LevelDebug, true, true},
		{"info", LevelInfo, false, true},
		{"warn", LevelWarn, false, true},
		{"error", LevelError, false, false},
		{"invalid defaults to info", Level(999), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			InitLogger(tt.level, FormatJSON)
			SetOutput(&buf)
			defer InitLogger(LevelInfo, FormatJSON)

			Debug("debug message")
			if got := strings.Contains(buf.String(), "debug message"); got != tt.debugSeen {
				t.Errorf("debug visible = %v, want %v", got, tt.debugSeen)
			}
			Warn("warn message")
			if got := strings.Contains(buf.String(), "warn message"); got != tt.warnSeen {
				t.Errorf("warn visible = %v, want %v", got, tt.warnSeen)
			}
		})
	}
}

func TestTextFormat(t *testing.T) {
	out := captureLogOutput(t, FormatText, func() {
		Info("hello", "key", "value")
	})
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "key=value") {
		t.Errorf("text output = %q", out)
	}
}

func TestTimestampFormat(t *testing.T) {
	out := captureLogOutput(t, FormatJSON, func() {
		Info("stamp")
	})
	m := decodeLine(t, out)
	ts, ok := m["time"].(string)
	if !ok {
		t.Fatalf("time field missing: %v", m)
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("time %q is not RFC3339: %v", ts, err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if id := GetRequestID(ctx); id != "" {
		t.Errorf("GetRequestID(empty) = %q, want empty", id)
	}

	ctx = WithRequestID(ctx, "req-123")
	if id := GetRequestID(ctx); id != "req-123" {
		t.Errorf("GetRequestID = %q, want %q", id, "req-123")
	}

	out := captureLogOutput(t, FormatJSON, func() {
		InfoContext(ctx, "with id")
	})
	if m := decodeLine(t, out); m["request_id"] != "req-123" {
		t.Errorf("request_id = %v, want req-123", m["request_id"])
	}
}

func TestDomainHelpers(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")

	tests := []struct {
		name   string
		log    func()
		msg    string
		fields map[string]any
	}{
		{
			name: "upstream fetch failure",
			log: func() {
				UpstreamFetch(ctx, "Numbers", "17:1-17:999", "network", 20*time.Millisecond, errors.New("timeout"))
			},
			msg:    "upstream_fetch",
			fields: map[string]any{"book": "Numbers", "expr": "17:1-17:999", "error": "timeout", "level": "WARN"},
		},
		{
			name:   "upstream fetch success",
			log:    func() { UpstreamFetch(ctx, "Numbers", "16:1-16:999", "cache", 0, nil) },
			msg:    "upstream_fetch",
			fields: map[string]any{"source": "cache", "level": "DEBUG"},
		},
		{
			name:   "backfill",
			log:    func() { Backfill(ctx, "Numbers", 17, 21, nil) },
			msg:    "backfill",
			fields: map[string]any{"chapter": float64(17), "verses": float64(21)},
		},
		{
			name:   "backfill failed",
			log:    func() { Backfill(ctx, "Numbers", 17, 0, errors.New("boom")) },
			msg:    "backfill_failed",
			fields: map[string]any{"error": "boom"},
		},
		{
			name:   "job event",
			log:    func() { JobEvent("job-1", "completed", "slides", 21) },
			msg:    "job_event",
			fields: map[string]any{"job_id": "job-1", "status": "completed", "slides": float64(21)},
		},
		{
			name:   "websocket event",
			log:    func() { WebSocketEvent("client_connected", 2) },
			msg:    "websocket_event",
			fields: map[string]any{"event": "client_connected", "client_count": float64(2)},
		},
		{
			name:   "server startup",
			log:    func() { ServerStartup("api", "http", 8080) },
			msg:    "server_startup",
			fields: map[string]any{"server_type": "api", "port": float64(8080)},
		},
		{
			name:   "security event",
			log:    func() { SecurityEvent("rate_limited", "api", "ip", "10.0.0.1") },
			msg:    "security_event",
			fields: map[string]any{"event": "rate_limited", "ip": "10.0.0.1", "level": "WARN"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := decodeLine(t, captureLogOutput(t, FormatJSON, tt.log))
			if m["msg"] != tt.msg {
				t.Errorf("msg = %v, want %q", m["msg"], tt.msg)
			}
			for k, want := range tt.fields {
				if m[k] != want {
					t.Errorf("%s = %v, want %v", k, m[k], want)
				}
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if len(seen) != 36 {
			t.Errorf("generated request ID %q is not a UUID", seen)
		}
		if rec.Header().Get("X-Request-ID") != seen {
			t.Errorf("header = %q, want %q", rec.Header().Get("X-Request-ID"), seen)
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "from-client")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if seen != "from-client" {
			t.Errorf("request ID = %q, want from-client", seen)
		}
	})

	t.Run("oversized replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("x", 100))
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if len(seen) != 36 {
			t.Errorf("oversized request ID was kept: %q", seen)
		}
	})
}

func TestCombinedMiddleware(t *testing.T) {
	handler := CombinedMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	out := captureLogOutput(t, FormatJSON, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/resolve", nil))
	})

	m := decodeLine(t, out)
	if m["msg"] != "http_request" || m["path"] != "/resolve" {
		t.Errorf("unexpected log line: %v", m)
	}
	if m["status_code"] != float64(http.StatusTeapot) {
		t.Errorf("status_code = %v, want 418", m["status_code"])
	}
	if id, _ := m["request_id"].(string); id == "" {
		t.Error("request_id missing from request log")
	}
}

func TestResponseWriter_DefaultStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	_, _ = rw.Write([]byte("x"))
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200 after implicit write", rw.statusCode)
	}
	if rw.Unwrap() != rec {
		t.Error("Unwrap should return the wrapped writer")
	}
}

func TestResponseWriter_Hijack(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("Hijack on a recorder should fail")
	}

	srv := httptest.NewServer(LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("Hijack() error: %v", err)
			return
		}
		defer conn.Close()
		buf.WriteString("HTTP/1.1 204 No Content\r\n\r\n")
		buf.Flush()
	})))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204 from hijacked connection", resp.StatusCode)
	}
}
