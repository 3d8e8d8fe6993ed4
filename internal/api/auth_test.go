package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	const key = "test-api-key-0123456789"
	handler := AuthMiddleware(AuthConfig{Enabled: true, APIKey: key}, okHandler())

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"public root", "/", "", http.StatusOK},
		{"public health", "/health", "", http.StatusOK},
		{"missing key", "/resolve", "", http.StatusUnauthorized},
		{"wrong key", "/generate", "wrong-key", http.StatusUnauthorized},
		{"valid key", "/jobs", key, http.StatusOK},
		{"websocket query key", "/ws?api_key=" + key, "", http.StatusOK},
		{"query key elsewhere", "/resolve?api_key=" + key, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	handler := AuthMiddleware(AuthConfig{}, okHandler())
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 with auth disabled, got %d", w.Code)
	}
}

func TestValidateAuthConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AuthConfig
		wantErr bool
	}{
		{"disabled", AuthConfig{}, false},
		{"enabled without key", AuthConfig{Enabled: true}, true},
		{"short key", AuthConfig{Enabled: true, APIKey: "short"}, true},
		{"valid", AuthConfig{Enabled: true, APIKey: "0123456789abcdef"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateAuthConfig(tt.cfg); (err != nil) != tt.wantErr {
				t.Errorf("ValidateAuthConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateJobID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"6f1c2b0e-6c55-4d1c-9d64-2b8f3f9c1a10", false},
		{"6F1C2B0E-6C55-4D1C-9D64-2B8F3F9C1A10", true},
		{"{6f1c2b0e-6c55-4d1c-9d64-2b8f3f9c1a10}", true},
		{"../etc/passwd", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if err := validateJobID(tt.id); (err != nil) != tt.wantErr {
				t.Errorf("validateJobID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}
