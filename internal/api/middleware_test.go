package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

var noopHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// ---------------------------------------------------------------------------
// CORS
// ---------------------------------------------------------------------------

func TestCORSPolicy_AllowOrigin(t *testing.T) {
	tests := []struct {
		name      string
		allowed   []string
		origin    string
		wantValue string
		wantVary  bool
		wantOK    bool
	}{
		{"wildcard", []string{"*"}, "https://a.example", "*", false, true},
		{"listed origin echoed", []string{"https://dash.example"}, "https://dash.example", "https://dash.example", true, true},
		{"unlisted origin", []string{"https://dash.example"}, "https://evil.example", "", false, false},
		{"no origin header", []string{"*"}, "", "", false, false},
		{"empty policy", nil, "https://a.example", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, vary, ok := newCORSPolicy(tt.allowed).allowOrigin(tt.origin)
			if value != tt.wantValue || vary != tt.wantVary || ok != tt.wantOK {
				t.Errorf("allowOrigin(%q) = (%q, %v, %v), want (%q, %v, %v)",
					tt.origin, value, vary, ok, tt.wantValue, tt.wantVary, tt.wantOK)
			}
		})
	}
}

func TestCORSMiddleware_Headers(t *testing.T) {
	handler := corsMiddleware([]string{"https://dash.example"})(noopHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/resources", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	want := map[string]string{
		"Access-Control-Allow-Origin":  "https://dash.example",
		"Access-Control-Allow-Methods": corsAllowMethods,
		"Access-Control-Allow-Headers": corsAllowHeaders,
		"Access-Control-Max-Age":       corsMaxAge,
		"Vary":                         "Origin",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Errorf("%s: got %q, want %q", header, got, value)
		}
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), "X-RateLimit-Remaining") {
		t.Error("expected rate limit headers to be exposed")
	}
}

func TestCORSMiddleware_RejectedOriginGetsNoHeaders(t *testing.T) {
	handler := corsMiddleware([]string{"https://dash.example"})(noopHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected request to pass through, got %d", rec.Code)
	}
	for _, h := range []string{"Access-Control-Allow-Origin", "Access-Control-Allow-Methods"} {
		if got := rec.Header().Get(h); got != "" {
			t.Errorf("%s should be unset, got %q", h, got)
		}
	}
}

func TestCORSMiddleware_PreflightShortCircuits(t *testing.T) {
	called := false
	handler := corsMiddleware([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set("Origin", "https://a.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if called {
		t.Error("preflight must not reach the next handler")
	}
}

// ---------------------------------------------------------------------------
// Secure headers
// ---------------------------------------------------------------------------

func TestSecureHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	secureHeaders(noopHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s: got %q, want %q", header, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Request IDs
// ---------------------------------------------------------------------------

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		want     string // empty means a generated UUID is expected
	}{
		{"generated when absent", "", ""},
		{"forwarded", "req-12345", "req-12345"},
		{"whitespace trimmed", "  req-abc \n", "req-abc"},
		{"oversized replaced", strings.Repeat("x", maxRequestIDLen+1), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fromCtx string
			handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fromCtx = RequestIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-ID", tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get("X-Request-ID")
			if tt.want == "" {
				if _, err := uuid.Parse(got); err != nil {
					t.Errorf("expected a generated UUID, got %q", got)
				}
			} else if got != tt.want {
				t.Errorf("X-Request-ID: got %q, want %q", got, tt.want)
			}
			if fromCtx != got {
				t.Errorf("context ID %q does not match header %q", fromCtx, got)
			}
		})
	}
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	if id := RequestIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()); id != "" {
		t.Errorf("expected empty ID outside the middleware, got %q", id)
	}
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusServiceUnavailable, "unavailable", "inventory backend is unavailable")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var envelope errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if envelope.Error.Code != "unavailable" || envelope.Error.Message != "inventory backend is unavailable" {
		t.Errorf("unexpected envelope: %+v", envelope.Error)
	}
}

func TestWriteInternalError_HidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/resources", nil)
	writeInternalError(rec, req, "aggregation failed", errors.New("db password is hunter2"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Errorf("error cause leaked into response: %s", rec.Body.String())
	}
}

func TestReadJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"username":"alice","password":"pw"}`, false},
		{"unknown fields ignored", `{"username":"alice","password":"pw","remember":true}`, false},
		{"malformed", `{"username":`, true},
		{"empty", "", true},
		{"oversized", `{"username":"` + strings.Repeat("a", maxBodySize) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(tt.body))
			var got loginRequest
			err := readJSON(req, &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.Username != "alice" {
				t.Errorf("expected username alice, got %q", got.Username)
			}
		})
	}
}
