package core

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// --- Recoverer Tests ---

func TestRecoverer_CatchesPanic_Returns500(t *testing.T) {
	srv := newTestServer(t, nil)

	handler := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("something broke")
	}))

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("recovery body must be valid JSON: %v", err)
	}
	if resp["success"] != false {
		t.Errorf("unexpected recovery body: %s", rec.Body.String())
	}
	if resp["error"] != "an unexpected error occurred" {
		t.Errorf("panic details must not leak to the client: %s", rec.Body.String())
	}
}

func TestRecoverer_NormalRequest_PassesThrough(t *testing.T) {
	srv := newTestServer(t, nil)

	handler := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestRecoverer_LogsPanicInternally(t *testing.T) {
	var buf bytes.Buffer
	srv := newTestServer(t, nil)
	srv.Logger = slog.New(slog.NewJSONHandler(&buf, nil))

	handler := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !strings.Contains(buf.String(), "kaboom") {
		t.Error("panic value should appear in internal logs")
	}
	if !strings.Contains(buf.String(), "stack") {
		t.Error("stack trace should appear in internal logs")
	}
}

// --- RequestID Tests ---

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	var capturedID string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = types.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if capturedID == "" {
		t.Fatal("expected a generated request ID in the context")
	}
	if rec.Header().Get("X-Request-Id") != capturedID {
		t.Errorf("response header %q should match context ID %q",
			rec.Header().Get("X-Request-Id"), capturedID)
	}
}

func TestRequestIDMiddleware_ReusesIncomingID(t *testing.T) {
	var capturedID string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = types.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("X-Request-Id", "req_incoming_42")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if capturedID != "req_incoming_42" {
		t.Errorf("expected incoming ID to be reused, got %q", capturedID)
	}
	if rec.Header().Get("X-Request-Id") != "req_incoming_42" {
		t.Errorf("expected incoming ID echoed in response, got %q", rec.Header().Get("X-Request-Id"))
	}
}

func TestGenerateRequestID_Unique(t *testing.T) {
	a := generateRequestID()
	b := generateRequestID()
	if a == "" || b == "" {
		t.Fatal("generated IDs must be non-empty")
	}
	if a == b {
		t.Errorf("two generated IDs should differ: %q", a)
	}
}

// --- SecurityHeaders Tests ---

func TestSecurityHeadersMiddleware_SetsHeaders(t *testing.T) {
	srv := newTestServer(t, nil)

	handler := srv.SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options: got %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options: got %q, want DENY", got)
	}
}

// --- CORS Tests ---

func TestCORSMiddleware_SetsHeaders(t *testing.T) {
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin: got %q, want *", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "POST, OPTIONS" {
		t.Errorf("Allow-Methods: got %q", got)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Errorf("Allow-Headers should include Authorization: %q",
			rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestCORSMiddleware_AnswersPreflight(t *testing.T) {
	nextCalled := false
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/run", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if nextCalled {
		t.Error("preflight requests should not reach the next handler")
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
}

// --- RequestLogger Tests ---

func TestRequestLogger_RedactsAuthorizationHeader(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(logger, defaultRedactedHeaders)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("Authorization", "Bearer super-secret-value")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	logOutput := buf.String()
	if strings.Contains(logOutput, "super-secret-value") {
		t.Error("Authorization header value must not appear in logs")
	}
	if !strings.Contains(logOutput, "[REDACTED]") {
		t.Error("redacted headers should be logged as [REDACTED]")
	}
}

func TestRequestLogger_LogsStatusAndPath(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(logger, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output should be one JSON entry: %v", err)
	}
	if entry["path"] != "/run" {
		t.Errorf("expected path /run, got %v", entry["path"])
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Errorf("expected status 418, got %v", entry["status"])
	}
	// 4xx responses log at warn level.
	if entry["level"] != "WARN" {
		t.Errorf("expected WARN level for 4xx, got %v", entry["level"])
	}
}

// --- ContextTimeout Tests ---

func TestContextTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var hasDeadline bool
	handler := ContextTimeoutMiddleware(time.Minute)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, hasDeadline = r.Context().Deadline()
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !hasDeadline {
		t.Error("request context should carry a deadline")
	}
}
