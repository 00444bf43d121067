package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// newMountedServer returns a Server with the full middleware chain and routes
// registered, the way cmd/dispatch-worker wires it.
func newMountedServer(t *testing.T, secret string) *Server {
	t.Helper()
	srv := newTestServer(t, configWithSecret(secret))
	srv.MountRoutes()
	return srv
}

func TestRoutes_RunWithSecret_Returns200(t *testing.T) {
	srv := newMountedServer(t, "cron-secret-123")

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("Authorization", "Bearer cron-secret-123")
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var report types.CycleReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to unmarshal report: %v", err)
	}
	if !report.Success {
		t.Error("expected success=true in report")
	}
}

func TestRoutes_RunWithoutSecret_Returns401(t *testing.T) {
	srv := newMountedServer(t, "cron-secret-123")

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp["error"] != "Unauthorized" {
		t.Errorf("unexpected 401 body: %s", rec.Body.String())
	}
}

func TestRoutes_RunAuthDisabled_Returns200(t *testing.T) {
	srv := newMountedServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 when auth is disabled, got %d", rec.Code)
	}
}

func TestRoutes_RunGet_Returns405(t *testing.T) {
	srv := newMountedServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rec.Code)
	}
}

func TestRoutes_RunPreflight_Returns204(t *testing.T) {
	srv := newMountedServer(t, "cron-secret-123")

	// Preflight carries no Authorization header; it must still succeed.
	req := httptest.NewRequest(http.MethodOptions, "/run", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("preflight should carry CORS headers, got Allow-Origin %q", got)
	}
}

func TestRoutes_HealthIsPublic(t *testing.T) {
	srv := newMountedServer(t, "cron-secret-123")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	// No Authorization header.
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("health endpoint must not require auth, got %d", rec.Code)
	}
}

func TestRoutes_SecurityHeadersOnAllResponses(t *testing.T) {
	srv := newMountedServer(t, "cron-secret-123")

	// Even a 401 carries the security headers.
	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options: got %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options: got %q, want DENY", got)
	}
}

func TestRoutes_RequestIDEchoed(t *testing.T) {
	srv := newMountedServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("X-Request-Id", "req_route_test_7")
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "req_route_test_7" {
		t.Errorf("expected request ID echoed, got %q", got)
	}
}

func TestRoutes_UnknownPath_Returns404(t *testing.T) {
	srv := newMountedServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}
