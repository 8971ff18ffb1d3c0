package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/quorumhq/quorum/internal/config"
	"github.com/quorumhq/quorum/internal/engine"
	"github.com/quorumhq/quorum/internal/idempotency"
	"github.com/quorumhq/quorum/model"
)

// testDeps returns Dependencies with sensible defaults for testing. The
// metrics endpoint is disabled so tests do not touch the global registry.
func testDeps() Dependencies {
	cfg := config.Defaults()
	cfg.Server.CORS.AllowedOrigins = []string{"https://app.example.com"}
	cfg.Observability.Metrics.Enabled = false
	svc := engine.NewService(engine.NewMemoryStore(), idempotency.NewMemoryStore(), nil, zap.NewNop())
	return Dependencies{Config: cfg, Service: svc}
}

func TestNewRouter_health(t *testing.T) {
	r := NewRouter(testDeps())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestNewRouter_ready(t *testing.T) {
	r := NewRouter(testDeps())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestNewRouter_authenticatedRoutes_areRegistered(t *testing.T) {
	// With auth rejecting all requests, all authenticated routes should
	// return 401, confirming they are registered and not 404/405.
	rejectAuth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			WriteError(w, model.NewUnauthorizedError("rejected"))
		})
	}

	deps := testDeps()
	deps.Authenticate = rejectAuth
	r := NewRouter(deps)

	routes := []struct {
		method string
		path   string
	}{
		{"POST", "/v1/workflows"},
		{"GET", "/v1/workflows/wf-123"},
		{"POST", "/v1/workflows/wf-123/votes"},
		{"GET", "/v1/workflows/wf-123/eligibility"},
		{"POST", "/v1/workflows/wf-123/recalculate"},
		{"POST", "/v1/workflows/wf-123/cancel"},
		{"POST", "/v1/templates"},
		{"POST", "/v1/templates/wt-123/deprecate"},
		{"POST", "/v1/templates/wt-123/deprecated"},
		{"POST", "/v1/entities/u-123/roles"},
	}
	for _, rt := range routes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))
		if w.Code != 401 {
			t.Errorf("%s %s: status = %d, want 401", rt.method, rt.path, w.Code)
		}
	}
}

func TestNewRouter_publicRoutesBypassAuth(t *testing.T) {
	rejectAuth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			WriteError(w, model.NewUnauthorizedError("rejected"))
		})
	}

	deps := testDeps()
	deps.Authenticate = rejectAuth
	r := NewRouter(deps)

	for _, path := range []string{"/healthz", "/readyz"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != 200 {
			t.Errorf("GET %s: status = %d, want 200", path, w.Code)
		}
	}
}

func TestNewRouter_CORSPreflight(t *testing.T) {
	r := NewRouter(testDeps())

	req := httptest.NewRequest("OPTIONS", "/v1/workflows", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 204 {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestNewRouter_correlationIDEchoed(t *testing.T) {
	r := NewRouter(testDeps())

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Correlation-Id", "corr-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-Id"); got != "corr-42" {
		t.Errorf("X-Correlation-Id = %q, want corr-42", got)
	}
}

func TestNewRouter_correlationIDGenerated(t *testing.T) {
	r := NewRouter(testDeps())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	if got := w.Header().Get("X-Correlation-Id"); got == "" {
		t.Error("X-Correlation-Id not set on response")
	}
}
