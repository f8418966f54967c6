package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"smartqa-backend/internal/analyses"
	"smartqa-backend/internal/queue"
	"smartqa-backend/internal/runs"
	"smartqa-backend/internal/services/health"
	"smartqa-backend/internal/shared/auth"
	"smartqa-backend/internal/shared/config"
)

func newTestRouter(t *testing.T, env string) http.Handler {
	t.Helper()
	verifier, err := auth.NewVerifier("router-secret", false)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	repo := analyses.NewMemoryRepo()
	svc := analyses.NewService(repo, nil, nil, queue.NewMemoryQueue(1, 0))
	return NewRouter(RouterDeps{
		Config:          config.Config{Env: env},
		Verifier:        verifier,
		AnalysisHandler: analyses.NewHandler(svc),
		RunHandler:      runs.NewHandler(runs.NewMemoryRepo(), repo),
		Health:          health.NewService(nil),
	})
}

func TestHealthIsPublic(t *testing.T) {
	router := newTestRouter(t, "production")
	for _, path := range []string{"/healthz", "/api/v1/health"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
		var body health.Status
		if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", path, err)
		}
		if !body.OK || body.Database != "memory" {
			t.Fatalf("%s: unexpected body %+v", path, body)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, "production")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAPIRequiresIdentity(t *testing.T) {
	router := newTestRouter(t, "production")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/analyses", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMeEchoesDevIdentity(t *testing.T) {
	router := newTestRouter(t, "dev")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("X-User-Id", "owner-9")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["userId"] != "owner-9" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestAddr(t *testing.T) {
	cases := map[string]string{"": ":8080", "9000": ":9000", ":7000": ":7000"}
	for in, want := range cases {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}
