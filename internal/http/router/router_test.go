package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/http/handler"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/identity"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/portal"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/service"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/storage"
)

func newRouterTestDeps(t *testing.T) Dependencies {
	t.Helper()
	provider := identity.NewClient("http://127.0.0.1:0", time.Second)
	creds := service.NewCredentialService(
		storage.NewMemoryStore("durable"),
		storage.NewMemoryStore("ephemeral"),
		provider,
		service.NewRefreshCoordinator(),
	)
	authed := identity.NewAuthenticatedClient("http://127.0.0.1:0", time.Second, creds)
	sessions := portal.NewService(
		portal.NewFixedCodeProvider("123456", time.Hour),
		"fixed",
		storage.NewMemoryStore("ephemeral"),
		storage.NewMemoryStore("durable"),
		5*time.Minute,
	)
	return Dependencies{
		AuthHandler:             handler.NewAuthHandler(provider, authed, creds),
		PortalHandler:           handler.NewPortalHandler(sessions, 5*time.Minute),
		RealtimeHandler:         handler.NewRealtimeHandler(nil),
		PortalSessions:          sessions,
		CORSOrigins:             []string{"http://localhost"},
		PortalLoginRateLimitRPM: 1000,
		APIRateLimitRPM:         1000,
		EnableOTelHTTP:          false,
	}
}

func perform(r http.Handler, method, target string, headers map[string]string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "10.10.10.10:1234"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	data, _ := env["data"].(map[string]any)
	return data
}

func TestRouterHealthLive(t *testing.T) {
	r := NewRouter(newRouterTestDeps(t))

	rr := perform(r, http.MethodGet, "/health/live", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("expected live payload, got %s", rr.Body.String())
	}
}

func TestRouterHealthReadyBranches(t *testing.T) {
	t.Run("nil readiness returns ready", func(t *testing.T) {
		dep := newRouterTestDeps(t)
		dep.Readiness = nil
		r := NewRouter(dep)

		rr := perform(r, http.MethodGet, "/health/ready", nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"status":"ready"`) {
			t.Fatalf("expected ready payload, got %s", rr.Body.String())
		}
	})

	t.Run("unready dependency returns 503", func(t *testing.T) {
		dep := newRouterTestDeps(t)
		dep.Readiness = func(ctx context.Context) (bool, map[string]string) {
			return false, map[string]string{"database": "dial refused"}
		}
		r := NewRouter(dep)

		rr := perform(r, http.MethodGet, "/health/ready", nil, "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"code":"DEPENDENCY_UNREADY"`) {
			t.Fatalf("expected DEPENDENCY_UNREADY envelope, got %s", rr.Body.String())
		}
	})
}

func TestRouterGlobalRateLimiter(t *testing.T) {
	dep := newRouterTestDeps(t)
	dep.APIRateLimitRPM = 1
	r := NewRouter(dep)

	first := perform(r, http.MethodGet, "/health/live", nil, "")
	if first.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", first.Code)
	}
	second := perform(r, http.MethodGet, "/health/live", nil, "")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", second.Code)
	}
}

func TestRouterPortalHandshakeFlow(t *testing.T) {
	r := NewRouter(newRouterTestDeps(t))

	rr := perform(r, http.MethodPost, "/api/v1/portal/login", nil, `{"phone":"+15550001111"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("portal login expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if id, _ := decodeData(t, rr)["challenge_id"].(string); id == "" {
		t.Fatalf("expected challenge id in login response")
	}

	rr = perform(r, http.MethodPost, "/api/v1/portal/verify", nil, `{"phone":"+15550001111","code":"000000"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong code expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"code":"CREDENTIAL_INVALID"`) {
		t.Fatalf("expected CREDENTIAL_INVALID envelope, got %s", rr.Body.String())
	}

	rr = perform(r, http.MethodPost, "/api/v1/portal/verify", nil, `{"phone":"+15550001111","code":"123456"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	token, _ := decodeData(t, rr)["session_token"].(string)
	if token == "" {
		t.Fatalf("expected session token in verify response")
	}

	rr = perform(r, http.MethodGet, "/api/v1/portal/session", map[string]string{"Authorization": "Bearer " + token}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("portal session expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got, _ := decodeData(t, rr)["subject_id"].(string); got != "dev-+15550001111" {
		t.Fatalf("unexpected subject id %q", got)
	}

	rr = perform(r, http.MethodGet, "/api/v1/portal/session", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated session expected 401, got %d", rr.Code)
	}

	rr = perform(r, http.MethodPost, "/api/v1/portal/logout", map[string]string{"Authorization": "Bearer " + token}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("portal logout expected 200, got %d", rr.Code)
	}
	rr = perform(r, http.MethodGet, "/api/v1/portal/session", map[string]string{"Authorization": "Bearer " + token}, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("session after logout expected 401, got %d", rr.Code)
	}
}

func TestRouterVerifyWithoutChallenge(t *testing.T) {
	r := NewRouter(newRouterTestDeps(t))

	rr := perform(r, http.MethodPost, "/api/v1/portal/verify", nil, `{"phone":"+15550009999","code":"123456"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("verify without challenge expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"code":"NOT_FOUND"`) {
		t.Fatalf("expected NOT_FOUND envelope, got %s", rr.Body.String())
	}
}

func TestRouterAuthSessionWithoutCredential(t *testing.T) {
	r := NewRouter(newRouterTestDeps(t))

	rr := perform(r, http.MethodGet, "/api/v1/auth/session", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("auth session expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got, _ := decodeData(t, rr)["authenticated"].(bool); got {
		t.Fatalf("expected authenticated=false without credential")
	}
}

func TestRouterProfileWithoutCredential(t *testing.T) {
	r := NewRouter(newRouterTestDeps(t))

	rr := perform(r, http.MethodGet, "/api/v1/auth/me", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("profile expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRouterRealtimeHealthWithoutMonitor(t *testing.T) {
	r := NewRouter(newRouterTestDeps(t))

	rr := perform(r, http.MethodGet, "/api/v1/realtime/health", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("realtime health expected 200, got %d", rr.Code)
	}
	if got, _ := decodeData(t, rr)["healthy"].(bool); got {
		t.Fatalf("expected healthy=false without monitor")
	}
}

func TestRouterValidationErrors(t *testing.T) {
	r := NewRouter(newRouterTestDeps(t))

	rr := perform(r, http.MethodPost, "/api/v1/portal/login", nil, `{"phone":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty phone expected 400, got %d", rr.Code)
	}
	rr = perform(r, http.MethodPost, "/api/v1/auth/login", nil, `{"email":"","password":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty login expected 400, got %d", rr.Code)
	}
	rr = perform(r, http.MethodPost, "/api/v1/auth/login", nil, `not json`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed body expected 400, got %d", rr.Code)
	}
}
