package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/domain"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/portal"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/storage"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func portalServiceWithSession(t *testing.T, token string, expiresAt time.Time) *portal.Service {
	t.Helper()
	durable := storage.NewMemoryStore("durable")
	session := domain.PortalSession{
		SubjectID:    "client-1",
		Phone:        "+15550001111",
		SessionToken: token,
		ExpiresAt:    expiresAt,
	}
	payload, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	if err := durable.Set(context.Background(), storage.KeyPortalSession, payload, 0); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return portal.NewService(portal.NewFixedCodeProvider("123456", time.Hour), "fixed", storage.NewMemoryStore("ephemeral"), durable, 5*time.Minute)
}

func TestPortalAuthAllowsValidToken(t *testing.T) {
	svc := portalServiceWithSession(t, "portal-token", time.Now().Add(time.Hour))

	var captured *domain.PortalSession
	h := PortalAuth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = PortalSessionFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/portal/session", nil)
	req.Header.Set("Authorization", "Bearer portal-token")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for valid token, got %d", rr.Code)
	}
	if captured == nil || captured.SubjectID != "client-1" {
		t.Fatalf("expected session in context, got %+v", captured)
	}
}

func TestPortalAuthRejectsMissingToken(t *testing.T) {
	svc := portalServiceWithSession(t, "portal-token", time.Now().Add(time.Hour))
	h := PortalAuth(svc)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/portal/session", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
}

func TestPortalAuthRejectsWrongToken(t *testing.T) {
	svc := portalServiceWithSession(t, "portal-token", time.Now().Add(time.Hour))
	h := PortalAuth(svc)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/portal/session", nil)
	req.Header.Set("Authorization", "Bearer other-token")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", rr.Code)
	}
}

func TestPortalAuthRejectsExpiredSession(t *testing.T) {
	svc := portalServiceWithSession(t, "portal-token", time.Now().Add(-time.Minute))
	h := PortalAuth(svc)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/portal/session", nil)
	req.Header.Set("Authorization", "Bearer portal-token")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired session, got %d", rr.Code)
	}
}

func TestRateLimiterDeniesOverLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, "test", nil)
	h := rl.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/portal/login", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/portal/login", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over limit, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header on 429")
	}
}

func TestRateLimiterPartitionsByKey(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, "test", nil)
	h := rl.Middleware()(okHandler())

	first := httptest.NewRequest(http.MethodPost, "/api/v1/portal/login", nil)
	first.RemoteAddr = "10.0.0.1:4000"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, first)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for first client, got %d", rr.Code)
	}

	other := httptest.NewRequest(http.MethodPost, "/api/v1/portal/login", nil)
	other.RemoteAddr = "10.0.0.2:4000"
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for second client, got %d", rr.Code)
	}
}

func TestPhoneOrIPKeyFunc(t *testing.T) {
	keyFunc := PhoneOrIPKeyFunc(func(r *http.Request) string {
		return r.Header.Get("X-Test-Phone")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/portal/login", nil)
	req.Header.Set("X-Test-Phone", "+15550001111")
	if got := keyFunc(req); got != "phone:+15550001111" {
		t.Fatalf("expected phone key, got %q", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/portal/login", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	if got := keyFunc(req); got != "10.0.0.9" {
		t.Fatalf("expected ip fallback, got %q", got)
	}
}

func TestRequestIDGeneratesAndEchoes(t *testing.T) {
	h := RequestID(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected generated request id")
	}

	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-Id", "caller-id")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-Id"); got != "caller-id" {
		t.Fatalf("expected caller id echoed, got %q", got)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	h := CORS([]string{"https://dashboard.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example.com" {
		t.Fatalf("expected origin allowed, got %q", got)
	}
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	h := CORS([]string{"https://dashboard.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no cors headers for unknown origin, got %q", got)
	}
}
