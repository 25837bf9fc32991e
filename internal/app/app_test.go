package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/config"
)

func testConfig(redisAddr string) *config.Config {
	return &config.Config{
		Profile:            "test",
		ListenAddr:         "127.0.0.1:0",
		DatabaseDriver:     "sqlite",
		DatabaseDSN:        "file::memory:?cache=shared",
		RedisAddr:          redisAddr,
		IdentityBaseURL:    "http://127.0.0.1:0",
		RequestTimeout:     time.Second,
		OTPFixedCode:       "123456",
		PortalSessionTTL:   time.Hour,
		PortalChallengeTTL: 5 * time.Minute,
		PortalLoginRPM:     100,
		APIRateLimitRPM:    100,
		ShutdownTimeout:    time.Second,
		HTTPDrainTimeout:   time.Second,
	}
}

func TestNewAssignsDependenciesAndTimeouts(t *testing.T) {
	cfg := &config.Config{
		ShutdownTimeout:  10 * time.Second,
		HTTPDrainTimeout: 2 * time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := &http.Server{Addr: ":8080", ReadHeaderTimeout: time.Second}
	stopped := false

	a := New(cfg, logger, server, nil, nil, func() { stopped = true })
	if a.Config != cfg || a.Logger != logger || a.Server != server {
		t.Fatal("expected app dependencies to be assigned")
	}
	if a.ShutdownTimeout != cfg.ShutdownTimeout || a.HTTPDrainTimeout != cfg.HTTPDrainTimeout {
		t.Fatal("expected shutdown timeouts copied from config")
	}

	a.StopBackgroundTasks()
	if !stopped {
		t.Fatal("expected stop callback to run")
	}
}

func TestBuildWiresGatewayAndReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := Build(context.Background(), testConfig(mr.Addr()), logger, nil)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.StopBackgroundTasks()

	if a.Monitor != nil {
		t.Fatal("expected no monitor without a realtime url")
	}

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rr := httptest.NewRecorder()
	a.Server.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ready gateway, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"status":"ready"`) {
		t.Fatalf("expected ready payload, got %s", rr.Body.String())
	}
}

func TestBuildReportsUnreadyWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := Build(context.Background(), testConfig(mr.Addr()), logger, nil)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.StopBackgroundTasks()

	mr.Close()

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rr := httptest.NewRecorder()
	a.Server.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with redis down, got %d body=%s", rr.Code, rr.Body.String())
	}
}
