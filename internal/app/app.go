package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/config"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/http/handler"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/http/router"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/identity"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/observability"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/portal"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/realtime"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/service"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/storage"
)

// App holds the wired gateway and its shutdown knobs.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Monitor       *realtime.Monitor

	ShutdownTimeout          time.Duration
	HTTPDrainTimeout         time.Duration
	ObservabilityStopTimeout time.Duration

	stop func()
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, rt *observability.Runtime, monitor *realtime.Monitor, stop func()) *App {
	return &App{
		Config:                   cfg,
		Logger:                   logger,
		Server:                   server,
		Observability:            rt,
		Monitor:                  monitor,
		ShutdownTimeout:          cfg.ShutdownTimeout,
		HTTPDrainTimeout:         cfg.HTTPDrainTimeout,
		ObservabilityStopTimeout: cfg.ObservabilityStop,
		stop:                     stop,
	}
}

// Build assembles the gateway from configuration: storage tiers, provider
// clients, the credential and portal services, the real-time monitor and the
// HTTP surface.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, rt *observability.Runtime) (*App, error) {
	db, err := storage.OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}
	durable := storage.NewGormStore(db)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ephemeral := storage.NewRedisStore(redisClient, "sessiond")

	provider := identity.NewClient(cfg.IdentityBaseURL, cfg.RequestTimeout)
	credentials := service.NewCredentialService(durable, ephemeral, provider, service.NewRefreshCoordinator())

	var challenges portal.ChallengeProvider
	providerName := "http"
	if cfg.UsesFixedOTP() {
		challenges = portal.NewFixedCodeProvider(cfg.OTPFixedCode, cfg.PortalSessionTTL)
		providerName = "fixed"
	} else {
		challenges = portal.NewHTTPProvider(cfg.OTPProviderBaseURL, cfg.RequestTimeout)
	}
	sessions := portal.NewService(challenges, providerName, ephemeral, durable, cfg.PortalChallengeTTL)

	var monitor *realtime.Monitor
	if cfg.RealtimeURL != "" {
		monitor = realtime.NewMonitor(realtime.NewWebsocketTransport(cfg.RealtimeURL), credentials, realtime.Options{
			HealthPeriod:  cfg.RealtimeHealthPeriod,
			RenewalPeriod: cfg.RealtimeRenewalPeriod,
			Logger:        logger,
		})
		credentials.OnSessionInvalidated(func(reason string) {
			logger.Warn("session invalidated, tearing down realtime channel", "reason", reason)
			monitor.Disconnect()
		})
	}

	authed := identity.NewAuthenticatedClient(cfg.IdentityBaseURL, cfg.RequestTimeout, credentials)
	authHandler := handler.NewAuthHandler(provider, authed, credentials)
	if monitor != nil {
		authHandler.BindRealtime(monitor)
	}

	mux := router.NewRouter(router.Dependencies{
		AuthHandler:             authHandler,
		PortalHandler:           handler.NewPortalHandler(sessions, cfg.PortalChallengeTTL),
		RealtimeHandler:         handler.NewRealtimeHandler(monitor),
		PortalSessions:          sessions,
		CORSOrigins:             cfg.CORSOrigins,
		PortalLoginRateLimitRPM: cfg.PortalLoginRPM,
		APIRateLimitRPM:         cfg.APIRateLimitRPM,
		Readiness:               readiness(durable, redisClient),
		EnableOTelHTTP:          cfg.OTELTracesEnabled,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := func() {
		if monitor != nil {
			monitor.Disconnect()
		}
		_ = redisClient.Close()
	}
	return New(cfg, logger, server, rt, monitor, stop), nil
}

// Run serves until the context is cancelled, then drains in-flight requests,
// stops background loops and flushes telemetry.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("gateway listening", "addr", a.Server.Addr, "profile", a.Config.Profile)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		a.StopBackgroundTasks()
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down", "timeout", a.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
	defer cancel()

	drainCtx, drainCancel := context.WithTimeout(shutdownCtx, a.HTTPDrainTimeout)
	defer drainCancel()
	if err := a.Server.Shutdown(drainCtx); err != nil {
		a.Logger.Warn("http drain incomplete", "error", err)
	}

	a.StopBackgroundTasks()

	obsCtx := shutdownCtx
	if a.ObservabilityStopTimeout > 0 {
		var obsCancel context.CancelFunc
		obsCtx, obsCancel = context.WithTimeout(shutdownCtx, a.ObservabilityStopTimeout)
		defer obsCancel()
	}
	if err := a.Observability.Shutdown(obsCtx); err != nil {
		a.Logger.Warn("observability shutdown incomplete", "error", err)
	}
	return nil
}

// StopBackgroundTasks tears down the realtime monitor and other background
// work. Safe to call more than once.
func (a *App) StopBackgroundTasks() {
	if a.stop != nil {
		a.stop()
	}
}

func readiness(durable *storage.GormStore, redisClient *redis.Client) router.ReadinessFunc {
	return func(ctx context.Context) (bool, map[string]string) {
		checks := map[string]string{"database": "ok", "redis": "ok"}
		ready := true
		if err := durable.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			ready = false
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			ready = false
		}
		return ready, checks
	}
}
