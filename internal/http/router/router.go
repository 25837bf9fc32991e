package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/http/handler"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/http/middleware"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/http/response"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/portal"
)

// ReadinessFunc reports whether backing dependencies are reachable, keyed by
// check name.
type ReadinessFunc func(ctx context.Context) (bool, map[string]string)

type Dependencies struct {
	AuthHandler             *handler.AuthHandler
	PortalHandler           *handler.PortalHandler
	RealtimeHandler         *handler.RealtimeHandler
	PortalSessions          *portal.Service
	CORSOrigins             []string
	PortalLoginRateLimitRPM int
	APIRateLimitRPM         int
	Readiness               ReadinessFunc
	EnableOTelHTTP          bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "api", nil).Middleware())

	loginLimiter := middleware.NewRateLimiter(dep.PortalLoginRateLimitRPM, time.Minute, "portal_login", nil).Middleware()

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": map[string]string{}})
			return
		}
		ready, checks := dep.Readiness(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": checks})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimiter).Post("/login", dep.AuthHandler.Login)
			r.Post("/logout", dep.AuthHandler.Logout)
			r.Post("/refresh", dep.AuthHandler.Refresh)
			r.Get("/session", dep.AuthHandler.Session)
			r.Get("/me", dep.AuthHandler.Me)
		})

		r.Route("/portal", func(r chi.Router) {
			r.With(loginLimiter).Post("/login", dep.PortalHandler.Login)
			r.With(loginLimiter).Post("/verify", dep.PortalHandler.Verify)
			r.Group(func(r chi.Router) {
				r.Use(middleware.PortalAuth(dep.PortalSessions))
				r.Get("/session", dep.PortalHandler.Session)
				r.Post("/logout", dep.PortalHandler.Logout)
			})
		})

		r.Route("/realtime", func(r chi.Router) {
			r.Get("/health", dep.RealtimeHandler.Health)
			r.Post("/hint", dep.RealtimeHandler.Hint)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
