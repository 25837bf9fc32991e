package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/domain"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/http/response"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/observability"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/portal"
)

type contextKey string

const (
	PortalSessionContextKey contextKey = "portal_session"
)

// PortalAuth guards portal endpoints with the bearer session token minted by
// the OTP handshake. Expired or unknown tokens are rejected; expiry is
// detected at read time, never silently renewed.
func PortalAuth(sessions *portal.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				observability.Audit(r, "portal.auth.missing_token")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing portal session token", nil)
				return
			}
			session, err := sessions.Authenticate(r.Context(), raw)
			if err != nil {
				observability.Audit(r, "portal.auth.rejected")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "your portal session is no longer valid, sign in again", nil)
				return
			}
			ctx := context.WithValue(r.Context(), PortalSessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PortalSessionFromContext returns the session attached by PortalAuth.
func PortalSessionFromContext(ctx context.Context) (*domain.PortalSession, bool) {
	s, ok := ctx.Value(PortalSessionContextKey).(*domain.PortalSession)
	return s, ok
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
