package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/domain"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/http/response"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/identity"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/observability"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/service"
)

// RealtimeBinder ties the real-time channel to the dashboard session: bound
// on login, torn down on logout.
type RealtimeBinder interface {
	Connect(ctx context.Context, token string, scope domain.ConnectionScope) error
	Disconnect()
}

// AuthHandler exposes the dashboard credential lifecycle: provider login,
// stored-session inspection, profile lookup, forced refresh and logout. The
// authed client carries the stored access token on every request and recovers
// from an expired one transparently.
type AuthHandler struct {
	provider    *identity.Client
	authed      *identity.Client
	credentials *service.CredentialService
	realtime    RealtimeBinder
}

func NewAuthHandler(provider, authed *identity.Client, credentials *service.CredentialService) *AuthHandler {
	return &AuthHandler{provider: provider, authed: authed, credentials: credentials}
}

// BindRealtime makes login establish the real-time connection and logout tear
// it down. Connection failures never fail the login; they surface through the
// monitor's state instead.
func (h *AuthHandler) BindRealtime(binder RealtimeBinder) {
	h.realtime = binder
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type loginResponse struct {
	User      identity.User `json:"user"`
	ExpiresAt time.Time     `json:"expires_at"`
	Persisted bool          `json:"persisted"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "email and password are required", nil)
		return
	}

	result, err := h.provider.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		observability.Audit(r, "auth.login.failed", "email", req.Email)
		response.Fault(w, r, err)
		return
	}

	ttl := time.Duration(result.ExpiresIn) * time.Second
	if err := h.credentials.Store(r.Context(), result.AccessToken, result.RefreshToken, ttl, req.RememberMe); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "could not persist session", nil)
		return
	}

	cred, err := h.credentials.Current(r.Context())
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "could not persist session", nil)
		return
	}
	observability.Audit(r, "auth.login.success", "subject", result.User.ID, "persisted", req.RememberMe)
	if h.realtime != nil {
		scope := domain.ConnectionScope{TenantID: result.User.CompanyID, SubjectID: result.User.ID}
		if err := h.realtime.Connect(r.Context(), result.AccessToken, scope); err != nil {
			observability.Audit(r, "realtime.connect.failed", "subject", result.User.ID)
		}
	}
	response.JSON(w, r, http.StatusOK, loginResponse{
		User:      result.User,
		ExpiresAt: cred.ExpiresAt,
		Persisted: req.RememberMe,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.realtime != nil {
		h.realtime.Disconnect()
	}
	cred, err := h.credentials.Current(r.Context())
	if err == nil && cred.RefreshToken != "" {
		// Provider-side revocation is best effort; the local session is
		// cleared regardless.
		if err := h.provider.Logout(r.Context(), cred.RefreshToken); err != nil {
			observability.Audit(r, "auth.logout.provider_revoke_failed")
		}
	}
	if err := h.credentials.Clear(r.Context()); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "could not clear session", nil)
		return
	}
	observability.Audit(r, "auth.logout.success")
	response.JSON(w, r, http.StatusOK, map[string]bool{"logged_out": true})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.credentials.Refresh(r.Context()); err != nil {
		if errors.Is(err, service.ErrNoCredential) {
			response.Error(w, r, http.StatusUnauthorized, "NO_SESSION", "no stored session to refresh", nil)
			return
		}
		observability.Audit(r, "auth.refresh.failed")
		response.Fault(w, r, err)
		return
	}
	cred, err := h.credentials.Current(r.Context())
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "NO_SESSION", "no stored session to refresh", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, sessionStatus(cred, time.Now()))
}

// Me proxies the provider profile lookup through the authenticated client.
// The transport attaches the stored access token and replays once after a
// refresh when the provider rejects it as expired.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if _, err := h.credentials.Current(r.Context()); errors.Is(err, service.ErrNoCredential) {
		response.Error(w, r, http.StatusUnauthorized, "NO_SESSION", "sign in to load the profile", nil)
		return
	}
	user, err := h.authed.Me(r.Context(), "")
	if err != nil {
		response.Fault(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	cred, err := h.credentials.Current(r.Context())
	if errors.Is(err, service.ErrNoCredential) {
		response.JSON(w, r, http.StatusOK, map[string]bool{"authenticated": false})
		return
	}
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "could not read session", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, sessionStatus(cred, time.Now()))
}

type sessionStatusResponse struct {
	Authenticated bool      `json:"authenticated"`
	ExpiresAt     time.Time `json:"expires_at"`
	ExpiringSoon  bool      `json:"expiring_soon"`
	Persistence   string    `json:"persistence"`
}

func sessionStatus(cred domain.Credential, now time.Time) sessionStatusResponse {
	return sessionStatusResponse{
		Authenticated: cred.Valid(now),
		ExpiresAt:     cred.ExpiresAt,
		ExpiringSoon:  cred.ExpiringSoon(now),
		Persistence:   string(cred.Persistence),
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body", nil)
		return false
	}
	return true
}
