package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/http/middleware"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/http/response"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/observability"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/portal"
)

// PortalHandler exposes the OTP handshake for the client portal.
type PortalHandler struct {
	sessions     *portal.Service
	challengeTTL time.Duration
}

func NewPortalHandler(sessions *portal.Service, challengeTTL time.Duration) *PortalHandler {
	return &PortalHandler{sessions: sessions, challengeTTL: challengeTTL}
}

type portalLoginRequest struct {
	Phone string `json:"phone"`
}

type portalLoginResponse struct {
	ChallengeID string    `json:"challenge_id"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresIn   int64     `json:"expires_in_seconds"`
}

type portalVerifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type portalSessionResponse struct {
	SubjectID    string    `json:"subject_id"`
	Phone        string    `json:"phone"`
	DisplayName  string    `json:"display_name,omitempty"`
	SessionToken string    `json:"session_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (h *PortalHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req portalLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Phone == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "phone number is required", nil)
		return
	}

	challenge, err := h.sessions.RequestChallenge(r.Context(), req.Phone)
	if err != nil {
		observability.Audit(r, "portal.challenge.failed", "phone", req.Phone)
		response.Fault(w, r, err)
		return
	}
	observability.Audit(r, "portal.challenge.issued", "phone", req.Phone)
	response.JSON(w, r, http.StatusOK, portalLoginResponse{
		ChallengeID: challenge.ChallengeID,
		IssuedAt:    challenge.IssuedAt,
		ExpiresIn:   int64(h.challengeTTL.Seconds()),
	})
}

func (h *PortalHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req portalVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	req.Code = strings.TrimSpace(req.Code)
	if req.Phone == "" || req.Code == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "phone number and code are required", nil)
		return
	}

	session, err := h.sessions.Verify(r.Context(), req.Phone, req.Code)
	if err != nil {
		observability.Audit(r, "portal.verify.failed", "phone", req.Phone)
		response.Fault(w, r, err)
		return
	}
	observability.Audit(r, "portal.verify.success", "subject", session.SubjectID)
	response.JSON(w, r, http.StatusOK, portalSessionResponse{
		SubjectID:    session.SubjectID,
		Phone:        session.Phone,
		DisplayName:  session.DisplayName,
		SessionToken: session.SessionToken,
		ExpiresAt:    session.ExpiresAt,
	})
}

func (h *PortalHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.PortalSessionFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing portal session", nil)
		return
	}
	// The token the caller already holds is not echoed back.
	response.JSON(w, r, http.StatusOK, portalSessionResponse{
		SubjectID:   session.SubjectID,
		Phone:       session.Phone,
		DisplayName: session.DisplayName,
		ExpiresAt:   session.ExpiresAt,
	})
}

func (h *PortalHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "could not clear portal session", nil)
		return
	}
	observability.Audit(r, "portal.logout.success")
	response.JSON(w, r, http.StatusOK, map[string]bool{"logged_out": true})
}
