// Package portal implements the OTP handshake that converts a phone number
// into a durable client-portal session: Idle until a challenge is requested,
// Pending until the code is verified, Authenticated until logout or expiry.
package portal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/domain"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/fault"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/observability"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/storage"
)

var ErrNoSession = errors.New("no portal session")

type Service struct {
	provider     ChallengeProvider
	providerName string
	ephemeral    storage.Tier
	durable      storage.Tier
	challengeTTL time.Duration
	now          func() time.Time
}

func NewService(provider ChallengeProvider, providerName string, ephemeral, durable storage.Tier, challengeTTL time.Duration) *Service {
	return &Service{
		provider:     provider,
		providerName: providerName,
		ephemeral:    ephemeral,
		durable:      durable,
		challengeTTL: challengeTTL,
		now:          time.Now,
	}
}

// RequestChallenge asks the provider for a new challenge and records it as
// the pending one for the phone number. A prior pending challenge for the
// same number is overwritten, which invalidates it: only the newest
// challenge id can verify.
func (s *Service) RequestChallenge(ctx context.Context, phone string) (*domain.OTPChallenge, error) {
	id, err := s.provider.Issue(ctx, phone)
	if err != nil {
		if fault.IsKind(err, fault.KindRateLimited) {
			observability.RecordPortalChallenge(s.providerName, "rate_limited")
		} else {
			observability.RecordPortalChallenge(s.providerName, "error")
		}
		return nil, err
	}
	challenge := domain.OTPChallenge{
		Phone:       phone,
		ChallengeID: id,
		IssuedAt:    s.now(),
	}
	payload, err := json.Marshal(challenge)
	if err != nil {
		return nil, err
	}
	if err := s.ephemeral.Set(ctx, storage.ChallengeKey(phone), payload, s.challengeTTL); err != nil {
		return nil, err
	}
	observability.RecordPortalChallenge(s.providerName, "issued")
	return &challenge, nil
}

// Verify settles the pending challenge for the phone number. A correct code
// consumes the challenge and creates the durable portal session; a wrong
// code leaves the challenge pending so the user can retry.
func (s *Service) Verify(ctx context.Context, phone, code string) (*domain.PortalSession, error) {
	raw, err := s.ephemeral.Get(ctx, storage.ChallengeKey(phone))
	if errors.Is(err, storage.ErrNotFound) {
		observability.RecordPortalVerify("challenge_missing")
		return nil, fault.New(fault.KindNotFound, "this code has expired, request a new one")
	}
	if err != nil {
		return nil, err
	}
	var challenge domain.OTPChallenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return nil, err
	}

	verified, err := s.provider.Verify(ctx, phone, code, challenge.ChallengeID)
	if err != nil {
		if fault.IsKind(err, fault.KindCredentialInvalid) {
			observability.RecordPortalVerify("wrong_code")
		} else {
			observability.RecordPortalVerify("error")
		}
		return nil, err
	}

	session := domain.PortalSession{
		SubjectID:    verified.SubjectID,
		Phone:        phone,
		DisplayName:  verified.SubjectName,
		SessionToken: verified.SessionToken,
		ExpiresAt:    verified.ExpiresAt,
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	if err := s.durable.Set(ctx, storage.KeyPortalSession, payload, 0); err != nil {
		return nil, err
	}
	// The challenge is consumed; a later verify must request a new one.
	if err := s.ephemeral.Delete(ctx, storage.ChallengeKey(phone)); err != nil {
		return nil, err
	}
	observability.RecordPortalVerify("success")
	return &session, nil
}

// CurrentSession restores the authenticated state from durable storage. An
// expired session is purged on read and reported absent; it is never
// silently renewed.
func (s *Service) CurrentSession(ctx context.Context) (*domain.PortalSession, error) {
	raw, err := s.durable.Get(ctx, storage.KeyPortalSession)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	var session domain.PortalSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	if !session.Active(s.now()) {
		_ = s.durable.Delete(ctx, storage.KeyPortalSession)
		return nil, ErrNoSession
	}
	return &session, nil
}

// Authenticate validates a presented session token against the stored
// session. Used by the portal auth middleware.
func (s *Service) Authenticate(ctx context.Context, token string) (*domain.PortalSession, error) {
	session, err := s.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" || token != session.SessionToken {
		return nil, fault.New(fault.KindCredentialInvalid, "your portal session is no longer valid, sign in again")
	}
	return session, nil
}

// Logout clears the durable session, returning the flow to Idle.
func (s *Service) Logout(ctx context.Context) error {
	return s.durable.Delete(ctx, storage.KeyPortalSession)
}
