package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/domain"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/fault"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/identity"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/observability"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/storage"
)

var ErrNoCredential = errors.New("no stored credential")

// InvalidatedFunc is notified when the session is torn down by a failed
// refresh so the caller-facing layer can force a logout.
type InvalidatedFunc func(reason string)

// CredentialService is the single source of truth for the dashboard user's
// authentication material. The live credential lives in exactly one storage
// tier, selected by the persistence flag at store time; refresh material is
// never mirrored into the other tier.
type CredentialService struct {
	durable   storage.Tier
	ephemeral storage.Tier
	provider  *identity.Client
	coord     *RefreshCoordinator
	now       func() time.Time

	mu        sync.Mutex
	listeners []InvalidatedFunc
}

func NewCredentialService(durable, ephemeral storage.Tier, provider *identity.Client, coord *RefreshCoordinator) *CredentialService {
	return &CredentialService{
		durable:   durable,
		ephemeral: ephemeral,
		provider:  provider,
		coord:     coord,
		now:       time.Now,
	}
}

// OnSessionInvalidated registers a listener for forced-logout signals.
func (s *CredentialService) OnSessionInvalidated(fn InvalidatedFunc) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Store writes the credential to the tier selected by persistent and removes
// any stale copy from the other tier, so a reader can never observe two live
// credentials.
func (s *CredentialService) Store(ctx context.Context, access, refresh string, ttl time.Duration, persistent bool) error {
	cred := domain.Credential{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    s.expiryFor(access, ttl),
		Persistence:  domain.PersistEphemeral,
	}
	if persistent {
		cred.Persistence = domain.PersistDurable
	}
	payload, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	target, other := s.tiers(persistent)
	if err := target.Set(ctx, storage.KeyCredential, payload, 0); err != nil {
		return err
	}
	return other.Delete(ctx, storage.KeyCredential)
}

// Current returns the live credential, wherever it is stored.
func (s *CredentialService) Current(ctx context.Context) (domain.Credential, error) {
	for _, tier := range []storage.Tier{s.durable, s.ephemeral} {
		raw, err := tier.Get(ctx, storage.KeyCredential)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.Credential{}, err
		}
		var cred domain.Credential
		if err := json.Unmarshal(raw, &cred); err != nil {
			return domain.Credential{}, err
		}
		return cred, nil
	}
	return domain.Credential{}, ErrNoCredential
}

// IsValid reports whether a credential is present and more than the safety
// margin away from expiry. Once false for a given stored expiry it stays
// false until a successful Store or Refresh.
func (s *CredentialService) IsValid(ctx context.Context) bool {
	cred, err := s.Current(ctx)
	if err != nil {
		return false
	}
	return cred.Valid(s.now())
}

// IsExpiringSoon reports whether the credential is inside the proactive
// renewal window.
func (s *CredentialService) IsExpiringSoon(ctx context.Context) bool {
	cred, err := s.Current(ctx)
	if err != nil {
		return false
	}
	return cred.ExpiringSoon(s.now())
}

// Refresh exchanges the stored refresh token for a new pair, preserving the
// persistence mode. Failure is terminal: the session is cleared and the
// invalidation signal fires, network errors included (fail closed).
func (s *CredentialService) Refresh(ctx context.Context) (string, error) {
	return s.refresh(ctx, "explicit")
}

func (s *CredentialService) refresh(ctx context.Context, trigger string) (string, error) {
	return s.coord.Refresh(ctx, func(ctx context.Context) (string, error) {
		cred, err := s.Current(ctx)
		if err != nil {
			observability.RecordTokenRefresh(trigger, "no_credential")
			return "", fault.Wrap(fault.KindCredentialInvalid, "your session has ended, sign in again", err)
		}
		pair, err := s.provider.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			observability.RecordTokenRefresh(trigger, "error")
			s.invalidate(ctx, "refresh_failed")
			return "", err
		}
		persistent := cred.Persistence == domain.PersistDurable
		if err := s.Store(ctx, pair.AccessToken, pair.RefreshToken, time.Duration(pair.ExpiresIn)*time.Second, persistent); err != nil {
			observability.RecordTokenRefresh(trigger, "store_error")
			return "", err
		}
		observability.RecordTokenRefresh(trigger, "success")
		return pair.AccessToken, nil
	})
}

// Clear erases the credential from both tiers.
func (s *CredentialService) Clear(ctx context.Context) error {
	return errors.Join(
		s.durable.Delete(ctx, storage.KeyCredential),
		s.ephemeral.Delete(ctx, storage.KeyCredential),
	)
}

// RenewIfExpiring refreshes the credential when it is inside the safety
// margin. Returns the fresh access token and true when a renewal happened.
func (s *CredentialService) RenewIfExpiring(ctx context.Context) (string, bool, error) {
	if !s.IsExpiringSoon(ctx) {
		return "", false, nil
	}
	token, err := s.refresh(ctx, "proactive")
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

// AccessToken implements identity.TokenSource.
func (s *CredentialService) AccessToken(ctx context.Context) (string, error) {
	cred, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// RefreshAccessToken implements identity.TokenSource for the authenticated
// transport; concurrent callers share one refresh through the coordinator.
func (s *CredentialService) RefreshAccessToken(ctx context.Context) (string, error) {
	return s.refresh(ctx, "reactive")
}

func (s *CredentialService) invalidate(ctx context.Context, reason string) {
	_ = s.Clear(ctx)
	observability.AuditEvent(ctx, "session.invalidated", "reason", reason)
	s.mu.Lock()
	listeners := make([]InvalidatedFunc, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(reason)
	}
}

func (s *CredentialService) tiers(persistent bool) (target, other storage.Tier) {
	if persistent {
		return s.durable, s.ephemeral
	}
	return s.ephemeral, s.durable
}

// expiryFor derives the absolute expiry from the provider TTL, falling back
// to the exp claim of the access token when no TTL was supplied. The token
// is not signature-checked here; the provider is the authority, this is only
// scheduling input.
func (s *CredentialService) expiryFor(access string, ttl time.Duration) time.Time {
	if ttl > 0 {
		return s.now().Add(ttl)
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return s.now()
}
