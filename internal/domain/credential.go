package domain

import "time"

// PersistenceMode selects the storage tier a credential lives in.
type PersistenceMode string

const (
	// PersistDurable keeps the credential across gateway restarts.
	PersistDurable PersistenceMode = "durable"
	// PersistEphemeral keeps the credential only in the TTL-scoped tier.
	PersistEphemeral PersistenceMode = "ephemeral"
)

// Credential is the current authentication material for a dashboard user.
// At most one credential is current per tenant context at any time; every
// writer overwrites all fields in one storage operation.
type Credential struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Persistence  PersistenceMode `json:"persistence"`
}

// ExpiryMargin is the safety window before the stored expiry inside which a
// credential is already treated as due for renewal.
const ExpiryMargin = 5 * time.Minute

// Valid reports whether the credential is present and its expiry is more than
// ExpiryMargin away from now.
func (c Credential) Valid(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	return now.Add(ExpiryMargin).Before(c.ExpiresAt)
}

// ExpiringSoon reports whether the credential is inside the renewal window:
// not yet expired, but within ExpiryMargin of the stored expiry.
func (c Credential) ExpiringSoon(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	until := c.ExpiresAt.Sub(now)
	return until > 0 && until <= ExpiryMargin
}
