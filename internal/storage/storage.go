package storage

import (
	"context"
	"errors"
	"time"
)

// Fixed keys for the persisted state. The live copy of a value lives in
// exactly one tier; writers never mirror across tiers.
const (
	KeyCredential    = "session.credential"
	KeyPortalSession = "portal.session"
)

// ChallengeKey returns the ephemeral-tier key for the pending OTP challenge
// of a phone number. Overwriting it invalidates the previous challenge.
func ChallengeKey(phone string) string {
	return "portal.challenge:" + phone
}

var ErrNotFound = errors.New("storage: key not found")

// Tier is one of the two storage tiers (durable or ephemeral). Values are
// opaque JSON payloads stored under fixed string keys. A ttl of zero means
// the entry does not expire on its own.
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Name() string
}
