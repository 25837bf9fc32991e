package domain

import "time"

// OTPChallenge is a pending verification for a client-portal login attempt.
// Only the newest challenge issued for a phone number is valid; issuing a new
// one invalidates its predecessor.
type OTPChallenge struct {
	Phone       string    `json:"phone"`
	ChallengeID string    `json:"challenge_id"`
	IssuedAt    time.Time `json:"issued_at"`
}

// PortalSession is the authenticated state for an end customer after OTP
// verification. It is persisted durably and discarded lazily once the clock
// passes ExpiresAt; an expired session is never silently renewed on read.
type PortalSession struct {
	SubjectID    string    `json:"subject_id"`
	Phone        string    `json:"phone"`
	DisplayName  string    `json:"display_name"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Active reports whether the session is still usable at the given instant.
func (s PortalSession) Active(now time.Time) bool {
	return s.SessionToken != "" && now.Before(s.ExpiresAt)
}
