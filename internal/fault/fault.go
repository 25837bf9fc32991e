// Package fault defines the categorized error taxonomy shared by the
// identity client, the portal handshake and the HTTP surface. Exactly one
// kind (an expired access token) is ever recovered locally; every other kind
// propagates to the caller with a human-readable reason.
package fault

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindCredentialInvalid covers wrong passwords, wrong OTP codes and
	// rejected tokens.
	KindCredentialInvalid Kind = "credential_invalid"
	// KindRateLimited means too many attempts; never retried automatically.
	KindRateLimited Kind = "rate_limited"
	// KindNotFound covers missing subjects and expired OTP challenges.
	KindNotFound Kind = "not_found"
	// KindDenied means the caller lacks privilege for the operation.
	KindDenied Kind = "denied"
	// KindNetwork covers connect failures and timeouts.
	KindNetwork Kind = "network"
	// KindServer is a 5xx-equivalent provider fault.
	KindServer Kind = "server"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a categorized error with a caller-facing message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a category and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the category of an error; unknown errors are treated as
// server faults because the safest user-facing message is "try again later".
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindServer
}

// IsKind reports whether err carries the given category.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the caller-facing reason for an error, falling back to a
// generic "try again later" text so no raw internals leak to users.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return "something went wrong, try again later"
}
