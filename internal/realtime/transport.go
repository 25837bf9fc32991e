// Package realtime tracks the lifecycle of the persistent update channel and
// exposes a debounced, dual-checked view of its health to the rest of the
// gateway.
package realtime

import (
	"context"
	"errors"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/domain"
)

// ErrScopeUpdateUnsupported is returned by transports that cannot re-scope
// an open connection; the monitor falls back to a full reconnect cycle.
var ErrScopeUpdateUnsupported = errors.New("realtime: transport cannot rescope in place")

// Stats is the transport's self-reported view of the connection. Connected
// here is transport-level only; it can be true while the application-level
// handshake has not completed, which is why health checks both.
type Stats struct {
	Connected         bool   `json:"connected"`
	Phase             string `json:"phase"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	ActiveListeners   int    `json:"active_listeners"`
	TenantID          string `json:"tenant_id"`
	ScopeID           string `json:"scope_id"`
}

// Handlers receive transport lifecycle events. All callbacks are optional.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func(reason string)
	OnError      func(message string)
	OnReconnect  func()
}

// Transport is the persistent connection to the real-time backend, treated
// as an opaque collaborator with its own reconnection mechanics.
type Transport interface {
	Connect(ctx context.Context, token string, scope domain.ConnectionScope) error
	UpdateScope(ctx context.Context, scope domain.ConnectionScope) error
	Disconnect() error
	Stats() Stats
	SetHandlers(h Handlers)
}
