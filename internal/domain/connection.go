package domain

// ConnectionPhase is the categorical status of the real-time channel.
type ConnectionPhase string

const (
	PhaseIdle          ConnectionPhase = "idle"
	PhaseConnecting    ConnectionPhase = "connecting"
	PhaseAuthenticated ConnectionPhase = "authenticated"
	PhaseDisconnected  ConnectionPhase = "disconnected"
	PhaseError         ConnectionPhase = "error"
)

// ConnectionScope identifies the tenant context a real-time connection is
// bound to. ScopeID narrows the subscription to a sub-scope (e.g. a single
// branch) and may be empty.
type ConnectionScope struct {
	TenantID  string `json:"tenant_id"`
	SubjectID string `json:"subject_id"`
	ScopeID   string `json:"scope_id,omitempty"`
}

// ConnectionState is the observable status of the real-time channel.
// Authenticated implies Connected; Healthy additionally requires the
// transport to self-report connected.
type ConnectionState struct {
	Connected         bool            `json:"connected"`
	Phase             ConnectionPhase `json:"phase"`
	LastError         string          `json:"last_error,omitempty"`
	ReconnectAttempts int             `json:"reconnect_attempts"`
	Scope             ConnectionScope `json:"scope"`
}
