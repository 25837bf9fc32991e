package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/domain"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/observability"
)

var (
	ErrNotConnected      = errors.New("realtime: no active connection")
	ErrConnectInProgress = errors.New("realtime: connect already in progress")
)

// TokenRenewer supplies credentials for the channel and proactively renews
// them when they approach expiry.
type TokenRenewer interface {
	AccessToken(ctx context.Context) (string, error)
	RenewIfExpiring(ctx context.Context) (token string, renewed bool, err error)
}

type Options struct {
	// HealthPeriod is how often the dual-flag health check runs.
	HealthPeriod time.Duration
	// RenewalPeriod is how often stored credentials are checked for
	// approaching expiry and the connection renewed with a fresh token.
	RenewalPeriod time.Duration
	Logger        *slog.Logger
}

// Monitor owns the observable state of the real-time channel. Failures never
// propagate to consumers as panics or errors from callbacks; they become
// state transitions that consumers read via State and Healthy.
type Monitor struct {
	transport     Transport
	creds         TokenRenewer
	healthPeriod  time.Duration
	renewalPeriod time.Duration
	logger        *slog.Logger

	mu         sync.Mutex
	state      domain.ConnectionState
	token      string
	stopCh     chan struct{}
	running    bool
	connecting bool
}

func NewMonitor(transport Transport, creds TokenRenewer, opts Options) *Monitor {
	if opts.HealthPeriod <= 0 {
		opts.HealthPeriod = 10 * time.Second
	}
	if opts.RenewalPeriod <= 0 {
		opts.RenewalPeriod = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &Monitor{
		transport:     transport,
		creds:         creds,
		healthPeriod:  opts.HealthPeriod,
		renewalPeriod: opts.RenewalPeriod,
		logger:        opts.Logger,
		state:         domain.ConnectionState{Phase: domain.PhaseIdle},
	}
	transport.SetHandlers(Handlers{
		OnConnect:    m.onConnect,
		OnDisconnect: m.onDisconnect,
		OnError:      m.onError,
		OnReconnect:  m.onReconnect,
	})
	return m
}

// Connect opens the channel for the given scope. Connecting again with the
// same scope while authenticated or while a connect for it is already in
// flight is a no-op; a different scope tears the existing connection down
// first. A concurrent connect for a different scope is rejected so two
// callers can never race the transport into a false error state.
func (m *Monitor) Connect(ctx context.Context, token string, scope domain.ConnectionScope) error {
	m.mu.Lock()
	if m.state.Phase == domain.PhaseAuthenticated && m.state.Scope == scope {
		m.mu.Unlock()
		return nil
	}
	if m.connecting {
		sameScope := m.state.Scope == scope
		m.mu.Unlock()
		if sameScope {
			return nil
		}
		return ErrConnectInProgress
	}
	m.connecting = true
	active := m.state.Phase != domain.PhaseIdle
	m.token = token
	m.state.Scope = scope
	m.transition(domain.PhaseConnecting)
	m.mu.Unlock()

	if active {
		_ = m.transport.Disconnect()
	}
	return m.establish(ctx, token, scope)
}

// UpdateScope re-scopes an authenticated connection without a full reconnect
// when the transport supports it, falling back to a disconnect+connect
// cycle otherwise.
func (m *Monitor) UpdateScope(ctx context.Context, scope domain.ConnectionScope) error {
	m.mu.Lock()
	if m.state.Phase != domain.PhaseAuthenticated {
		m.mu.Unlock()
		return ErrNotConnected
	}
	token := m.token
	m.mu.Unlock()

	err := m.transport.UpdateScope(ctx, scope)
	if errors.Is(err, ErrScopeUpdateUnsupported) {
		_ = m.transport.Disconnect()
		m.mu.Lock()
		m.state.Scope = scope
		m.transition(domain.PhaseConnecting)
		m.mu.Unlock()
		return m.establish(ctx, token, scope)
	}
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.state.Scope = scope
	m.mu.Unlock()
	return nil
}

// Disconnect tears the channel down and returns the monitor to idle. All
// scheduled checks are cancelled so no timers leak past teardown.
func (m *Monitor) Disconnect() {
	m.mu.Lock()
	m.stopLoopsLocked()
	m.token = ""
	m.state.Connected = false
	m.state.LastError = ""
	m.state.ReconnectAttempts = 0
	m.state.Scope = domain.ConnectionScope{}
	m.transition(domain.PhaseIdle)
	m.mu.Unlock()

	_ = m.transport.Disconnect()
}

// Reconnect forces a fresh connect cycle with the last-known credentials and
// scope. It is invalid from idle: an explicit disconnect is terminal until
// the next Connect.
func (m *Monitor) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Phase == domain.PhaseIdle {
		m.mu.Unlock()
		return ErrNotConnected
	}
	token := m.token
	scope := m.state.Scope
	m.state.ReconnectAttempts++
	m.transition(domain.PhaseConnecting)
	m.mu.Unlock()

	_ = m.transport.Disconnect()
	return m.establish(ctx, token, scope)
}

// OnLivenessHint is raised by the host when the application regains
// foreground attention (visibility restored, app resumed). An unhealthy
// non-idle connection is reconnected.
func (m *Monitor) OnLivenessHint(ctx context.Context) {
	m.mu.Lock()
	idle := m.state.Phase == domain.PhaseIdle
	m.mu.Unlock()
	if idle || m.Healthy() {
		return
	}
	if err := m.Reconnect(ctx); err != nil {
		m.logger.Warn("liveness-hinted reconnect failed", "error", err)
	}
}

// Healthy is the dual-flag check: the application-level handshake completed
// AND the transport self-reports connected.
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	authenticated := m.state.Phase == domain.PhaseAuthenticated
	m.mu.Unlock()
	return authenticated && m.transport.Stats().Connected
}

// State returns a snapshot of the observable connection state.
func (m *Monitor) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) establish(ctx context.Context, token string, scope domain.ConnectionScope) error {
	err := m.transport.Connect(ctx, token, scope)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connecting = false
	if err != nil {
		m.state.LastError = err.Error()
		m.transition(domain.PhaseError)
		return err
	}
	m.state.Connected = true
	m.state.LastError = ""
	m.transition(domain.PhaseAuthenticated)
	m.startLoopsLocked()
	return nil
}

func (m *Monitor) onConnect() {
	m.mu.Lock()
	m.state.Connected = true
	m.mu.Unlock()
}

func (m *Monitor) onDisconnect(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase == domain.PhaseIdle {
		return
	}
	m.state.Connected = false
	m.transition(domain.PhaseDisconnected)
	m.logger.Info("realtime channel dropped", "reason", reason)
}

func (m *Monitor) onError(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase != domain.PhaseConnecting && m.state.Phase != domain.PhaseAuthenticated {
		return
	}
	m.state.LastError = message
	m.transition(domain.PhaseError)
}

func (m *Monitor) onReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase == domain.PhaseIdle {
		return
	}
	m.state.Connected = true
	m.state.ReconnectAttempts++
	m.state.LastError = ""
	m.transition(domain.PhaseAuthenticated)
}

// transition records a phase change. Callers hold m.mu.
func (m *Monitor) transition(to domain.ConnectionPhase) {
	if m.state.Phase == to {
		return
	}
	observability.RecordConnectionTransition(string(m.state.Phase), string(to))
	m.state.Phase = to
}

func (m *Monitor) startLoopsLocked() {
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	go m.run(m.stopCh)
}

func (m *Monitor) stopLoopsLocked() {
	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
}

func (m *Monitor) run(stop chan struct{}) {
	health := time.NewTicker(m.healthPeriod)
	renewal := time.NewTicker(m.renewalPeriod)
	defer health.Stop()
	defer renewal.Stop()

	for {
		select {
		case <-stop:
			return
		case <-health.C:
			m.evaluateHealth()
		case <-renewal.C:
			m.renewCredentials()
		}
	}
}

func (m *Monitor) evaluateHealth() {
	stats := m.transport.Stats()
	m.mu.Lock()
	m.state.Connected = stats.Connected
	m.mu.Unlock()
}

// renewCredentials proactively refreshes the stored token when it is inside
// the expiry safety margin and renews the connection with the fresh token.
func (m *Monitor) renewCredentials() {
	ctx := context.Background()
	token, renewed, err := m.creds.RenewIfExpiring(ctx)
	if err != nil {
		m.logger.Warn("proactive credential renewal failed", "error", err)
		return
	}
	if !renewed {
		return
	}
	m.mu.Lock()
	m.token = token
	idle := m.state.Phase == domain.PhaseIdle
	m.mu.Unlock()
	if idle {
		return
	}
	observability.AuditEvent(ctx, "realtime.connection.renewed")
	if err := m.Reconnect(ctx); err != nil {
		m.logger.Warn("connection renewal failed", "error", err)
	}
}
