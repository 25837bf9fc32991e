package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/domain"
)

// WebsocketTransport is the production transport: a websocket scoped by
// query parameters, authenticated by a bearer token, with server-pushed
// lifecycle frames.
type WebsocketTransport struct {
	endpoint string
	dialer   *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	phase     string
	attempts  int
	scope     domain.ConnectionScope
	handlers  Handlers
	readDone  chan struct{}
}

type wsFrame struct {
	Type    string `json:"type"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func NewWebsocketTransport(endpoint string) *WebsocketTransport {
	return &WebsocketTransport{
		endpoint: endpoint,
		dialer:   websocket.DefaultDialer,
		phase:    "idle",
	}
}

func (t *WebsocketTransport) SetHandlers(h Handlers) {
	t.mu.Lock()
	t.handlers = h
	t.mu.Unlock()
}

func (t *WebsocketTransport) Connect(ctx context.Context, token string, scope domain.ConnectionScope) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return fmt.Errorf("realtime: already connected")
	}
	t.phase = "connecting"
	t.mu.Unlock()

	u, err := url.Parse(t.endpoint)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("tenant_id", scope.TenantID)
	q.Set("subject_id", scope.SubjectID)
	if scope.ScopeID != "" {
		q.Set("scope_id", scope.ScopeID)
	}
	u.RawQuery = q.Encode()

	conn, _, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		t.mu.Lock()
		t.phase = "error"
		t.mu.Unlock()
		return fmt.Errorf("dial realtime endpoint: %w", err)
	}

	done := make(chan struct{})
	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.phase = "authenticated"
	t.scope = scope
	t.readDone = done
	onConnect := t.handlers.OnConnect
	t.mu.Unlock()

	go t.readPump(conn, done)
	if onConnect != nil {
		onConnect()
	}
	return nil
}

// UpdateScope re-scopes the live subscription with a control frame, avoiding
// a reconnect cycle.
func (t *WebsocketTransport) UpdateScope(_ context.Context, scope domain.ConnectionScope) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrScopeUpdateUnsupported
	}
	msg := map[string]string{
		"type":       "rescope",
		"tenant_id":  scope.TenantID,
		"subject_id": scope.SubjectID,
		"scope_id":   scope.ScopeID,
	}
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	t.mu.Lock()
	t.scope = scope
	t.mu.Unlock()
	return nil
}

func (t *WebsocketTransport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	done := t.readDone
	t.conn = nil
	t.connected = false
	t.phase = "idle"
	t.attempts = 0
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"))
	err := conn.Close()
	if done != nil {
		<-done
	}
	return err
}

func (t *WebsocketTransport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	listeners := 0
	for _, h := range []bool{
		t.handlers.OnConnect != nil,
		t.handlers.OnDisconnect != nil,
		t.handlers.OnError != nil,
		t.handlers.OnReconnect != nil,
	} {
		if h {
			listeners++
		}
	}
	return Stats{
		Connected:         t.connected,
		Phase:             t.phase,
		ReconnectAttempts: t.attempts,
		ActiveListeners:   listeners,
		TenantID:          t.scope.TenantID,
		ScopeID:           t.scope.ScopeID,
	}
}

// readPump consumes server frames until the connection drops. Only lifecycle
// frames matter to the gateway; data frames are the dashboard's concern and
// pass through untouched.
func (t *WebsocketTransport) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			dropped := t.conn == conn
			if dropped {
				t.connected = false
				t.phase = "disconnected"
				t.conn = nil
			}
			onDisconnect := t.handlers.OnDisconnect
			t.mu.Unlock()
			if dropped && onDisconnect != nil {
				onDisconnect(err.Error())
			}
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case "error":
			t.mu.Lock()
			t.phase = "error"
			onError := t.handlers.OnError
			t.mu.Unlock()
			if onError != nil {
				onError(frame.Message)
			}
		case "reconnected":
			t.mu.Lock()
			t.attempts++
			t.connected = true
			t.phase = "authenticated"
			onReconnect := t.handlers.OnReconnect
			t.mu.Unlock()
			if onReconnect != nil {
				onReconnect()
			}
		}
	}
}
