package observability

import (
	"context"
	"log/slog"
	"net/http"
)

// Audit logs a security-relevant event attached to an inbound request.
func Audit(r *http.Request, event string, attrs ...any) {
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Header.Get("X-Request-Id"),
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "audit", base...)
}

// AuditEvent logs a security-relevant event that has no inbound request,
// e.g. proactive token renewal or real-time connection teardown.
func AuditEvent(ctx context.Context, event string, attrs ...any) {
	base := []any{"event", event}
	base = append(base, attrs...)
	slog.InfoContext(ctx, "audit", base...)
}
