package handler

import (
	"net/http"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/http/response"
	"github.com/a7mdelbanna/clients-plus-gateway/internal/realtime"
)

// RealtimeHandler reports the monitor's derived connection health and lets
// callers forward liveness hints (e.g. the dashboard tab regaining focus).
type RealtimeHandler struct {
	monitor *realtime.Monitor
}

func NewRealtimeHandler(monitor *realtime.Monitor) *RealtimeHandler {
	return &RealtimeHandler{monitor: monitor}
}

type realtimeHealthResponse struct {
	Healthy bool `json:"healthy"`
	State   any  `json:"state"`
}

func (h *RealtimeHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		response.JSON(w, r, http.StatusOK, realtimeHealthResponse{Healthy: false})
		return
	}
	response.JSON(w, r, http.StatusOK, realtimeHealthResponse{
		Healthy: h.monitor.Healthy(),
		State:   h.monitor.State(),
	})
}

// Hint triggers a liveness check: if the channel silently dropped while the
// caller was away, a reconnect is attempted immediately instead of waiting
// for the next health tick.
func (h *RealtimeHandler) Hint(w http.ResponseWriter, r *http.Request) {
	if h.monitor != nil {
		h.monitor.OnLivenessHint(r.Context())
	}
	response.JSON(w, r, http.StatusAccepted, map[string]bool{"accepted": true})
}
