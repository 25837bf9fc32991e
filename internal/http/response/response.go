package response

import (
	"encoding/json"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/fault"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
	Meta    meta        `json:"meta"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &apiError{Code: code, Message: message, Details: details}, Meta: buildMeta(r)})
}

// Fault renders a categorized error with its caller-facing reason, so the UI
// can present a specific message per failure kind instead of one generic
// "something went wrong".
func Fault(w http.ResponseWriter, r *http.Request, err error) {
	kind := fault.KindOf(err)
	status, code := statusFor(kind)
	Error(w, r, status, code, fault.Message(err), nil)
}

func statusFor(kind fault.Kind) (int, string) {
	switch kind {
	case fault.KindCredentialInvalid:
		return http.StatusUnauthorized, "CREDENTIAL_INVALID"
	case fault.KindRateLimited:
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case fault.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case fault.KindDenied:
		return http.StatusForbidden, "DENIED"
	case fault.KindNetwork:
		return http.StatusBadGateway, "UPSTREAM_UNREACHABLE"
	default:
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	}
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}
