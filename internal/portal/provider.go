package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/fault"
)

// VerifiedSession is what the challenge provider returns for a correct code.
type VerifiedSession struct {
	SubjectID    string    `json:"subject_id"`
	SubjectName  string    `json:"subject_name"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ChallengeProvider issues and verifies OTP challenges. Selection between
// the remote provider and the fixed-code one is a configuration decision
// made at wiring time, never a runtime environment check inside the flow.
type ChallengeProvider interface {
	Issue(ctx context.Context, phone string) (challengeID string, err error)
	Verify(ctx context.Context, phone, code, challengeID string) (*VerifiedSession, error)
}

// HTTPProvider talks to the managed OTP service.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (p *HTTPProvider) Issue(ctx context.Context, phone string) (string, error) {
	var out struct {
		ChallengeID string `json:"challenge_id"`
	}
	if err := p.post(ctx, "/v1/otp/issue", map[string]string{"phone": phone}, &out); err != nil {
		return "", err
	}
	return out.ChallengeID, nil
}

func (p *HTTPProvider) Verify(ctx context.Context, phone, code, challengeID string) (*VerifiedSession, error) {
	var out VerifiedSession
	body := map[string]string{"phone": phone, "code": code, "challenge_id": challengeID}
	if err := p.post(ctx, "/v1/otp/verify", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fault.Wrap(fault.KindNetwork, "could not reach the verification service", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fault.New(fault.KindRateLimited, "too many codes requested, wait before trying again")
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fault.New(fault.KindNotFound, "this code has expired, request a new one")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fault.New(fault.KindCredentialInvalid, "the code you entered is not correct")
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fault.New(fault.KindServer, "the verification service is having trouble, try again later")
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fault.Wrap(fault.KindServer, "the verification service returned a malformed response", err)
	}
	return nil
}

// FixedCodeProvider accepts a single configured code for every phone number.
// It exists for local development and automated tests; it is wired instead
// of, never alongside, the remote provider.
type FixedCodeProvider struct {
	code       string
	sessionTTL time.Duration

	mu     sync.Mutex
	issued map[string]string // phone -> newest challenge id
}

func NewFixedCodeProvider(code string, sessionTTL time.Duration) *FixedCodeProvider {
	return &FixedCodeProvider{
		code:       code,
		sessionTTL: sessionTTL,
		issued:     make(map[string]string),
	}
}

func (p *FixedCodeProvider) Issue(_ context.Context, phone string) (string, error) {
	id := uuid.NewString()
	p.mu.Lock()
	p.issued[phone] = id
	p.mu.Unlock()
	return id, nil
}

func (p *FixedCodeProvider) Verify(_ context.Context, phone, code, challengeID string) (*VerifiedSession, error) {
	p.mu.Lock()
	newest, ok := p.issued[phone]
	p.mu.Unlock()
	if !ok || newest != challengeID {
		return nil, fault.New(fault.KindNotFound, "this code has expired, request a new one")
	}
	if code != p.code {
		return nil, fault.New(fault.KindCredentialInvalid, "the code you entered is not correct")
	}
	p.mu.Lock()
	delete(p.issued, phone)
	p.mu.Unlock()
	return &VerifiedSession{
		SubjectID:    "dev-" + phone,
		SubjectName:  "Dev Client",
		SessionToken: uuid.NewString(),
		ExpiresAt:    time.Now().Add(p.sessionTTL),
	}, nil
}
