// Package identity is the client for the managed authentication platform.
// The platform itself is an opaque collaborator; only its wire contract and
// error categories matter here.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/fault"
)

type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name"`
	CompanyID     string `json:"company_id"`
	Superadmin    bool   `json:"superadmin"`
	EmailVerified bool   `json:"email_verified"`
	Disabled      bool   `json:"disabled"`
}

type LoginResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         User   `json:"user"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for the identity provider. Requests carry a
// fixed timeout after which they are classified as network failures; outbound
// calls are traced via otelhttp.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// NewAuthenticatedClient builds a client whose requests carry the stored
// access token via AuthTransport: the token is attached automatically and a
// provider 401 triggers a single refresh-and-replay before surfacing.
func NewAuthenticatedClient(baseURL string, timeout time.Duration, source TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: NewAuthTransport(otelhttp.NewTransport(http.DefaultTransport), source),
		},
	}
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	err := c.post(ctx, "/v1/auth/login", map[string]string{"email": email, "password": password}, "", &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var out TokenPair
	err := c.post(ctx, "/v1/auth/refresh", map[string]string{"refresh_token": refreshToken}, "", &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.post(ctx, "/v1/auth/logout", map[string]string{"refresh_token": refreshToken}, "", nil)
}

// Me fetches the profile behind an access token. Callers normally reach this
// through the authenticated transport, which handles expired-token recovery.
func (c *Client) Me(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/auth/me", nil)
	if err != nil {
		return nil, err
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, readProviderMessage(resp.Body))
	}
	var out User
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fault.Wrap(fault.KindServer, "identity provider returned a malformed response", err)
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body any, accessToken string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, readProviderMessage(resp.Body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fault.Wrap(fault.KindServer, "identity provider returned a malformed response", err)
	}
	return nil
}

// classifyStatus maps provider status codes onto the shared taxonomy with a
// distinct caller-facing reason per category.
func classifyStatus(status int, providerMessage string) error {
	switch {
	case status == http.StatusUnauthorized:
		return fault.New(fault.KindCredentialInvalid, messageOr(providerMessage, "wrong email or password"))
	case status == http.StatusForbidden:
		return fault.New(fault.KindDenied, messageOr(providerMessage, "this account is not allowed to sign in here"))
	case status == http.StatusNotFound:
		return fault.New(fault.KindNotFound, messageOr(providerMessage, "no account exists for these details"))
	case status == http.StatusTooManyRequests:
		return fault.New(fault.KindRateLimited, "too many attempts, wait a moment before trying again")
	case status >= 500:
		return fault.New(fault.KindServer, "the sign-in service is having trouble, try again later")
	default:
		return fault.New(fault.KindServer, fmt.Sprintf("unexpected identity provider response (%d)", status))
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return fault.Wrap(fault.KindNetwork, "the sign-in service took too long to respond", err)
	}
	return fault.Wrap(fault.KindNetwork, "could not reach the sign-in service", err)
}

func readProviderMessage(r io.Reader) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
