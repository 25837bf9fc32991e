package identity

import (
	"context"
	"io"
	"net/http"
)

// TokenSource supplies the current access token and performs a blocking
// refresh when the token is rejected. RefreshAccessToken must be single
// flight: concurrent callers share one refresh and settle with its outcome.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshAccessToken(ctx context.Context) (string, error)
}

// AuthTransport attaches the current access token to every outbound call and
// transparently recovers from exactly one failure class: a rejected access
// token. The call is replayed at most once; a second rejection propagates to
// the caller. Every other failure (forbidden, 5xx, timeout, network) passes
// through untouched.
type AuthTransport struct {
	Base   http.RoundTripper
	Source TokenSource
}

func NewAuthTransport(base http.RoundTripper, source TokenSource) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthTransport{Base: base, Source: source}
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	token, err := t.Source.AccessToken(ctx)
	if err != nil {
		token = ""
	}
	attempt := cloneRequest(req, token)
	resp, err := t.Base.RoundTrip(attempt)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	if req.Body != nil && req.GetBody == nil {
		// The body was consumed and cannot be rebuilt, so a replay would
		// send a truncated request. Surface the rejection instead.
		return resp, nil
	}

	newToken, refreshErr := t.Source.RefreshAccessToken(ctx)
	if refreshErr != nil {
		// Refresh failed; the source has already torn the session down and
		// signalled upstream. The caller sees the original rejection.
		return resp, nil
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	retry := cloneRequest(req, newToken)
	return t.Base.RoundTrip(retry)
}

func cloneRequest(req *http.Request, token string) *http.Request {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			out.Body = body
		}
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}
	return out
}
