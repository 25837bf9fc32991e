package service

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// RefreshCoordinator enforces the single-flight invariant: at most one token
// refresh is in flight at any time. Callers that arrive while a refresh is
// pending block until it settles and share its outcome, so a burst of
// rejected requests produces exactly one call to the identity provider.
//
// The coordinator is an explicit dependency rather than package state so the
// invariant can be exercised in isolation and tests cannot leak in-flight
// refreshes into each other.
type RefreshCoordinator struct {
	group singleflight.Group
}

func NewRefreshCoordinator() *RefreshCoordinator {
	return &RefreshCoordinator{}
}

const refreshKey = "token-refresh"

// Refresh runs fn unless a refresh is already in flight, in which case the
// caller waits for the shared outcome. The shared call runs detached from any
// single caller's cancellation: one impatient caller must not fail the
// refresh for everyone queued behind it.
func (c *RefreshCoordinator) Refresh(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	detached := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(refreshKey, func() (any, error) {
		return fn(detached)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
