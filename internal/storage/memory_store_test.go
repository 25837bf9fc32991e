package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreOverwriteReplacesValue(t *testing.T) {
	store := NewMemoryStore("")
	ctx := context.Background()

	if err := store.Set(ctx, ChallengeKey("+2010000001"), []byte(`{"challenge_id":"old"}`), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, ChallengeKey("+2010000001"), []byte(`{"challenge_id":"new"}`), 0); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := store.Get(ctx, ChallengeKey("+2010000001"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"challenge_id":"new"}` {
		t.Fatalf("expected newest challenge only, got %s", got)
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	store := NewMemoryStore("")
	ctx := context.Background()

	if err := store.Set(ctx, KeyCredential, []byte(`{}`), time.Nanosecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := store.Get(ctx, KeyCredential); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired entry to be absent, got %v", err)
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore("")
	ctx := context.Background()

	payload := []byte(`{"access_token":"a1"}`)
	if err := store.Set(ctx, KeyCredential, payload, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	payload[2] = 'X'
	got, err := store.Get(ctx, KeyCredential)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"access_token":"a1"}` {
		t.Fatalf("stored value aliased caller buffer: %s", got)
	}
}
