package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_SetGet(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("expected v, got %s", got)
	}
}

func TestMemoryStore_MissingKeyIsMiss(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(0)
	defer store.Close()

	if _, err := store.Get(context.Background(), "absent"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss, got %v", err)
	}
}

func TestMemoryStore_ExpiryEnforcedOnRead(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Entry is live before its TTL.
	if _, err := store.Get(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Advance past the TTL; the entry must not be returned even though the
	// janitor never ran.
	current = current.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after expiry, got %v", err)
	}
}

func TestMemoryStore_ZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	if err := store.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current = current.Add(24 * time.Hour)
	if _, err := store.Get(ctx, "k"); err != nil {
		t.Errorf("expected entry to survive, got %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after delete, got %v", err)
	}
}

func TestMemoryStore_KeysWithPrefixSkipsExpired(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	if err := store.Set(ctx, "position:driver:a", []byte("1"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Set(ctx, "position:driver:b", []byte("2"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Set(ctx, "track:delivery:c", []byte("3"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current = current.Add(30 * time.Minute)

	keys, err := store.KeysWithPrefix(ctx, "position:driver:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 1 || keys[0] != "position:driver:b" {
		t.Errorf("expected only live prefixed key, got %v", keys)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("abc"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first[0] = 'x'

	second, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(second) != "abc" {
		t.Errorf("stored value mutated through returned slice: %s", second)
	}
}
