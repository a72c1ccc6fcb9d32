package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

// flakyStore wraps a MemoryStore and fails every call when down is set,
// standing in for a Redis backend that lost its connection.
type flakyStore struct {
	*MemoryStore
	down bool
}

var errRemoteDown = errors.New("connection refused")

func (f *flakyStore) Available() bool { return !f.down }

func (f *flakyStore) Get(ctx context.Context, key string) (string, error) {
	if f.down {
		return "", errRemoteDown
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.down {
		return errRemoteDown
	}
	return f.MemoryStore.Set(ctx, key, value, ttl)
}

func TestFallbackStore_NilRemote(t *testing.T) {
	local := NewMemoryStore()
	defer local.Close()
	s := NewFallbackStore(nil, local, nil)
	ctx := context.Background()

	if s.Available() {
		t.Error("expected Available to be false with no remote")
	}
	if err := s.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := s.Get(ctx, "k"); err != nil || v != "v" {
		t.Errorf("Get = %q, %v", v, err)
	}
}

func TestFallbackStore_PrefersRemote(t *testing.T) {
	remote := &flakyStore{MemoryStore: NewMemoryStore()}
	defer remote.MemoryStore.Close()
	local := NewMemoryStore()
	defer local.Close()
	s := NewFallbackStore(remote, local, nil)
	ctx := context.Background()

	if err := s.Set(ctx, "k", "remote-value", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// The write landed remotely, not locally.
	if _, err := local.Get(ctx, "k"); !errors.Is(err, repository.ErrKeyNotFound) {
		t.Error("expected local store to be untouched while remote is up")
	}
	if v, _ := s.Get(ctx, "k"); v != "remote-value" {
		t.Errorf("Get = %q, want remote-value", v)
	}
}

func TestFallbackStore_FallsBackWhenRemoteDown(t *testing.T) {
	remote := &flakyStore{MemoryStore: NewMemoryStore(), down: true}
	defer remote.MemoryStore.Close()
	local := NewMemoryStore()
	defer local.Close()
	s := NewFallbackStore(remote, local, nil)
	ctx := context.Background()

	if err := s.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set should succeed via local fallback: %v", err)
	}
	if v, err := s.Get(ctx, "k"); err != nil || v != "v" {
		t.Errorf("Get = %q, %v", v, err)
	}
	if s.Available() {
		t.Error("expected Available false while remote is down")
	}
}

func TestFallbackStore_RemoteMissDoesNotFallBack(t *testing.T) {
	remote := &flakyStore{MemoryStore: NewMemoryStore()}
	defer remote.MemoryStore.Close()
	local := NewMemoryStore()
	defer local.Close()
	s := NewFallbackStore(remote, local, nil)
	ctx := context.Background()

	// A stale local copy must not shadow a genuine remote miss.
	local.Set(ctx, "k", "stale", 0)

	if _, err := s.Get(ctx, "k"); !errors.Is(err, repository.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound from remote, got %v", err)
	}
}

func TestFallbackStore_DelHitsBothBackends(t *testing.T) {
	remote := &flakyStore{MemoryStore: NewMemoryStore()}
	defer remote.MemoryStore.Close()
	local := NewMemoryStore()
	defer local.Close()
	s := NewFallbackStore(remote, local, nil)
	ctx := context.Background()

	remote.MemoryStore.Set(ctx, "k", "v", 0)
	local.Set(ctx, "k", "v", 0)

	if err := s.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := remote.MemoryStore.Get(ctx, "k"); !errors.Is(err, repository.ErrKeyNotFound) {
		t.Error("expected remote copy deleted")
	}
	if _, err := local.Get(ctx, "k"); !errors.Is(err, repository.ErrKeyNotFound) {
		t.Error("expected local copy deleted")
	}
}

func TestFallbackStore_ClearSumsBothBackends(t *testing.T) {
	remote := &flakyStore{MemoryStore: NewMemoryStore()}
	defer remote.MemoryStore.Close()
	local := NewMemoryStore()
	defer local.Close()
	s := NewFallbackStore(remote, local, nil)
	ctx := context.Background()

	remote.MemoryStore.Set(ctx, "cache:a", "1", 0)
	local.Set(ctx, "cache:b", "2", 0)

	n, err := s.Clear(ctx, "cache:*")
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 cleared across backends, got %d", n)
	}
}
