package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

// FallbackStore composes the remote store with the in-process map: writes go
// to whichever backend is live, reads prefer remote and fall back silently on
// error. A remote failure degrades that single call; nothing is replicated
// retroactively once the remote comes back.
type FallbackStore struct {
	remote repository.StateStore // nil when Redis is disabled
	local  *MemoryStore
	logger *slog.Logger
}

var _ repository.StateStore = (*FallbackStore)(nil)

// NewFallbackStore creates the composite. remote may be nil.
func NewFallbackStore(remote repository.StateStore, local *MemoryStore, logger *slog.Logger) *FallbackStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackStore{remote: remote, local: local, logger: logger}
}

func (s *FallbackStore) Available() bool {
	return s.remote != nil && s.remote.Available()
}

// useRemote reports whether this call should go to the remote backend.
func (s *FallbackStore) useRemote() bool {
	return s.remote != nil && s.remote.Available()
}

func (s *FallbackStore) fellBack(op string, err error) {
	s.logger.Debug("state store falling back to memory",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

func (s *FallbackStore) Get(ctx context.Context, key string) (string, error) {
	if s.useRemote() {
		v, err := s.remote.Get(ctx, key)
		if err == nil || errors.Is(err, repository.ErrKeyNotFound) {
			return v, err
		}
		s.fellBack("get", err)
	}
	return s.local.Get(ctx, key)
}

func (s *FallbackStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if s.useRemote() {
		err := s.remote.Set(ctx, key, value, ttl)
		if err == nil {
			return nil
		}
		s.fellBack("set", err)
	}
	return s.local.Set(ctx, key, value, ttl)
}

func (s *FallbackStore) Del(ctx context.Context, key string) error {
	var remoteErr error
	if s.useRemote() {
		remoteErr = s.remote.Del(ctx, key)
		if remoteErr != nil {
			s.fellBack("del", remoteErr)
		}
	}
	// Always delete locally too so a stale fallback copy cannot resurface.
	return s.local.Del(ctx, key)
}

func (s *FallbackStore) HGet(ctx context.Context, hash, field string) (string, error) {
	if s.useRemote() {
		v, err := s.remote.HGet(ctx, hash, field)
		if err == nil || errors.Is(err, repository.ErrKeyNotFound) {
			return v, err
		}
		s.fellBack("hget", err)
	}
	return s.local.HGet(ctx, hash, field)
}

func (s *FallbackStore) HSet(ctx context.Context, hash, field, value string) error {
	if s.useRemote() {
		err := s.remote.HSet(ctx, hash, field, value)
		if err == nil {
			return nil
		}
		s.fellBack("hset", err)
	}
	return s.local.HSet(ctx, hash, field, value)
}

func (s *FallbackStore) HDel(ctx context.Context, hash string, fields ...string) error {
	if s.useRemote() {
		if err := s.remote.HDel(ctx, hash, fields...); err != nil {
			s.fellBack("hdel", err)
		}
	}
	return s.local.HDel(ctx, hash, fields...)
}

func (s *FallbackStore) HGetAll(ctx context.Context, hash string) (map[string]string, error) {
	if s.useRemote() {
		m, err := s.remote.HGetAll(ctx, hash)
		if err == nil {
			return m, nil
		}
		s.fellBack("hgetall", err)
	}
	return s.local.HGetAll(ctx, hash)
}

func (s *FallbackStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if s.useRemote() {
		keys, err := s.remote.Keys(ctx, pattern)
		if err == nil {
			return keys, nil
		}
		s.fellBack("keys", err)
	}
	return s.local.Keys(ctx, pattern)
}

func (s *FallbackStore) Clear(ctx context.Context, pattern string) (int, error) {
	total := 0
	if s.useRemote() {
		n, err := s.remote.Clear(ctx, pattern)
		if err != nil {
			s.fellBack("clear", err)
		}
		total += n
	}
	n, err := s.local.Clear(ctx, pattern)
	total += n
	return total, err
}
