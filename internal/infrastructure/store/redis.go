package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

const pingInterval = 15 * time.Second

// RedisStore is the preferred remote backend. All keys are namespaced with a
// configurable prefix. Availability is tracked by a background ping loop and
// updated eagerly when a command fails with a connection-level error.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	available atomic.Bool

	stopCh   chan struct{}
	stopOnce func()
}

// NewRedisStore creates a store around an existing client and starts the
// availability monitor. The initial availability reflects a synchronous ping.
func NewRedisStore(ctx context.Context, client *redis.Client, prefix string) *RedisStore {
	stopCh := make(chan struct{})
	var once atomic.Bool
	s := &RedisStore{
		client: client,
		prefix: prefix,
		stopCh: stopCh,
		stopOnce: func() {
			if once.CompareAndSwap(false, true) {
				close(stopCh)
			}
		},
	}
	s.available.Store(client.Ping(ctx).Err() == nil)
	go s.monitor()
	return s
}

func (s *RedisStore) monitor() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			s.available.Store(s.client.Ping(ctx).Err() == nil)
			cancel()
		case <-s.stopCh:
			return
		}
	}
}

// Close stops the availability monitor. The underlying client is owned by the
// caller and is not closed here.
func (s *RedisStore) Close() {
	s.stopOnce()
}

func (s *RedisStore) Available() bool {
	return s.available.Load()
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// noteErr marks the backend unavailable on connection-level failures so the
// fallback store can stop preferring it before the next ping.
func (s *RedisStore) noteErr(err error) error {
	if err != nil && !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) {
		s.available.Store(false)
	}
	return err
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repository.ErrKeyNotFound
		}
		return "", fmt.Errorf("redis get: %w", s.noteErr(err))
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", s.noteErr(err))
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", s.noteErr(err))
	}
	return nil
}

func (s *RedisStore) HGet(ctx context.Context, hash, field string) (string, error) {
	v, err := s.client.HGet(ctx, s.key(hash), field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repository.ErrKeyNotFound
		}
		return "", fmt.Errorf("redis hget: %w", s.noteErr(err))
	}
	return v, nil
}

func (s *RedisStore) HSet(ctx context.Context, hash, field, value string) error {
	if err := s.client.HSet(ctx, s.key(hash), field, value).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", s.noteErr(err))
	}
	return nil
}

func (s *RedisStore) HDel(ctx context.Context, hash string, fields ...string) error {
	if err := s.client.HDel(ctx, s.key(hash), fields...).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", s.noteErr(err))
	}
	return nil
}

func (s *RedisStore) HGetAll(ctx context.Context, hash string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, s.key(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", s.noteErr(err))
	}
	return m, nil
}

// Keys walks the keyspace with SCAN rather than KEYS, which blocks the server
// on large stores.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.key(pattern), 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", s.noteErr(err))
	}
	return keys, nil
}

// Clear deletes matching keys in SCAN batches.
func (s *RedisStore) Clear(ctx context.Context, pattern string) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, s.key(pattern), 200).Iterator()
	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return err
		}
		n += len(batch)
		batch = batch[:0]
		return nil
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := flush(); err != nil {
				return n, fmt.Errorf("redis clear: %w", s.noteErr(err))
			}
		}
	}
	if err := iter.Err(); err != nil {
		return n, fmt.Errorf("redis scan: %w", s.noteErr(err))
	}
	if err := flush(); err != nil {
		return n, fmt.Errorf("redis clear: %w", s.noteErr(err))
	}
	return n, nil
}
