package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/infrastructure/metrics"
)

const defaultCacheTTL = time.Hour

// Cache is the fingerprint-keyed render cache. Concurrent misses on the same
// fingerprint coalesce into a single render; a failed render stores nothing
// and every waiter sees the error.
type Cache struct {
	store repository.StateStore
	ttl   time.Duration
	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats is the shape returned by the admin cache endpoint.
type CacheStats struct {
	Entries  int   `json:"entries"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	TTLMS    int64 `json:"ttl_ms"`
	Remote   bool  `json:"remote"`
	SizeHint int64 `json:"size_hint_bytes"`
}

func NewCache(store repository.StateStore, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{store: store, ttl: ttl}
}

// Get returns a cached render body, or ErrKeyNotFound on miss.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrKeyNotFound) {
			c.misses.Add(1)
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss).Inc()
		} else {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError).Inc()
		}
		return "", err
	}
	c.hits.Add(1)
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit).Inc()
	return v, nil
}

// GetOrRender returns the cached body for key, or runs render exactly once
// across all concurrent callers of the same key and caches the result. The
// bool reports whether the value was served from cache.
func (c *Cache) GetOrRender(ctx context.Context, key string, render func(context.Context) (string, error)) (string, bool, error) {
	if v, err := c.Get(ctx, key); err == nil {
		return v, true, nil
	} else if !errors.Is(err, repository.ErrKeyNotFound) {
		// Store trouble is not fatal to the request; fall through to render.
		_ = err
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
		body, err := render(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, key, body); err != nil {
			// Serve the render even if caching it failed.
			return body, nil
		}
		return body, nil
	})
	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	}
	if err != nil {
		return "", false, err
	}
	return v.(string), false, nil
}

// Set stores a completed render under the fingerprint key.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	if err := c.store.Set(ctx, key, value, c.ttl); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError).Inc()
		return err
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess).Inc()
	return nil
}

// Delete removes one entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.store.Del(ctx, key); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusError).Inc()
		return err
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusSuccess).Inc()
	return nil
}

// Clear removes all cache entries and returns the count.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	n, err := c.store.Clear(ctx, cacheKeyPrefix+"*")
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpClear, metrics.CacheStatusError).Inc()
		return 0, err
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpClear, metrics.CacheStatusSuccess).Inc()
	return n, nil
}

// Stats returns entry count plus hit/miss counters since process start.
func (c *Cache) Stats(ctx context.Context) (*CacheStats, error) {
	keys, err := c.store.Keys(ctx, cacheKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	var size int64
	for _, k := range keys {
		if v, err := c.store.Get(ctx, k); err == nil {
			size += int64(len(v))
		}
	}
	return &CacheStats{
		Entries:  len(keys),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		TTLMS:    c.ttl.Milliseconds(),
		Remote:   c.store.Available(),
		SizeHint: size,
	}, nil
}

// Payload is the JSON envelope stored per fingerprint, so a cache hit can
// replay the full scrape response rather than just the HTML.
type Payload struct {
	Body     string   `json:"body"`
	Title    string   `json:"title,omitempty"`
	VideoURL string   `json:"video_url,omitempty"`
	APICalls []string `json:"apicalls,omitempty"`
	IsImage  bool     `json:"is_image,omitempty"`
}

// EncodePayload serializes a render for caching.
func EncodePayload(p Payload) (string, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

// DecodePayload parses a cached render. Values that predate the envelope
// decode as a bare body.
func DecodePayload(s string) Payload {
	var p Payload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return Payload{Body: s}
	}
	return p
}
