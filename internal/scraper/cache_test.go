package scraper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/infrastructure/store"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return NewCache(s, time.Hour)
}

func TestCache_GetOrRender_MissThenHit(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	renders := 0

	render := func(context.Context) (string, error) {
		renders++
		return "<html>rendered</html>", nil
	}

	body, hit, err := c.GetOrRender(ctx, "cache:k", render)
	if err != nil {
		t.Fatalf("GetOrRender: %v", err)
	}
	if hit {
		t.Error("first call must be a miss")
	}
	if body != "<html>rendered</html>" {
		t.Errorf("body = %q", body)
	}

	body, hit, err = c.GetOrRender(ctx, "cache:k", render)
	if err != nil || !hit {
		t.Errorf("second call should hit: hit=%v err=%v", hit, err)
	}
	if body != "<html>rendered</html>" || renders != 1 {
		t.Errorf("body = %q, renders = %d", body, renders)
	}
}

func TestCache_GetOrRender_CoalescesConcurrentMisses(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var renders atomic.Int32
	gate := make(chan struct{})
	render := func(context.Context) (string, error) {
		renders.Add(1)
		<-gate
		return "body", nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, _, err := c.GetOrRender(ctx, "cache:shared", render)
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
			}
			results[i] = body
		}(i)
	}

	// Let every goroutine reach the singleflight gate before releasing.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if n := renders.Load(); n != 1 {
		t.Errorf("expected exactly one render, got %d", n)
	}
	for i, body := range results {
		if body != "body" {
			t.Errorf("caller %d got %q", i, body)
		}
	}
}

func TestCache_GetOrRender_FailureStoresNothing(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	renderErr := errors.New("navigation failed")

	_, _, err := c.GetOrRender(ctx, "cache:bad", func(context.Context) (string, error) {
		return "", renderErr
	})
	if !errors.Is(err, renderErr) {
		t.Fatalf("expected render error, got %v", err)
	}

	if _, err := c.Get(ctx, "cache:bad"); !errors.Is(err, repository.ErrKeyNotFound) {
		t.Errorf("failed render must not be cached, got %v", err)
	}
}

func TestCache_ClearAndStats(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "cache:a", "1")
	c.Set(ctx, "cache:b", "22")
	c.Get(ctx, "cache:a")
	c.Get(ctx, "cache:missing")

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 2 || stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.SizeHint != 3 {
		t.Errorf("size hint = %d, want 3", stats.SizeHint)
	}

	n, err := c.Clear(ctx)
	if err != nil || n != 2 {
		t.Errorf("Clear = %d, %v", n, err)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	enc, err := EncodePayload(Payload{
		Body:     "<html></html>",
		Title:    "Example",
		VideoURL: "https://cdn.example.com/v.mp4",
		APICalls: []string{"https://example.com/api/feed"},
	})
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	p := DecodePayload(enc)
	if p.Title != "Example" || p.VideoURL != "https://cdn.example.com/v.mp4" || len(p.APICalls) != 1 {
		t.Errorf("decoded payload = %+v", p)
	}
}

func TestDecodePayload_BareBody(t *testing.T) {
	p := DecodePayload("<html>legacy entry</html>")
	if p.Body != "<html>legacy entry</html>" || p.VideoURL != "" {
		t.Errorf("legacy value must decode as bare body, got %+v", p)
	}
}
