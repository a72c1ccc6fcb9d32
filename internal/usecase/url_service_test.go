package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

func TestURLService_Lifecycle(t *testing.T) {
	svc := NewURLService(newMockURLRepository(), nil)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "https://example.com/page")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Status != model.ScrapeStatusWaiting {
		t.Errorf("status = %s, want waiting", rec.Status)
	}

	if _, err := svc.MarkProcessing(ctx, rec.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	done, err := svc.Complete(ctx, rec.ID, &model.ScrapeResult{HTMLLength: 42}, "cache:abc")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != model.ScrapeStatusDone || done.CacheKey != "cache:abc" {
		t.Errorf("record = %s cacheKey=%q", done.Status, done.CacheKey)
	}

	// Terminal records cannot be cancelled.
	if _, err := svc.Cancel(ctx, rec.ID); !errors.Is(err, model.ErrNotCancellable) {
		t.Errorf("expected ErrNotCancellable, got %v", err)
	}
}

func TestURLService_List(t *testing.T) {
	repo := newMockURLRepository()
	svc := NewURLService(repo, nil)
	ctx := context.Background()

	a, _ := svc.Create(ctx, "https://example.com/alpha")
	svc.Create(ctx, "https://example.com/beta")
	svc.Create(ctx, "https://other.example.net/gamma")

	svc.MarkProcessing(ctx, a.ID)
	svc.Fail(ctx, a.ID, "boom")

	tests := []struct {
		name      string
		filter    URLListFilter
		wantTotal int
		wantLen   int
	}{
		{
			name:      "no filter",
			wantTotal: 3,
			wantLen:   3,
		},
		{
			name:      "status filter",
			filter:    URLListFilter{Status: string(model.ScrapeStatusError)},
			wantTotal: 1,
			wantLen:   1,
		},
		{
			name:      "search filter",
			filter:    URLListFilter{Search: "example.com"},
			wantTotal: 2,
			wantLen:   2,
		},
		{
			name:      "pagination",
			filter:    URLListFilter{Page: 2, PerPage: 2},
			wantTotal: 3,
			wantLen:   1,
		},
		{
			name:      "page beyond range",
			filter:    URLListFilter{Page: 9, PerPage: 2},
			wantTotal: 3,
			wantLen:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, total, err := svc.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if total != tt.wantTotal || len(recs) != tt.wantLen {
				t.Errorf("total=%d len=%d, want %d/%d", total, len(recs), tt.wantTotal, tt.wantLen)
			}
		})
	}
}

func TestURLService_Recreate(t *testing.T) {
	svc := NewURLService(newMockURLRepository(), nil)
	ctx := context.Background()

	old, _ := svc.Create(ctx, "https://example.com/page")
	svc.MarkProcessing(ctx, old.ID)
	svc.Fail(ctx, old.ID, "boom")

	fresh, err := svc.Recreate(ctx, old.ID)
	if err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	if fresh.ID == old.ID {
		t.Error("expected a new record id")
	}
	if fresh.URL != old.URL || fresh.Status != model.ScrapeStatusWaiting {
		t.Errorf("fresh = %q %s", fresh.URL, fresh.Status)
	}
	if _, err := svc.GetByID(ctx, old.ID); !errors.Is(err, repository.ErrURLNotFound) {
		t.Errorf("old record must be gone, got %v", err)
	}
}

func TestURLService_Stats(t *testing.T) {
	svc := NewURLService(newMockURLRepository(), nil)
	ctx := context.Background()

	svc.Create(ctx, "https://example.com/a")
	b, _ := svc.Create(ctx, "https://example.com/b")
	svc.MarkProcessing(ctx, b.ID)
	svc.Complete(ctx, b.ID, nil, "")

	st, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st["total"] != 2 || st["waiting"] != 1 || st["done"] != 1 {
		t.Errorf("stats = %v", st)
	}
}
