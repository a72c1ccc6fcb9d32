// Package usecase implements the application services: request tracking,
// video lifecycle, the sync pipeline and storage reconciliation.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

// URLListFilter narrows and pages the URL listing.
type URLListFilter struct {
	Status   string
	Search   string
	From     *time.Time
	To       *time.Time
	SortDesc bool
	Page     int
	PerPage  int
}

// URLService tracks scrape requests through their lifecycle.
type URLService struct {
	repo   repository.URLRepository
	logger *slog.Logger
}

func NewURLService(repo repository.URLRepository, logger *slog.Logger) *URLService {
	if logger == nil {
		logger = slog.Default()
	}
	return &URLService{repo: repo, logger: logger}
}

// Create registers a new scrape request in the waiting state.
func (s *URLService) Create(ctx context.Context, rawURL string) (*model.URLRecord, error) {
	rec, err := model.NewURLRecord(rawURL)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create url record: %w", err)
	}
	return rec, nil
}

func (s *URLService) GetByID(ctx context.Context, id string) (*model.URLRecord, error) {
	return s.repo.GetByID(ctx, id)
}

// List applies status/search/date filtering, sorts by creation time and
// returns one page plus the total matching count.
func (s *URLService) List(ctx context.Context, f URLListFilter) ([]*model.URLRecord, int, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	filtered := all[:0:0]
	for _, rec := range all {
		if f.Status != "" && string(rec.Status) != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(rec.URL), strings.ToLower(f.Search)) {
			continue
		}
		if f.From != nil && rec.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && rec.CreatedAt.After(*f.To) {
			continue
		}
		filtered = append(filtered, rec)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if f.SortDesc {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		}
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	total := len(filtered)
	return paginate(filtered, f.Page, f.PerPage), total, nil
}

// MarkProcessing moves a waiting record into processing.
func (s *URLService) MarkProcessing(ctx context.Context, id string) (*model.URLRecord, error) {
	return s.mutate(ctx, id, func(rec *model.URLRecord) error {
		return rec.MarkProcessing()
	})
}

// Complete records a successful render.
func (s *URLService) Complete(ctx context.Context, id string, result *model.ScrapeResult, cacheKey string) (*model.URLRecord, error) {
	return s.mutate(ctx, id, func(rec *model.URLRecord) error {
		rec.CacheKey = cacheKey
		return rec.MarkDone(result)
	})
}

// Fail records a render failure.
func (s *URLService) Fail(ctx context.Context, id, msg string) (*model.URLRecord, error) {
	return s.mutate(ctx, id, func(rec *model.URLRecord) error {
		return rec.MarkError(msg)
	})
}

// Cancel succeeds only from waiting or processing.
func (s *URLService) Cancel(ctx context.Context, id string) (*model.URLRecord, error) {
	return s.mutate(ctx, id, func(rec *model.URLRecord) error {
		return rec.MarkCancelled()
	})
}

func (s *URLService) mutate(ctx context.Context, id string, fn func(*model.URLRecord) error) (*model.URLRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to update url record: %w", err)
	}
	return rec, nil
}

func (s *URLService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// DeleteMany removes records by id, returning how many existed.
func (s *URLService) DeleteMany(ctx context.Context, ids []string) (int, error) {
	deleted := 0
	for _, id := range ids {
		if err := s.repo.Delete(ctx, id); err == nil {
			deleted++
		}
	}
	return deleted, nil
}

// Recreate replaces a terminal record with a fresh waiting one for the same
// URL, used by rescrape.
func (s *URLService) Recreate(ctx context.Context, id string) (*model.URLRecord, error) {
	old, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return s.Create(ctx, old.URL)
}

// Stats aggregates record counts by status.
func (s *URLService) Stats(ctx context.Context) (map[string]int, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]int{"total": len(all)}
	for _, rec := range all {
		out[string(rec.Status)]++
	}
	return out, nil
}

func paginate[T any](items []T, page, perPage int) []T {
	if perPage <= 0 {
		return items
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(items) {
		return nil
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
