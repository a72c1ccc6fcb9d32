package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

// VideoListFilter narrows and pages the video listing.
type VideoListFilter struct {
	Status   string
	Search   string
	From     *time.Time
	To       *time.Time
	SortDesc bool
	Page     int
	PerPage  int
}

// VideoStats aggregates record counts for the dashboard.
type VideoStats struct {
	Total        int `json:"total"`
	Pending      int `json:"pending"`
	Uploading    int `json:"uploading"`
	Synced       int `json:"synced"`
	Error        int `json:"error"`
	Protected    int `json:"protected"`
	AutoImported int `json:"auto_imported"`
}

// VideoService owns the authoritative video state.
type VideoService struct {
	repo    repository.VideoRepository
	storage repository.ObjectStorage
	logger  *slog.Logger

	// addMu serializes the check-then-create in AddVideo so two concurrent
	// scrapes of the same asset cannot both insert.
	addMu sync.Mutex
}

func NewVideoService(repo repository.VideoRepository, storage repository.ObjectStorage, logger *slog.Logger) *VideoService {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoService{repo: repo, storage: storage, logger: logger}
}

// AddVideo registers a discovered asset. Re-adding a URL that already has a
// record (compared with the query string stripped) returns the existing
// record. New records whose storage key already exists in the object store
// are created directly as synced and flagged auto-imported.
func (s *VideoService) AddVideo(ctx context.Context, sourceURL, videoURL string, sources []model.VideoSource) (*model.VideoRecord, bool, error) {
	s.addMu.Lock()
	defer s.addMu.Unlock()

	existing, err := s.GetByVideoURL(ctx, videoURL)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrVideoNotFound) {
		return nil, false, err
	}

	rec, err := model.NewVideoRecord(sourceURL, videoURL, sources)
	if err != nil {
		return nil, false, err
	}

	if s.storage.IsConfigured() {
		key := s.storage.ObjectKey(rec.PrimaryVideoURL)
		if stat, err := s.storage.CheckObjectExists(ctx, key); err == nil && stat.Exists {
			rec.MarkSynced(s.storage.PublicURL(key), false)
			rec.AutoImported = true
			rec.DownloadSize = stat.Size
			s.logger.Info("video auto-imported from storage",
				slog.String("video_id", rec.ID),
				slog.String("key", key),
			)
		}
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("failed to create video record: %w", err)
	}
	return rec, true, nil
}

func (s *VideoService) GetByID(ctx context.Context, id string) (*model.VideoRecord, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByVideoURL finds the record whose media URL matches after query
// stripping. Returns ErrVideoNotFound when no record matches.
func (s *VideoService) GetByVideoURL(ctx context.Context, videoURL string) (*model.VideoRecord, error) {
	norm := model.NormalizeMediaURL(videoURL)
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range all {
		if model.NormalizeMediaURL(rec.VideoURL) == norm {
			return rec, nil
		}
	}
	return nil, repository.ErrVideoNotFound
}

// GetBySourceURL returns every record discovered on a given page.
func (s *VideoService) GetBySourceURL(ctx context.Context, sourceURL string) ([]*model.VideoRecord, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.VideoRecord
	for _, rec := range all {
		if rec.SourceURL == sourceURL {
			out = append(out, rec)
		}
	}
	return out, nil
}

// List applies filtering, sorting and pagination, returning the page plus the
// total matching count.
func (s *VideoService) List(ctx context.Context, f VideoListFilter) ([]*model.VideoRecord, int, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	filtered := all[:0:0]
	for _, rec := range all {
		if f.Status != "" && string(rec.Status) != f.Status {
			continue
		}
		if f.Search != "" {
			needle := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(rec.VideoURL), needle) &&
				!strings.Contains(strings.ToLower(rec.SourceURL), needle) {
				continue
			}
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

func (s *VideoService) Update(ctx context.Context, rec *model.VideoRecord) error {
	return s.repo.Update(ctx, rec)
}

// Delete removes a record, optionally deleting the stored object too.
func (s *VideoService) Delete(ctx context.Context, id string, deleteFromStorage bool) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if deleteFromStorage && rec.S3URL != "" && s.storage.IsConfigured() {
		if key, ok := s.storage.KeyFromURL(rec.S3URL); ok {
			if err := s.storage.DeleteObject(ctx, key); err != nil {
				s.logger.Warn("failed to delete storage object",
					slog.String("video_id", id),
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return s.repo.Delete(ctx, id)
}

// DeleteMany removes records by id, returning how many were deleted.
func (s *VideoService) DeleteMany(ctx context.Context, ids []string, deleteFromStorage bool) (int, error) {
	deleted := 0
	for _, id := range ids {
		if err := s.Delete(ctx, id, deleteFromStorage); err == nil {
			deleted++
		}
	}
	return deleted, nil
}

// DeleteBySourceURL removes every record discovered on a page.
func (s *VideoService) DeleteBySourceURL(ctx context.Context, sourceURL string, deleteFromStorage bool) (int, error) {
	recs, err := s.GetBySourceURL(ctx, sourceURL)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, rec := range recs {
		if err := s.Delete(ctx, rec.ID, deleteFromStorage); err == nil {
			deleted++
		}
	}
	return deleted, nil
}

// Stats aggregates record counts by status.
func (s *VideoService) Stats(ctx context.Context) (*VideoStats, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	st := &VideoStats{Total: len(all)}
	for _, rec := range all {
		switch rec.Status {
		case model.VideoStatusPending:
			st.Pending++
		case model.VideoStatusUploading:
			st.Uploading++
		case model.VideoStatusSynced:
			st.Synced++
		case model.VideoStatusError:
			st.Error++
		}
		if rec.IsProtected {
			st.Protected++
		}
		if rec.AutoImported {
			st.AutoImported++
		}
	}
	return st, nil
}
