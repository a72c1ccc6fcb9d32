package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/downloader"
	"github.com/hszk-dev/mediagate/internal/events"
)

var (
	ErrSyncInProgress = errors.New("sync already in progress for this video")
	ErrAlreadySynced  = errors.New("video is already synced")
)

// protectedMarkers classify download failures caused by the content itself
// rather than by transient conditions.
var protectedMarkers = []string{
	"not a valid video",
	"obfuscated",
	"protected",
}

const protectedMessage = "Video appears to be protected or obfuscated and cannot be downloaded"

// Enqueuer pushes a video into the upload queue. Batch operations go through
// the queue when one is attached so they respect its concurrency limits.
type Enqueuer func(videoID string, priority int, title, sourceURL, videoURL string) error

// MediaDownloader fetches a media URL to a local file.
type MediaDownloader interface {
	Download(ctx context.Context, mediaURL string, isHLS bool, referer string, progress downloader.ProgressFunc) (*downloader.Result, error)
}

// SyncService drives the download-validate-upload pipeline for one video at
// a time per id.
type SyncService struct {
	videos  *VideoService
	storage repository.ObjectStorage
	dl      MediaDownloader
	bus     *events.Bus
	logger  *slog.Logger

	maxRetries int

	mu       sync.Mutex
	inFlight map[string]bool
	enqueue  Enqueuer
}

func NewSyncService(videos *VideoService, storage repository.ObjectStorage, dl MediaDownloader, bus *events.Bus, maxRetries int, logger *slog.Logger) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &SyncService{
		videos:     videos,
		storage:    storage,
		dl:         dl,
		bus:        bus,
		logger:     logger,
		maxRetries: maxRetries,
		inFlight:   make(map[string]bool),
	}
}

// SetEnqueuer attaches the upload queue; batch operations enqueue instead of
// syncing inline once set.
func (s *SyncService) SetEnqueuer(fn Enqueuer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueue = fn
}

func (s *SyncService) acquire(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[id] {
		return ErrSyncInProgress
	}
	s.inFlight[id] = true
	return nil
}

func (s *SyncService) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// SyncVideo runs the full pipeline for one record: HEAD dedup, download (or
// local reuse), upload, terminal state write. Progress is reported through
// the event bus.
func (s *SyncService) SyncVideo(ctx context.Context, id string) (*model.VideoRecord, error) {
	if err := s.acquire(id); err != nil {
		return nil, err
	}
	defer s.release(id)

	rec, err := s.videos.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == model.VideoStatusSynced && !rec.ForceReupload {
		return rec, ErrAlreadySynced
	}
	if !s.storage.IsConfigured() {
		return nil, repository.ErrStorageNotConfigured
	}

	key := s.storage.ObjectKey(rec.PrimaryVideoURL)

	// Pre-flight dedup: someone may already have uploaded this asset.
	if !rec.ForceReupload {
		if stat, err := s.storage.CheckObjectExists(ctx, key); err == nil && stat.Exists {
			rec.MarkSynced(s.storage.PublicURL(key), true)
			if err := s.videos.Update(ctx, rec); err != nil {
				return nil, err
			}
			s.logger.Info("upload skipped, object already in storage",
				slog.String("video_id", id),
				slog.String("key", key),
			)
			return rec, nil
		}
	}

	rec.MarkUploading()
	if err := s.videos.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.bus.State(events.UploadStart, map[string]any{"video_id": id, "url": rec.VideoURL})

	path, size, contentType, err := s.obtainFile(ctx, rec)
	if err != nil {
		return s.failSync(ctx, rec, err)
	}

	s3URL, err := s.storage.UploadFromFile(ctx, path, key, contentType, repository.UploadMetadata{
		VideoURL:  rec.VideoURL,
		SourceURL: rec.SourceURL,
	})
	os.Remove(path)
	if err != nil {
		return s.failSync(ctx, rec, fmt.Errorf("failed to upload: %w", err))
	}

	rec.MarkSynced(s3URL, false)
	rec.ClearDownloadCache()
	if err := s.videos.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.bus.State(events.UploadComplete, map[string]any{
		"video_id": id,
		"s3_url":   s3URL,
		"size":     size,
	})
	s.logger.Info("video synced",
		slog.String("video_id", id),
		slog.String("key", key),
		slog.Int64("size", size),
	)
	return rec, nil
}

// obtainFile reuses a still-present local download or runs the downloader
// against each source in order until one succeeds.
func (s *SyncService) obtainFile(ctx context.Context, rec *model.VideoRecord) (string, int64, string, error) {
	if rec.DownloadPath != "" {
		if fi, err := os.Stat(rec.DownloadPath); err == nil {
			s.logger.Info("reusing local download",
				slog.String("video_id", rec.ID),
				slog.String("path", rec.DownloadPath),
			)
			return rec.DownloadPath, fi.Size(), rec.DownloadContentType, nil
		}
		// The file vanished; fall through to a fresh download.
		rec.ClearDownloadCache()
	}

	sources := rec.VideoSources
	if len(sources) == 0 {
		sources = []model.VideoSource{{URL: rec.VideoURL}}
	}

	progress := func(downloaded, total int64) {
		s.bus.Progress(events.DownloadProgress, map[string]any{
			"video_id":   rec.ID,
			"downloaded": downloaded,
			"total":      total,
		})
	}

	var lastErr error
	for i, src := range sources {
		res, err := s.dl.Download(ctx, src.URL, src.IsHLS, rec.SourceURL, progress)
		if err == nil {
			rec.SetDownloaded(res.Path, res.Size, res.ContentType, i)
			return res.Path, res.Size, res.ContentType, nil
		}
		lastErr = err
		rec.RecordFailedAttempt(i, rec.RetryCount+1, src.URL, err.Error())
		s.logger.Warn("source download failed",
			slog.String("video_id", rec.ID),
			slog.Int("source_index", i),
			slog.String("error", err.Error()),
		)
		if ctx.Err() != nil {
			return "", 0, "", ctx.Err()
		}
	}
	return "", 0, "", fmt.Errorf("all sources failed: %w", lastErr)
}

// failSync classifies and records a pipeline failure. Protected content gets
// a fixed user-facing message; every error path clears the download cache so
// a retry starts clean.
func (s *SyncService) failSync(ctx context.Context, rec *model.VideoRecord, cause error) (*model.VideoRecord, error) {
	msg := cause.Error()
	if isProtectedError(msg) {
		rec.IsProtected = true
		msg = protectedMessage
	}
	rec.MarkError(msg)
	if err := s.videos.Update(ctx, rec); err != nil {
		s.logger.Error("failed to persist sync error",
			slog.String("video_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
	s.bus.State(events.UploadError, map[string]any{
		"video_id": rec.ID,
		"error":    msg,
	})
	return rec, cause
}

func isProtectedError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range protectedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ReuploadVideo resets a synced, errored or stuck record and syncs it again.
// force bypasses the HEAD dedup and deletes the existing object first.
func (s *SyncService) ReuploadVideo(ctx context.Context, id string, force bool) (*model.VideoRecord, error) {
	rec, err := s.videos.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if force && rec.S3URL != "" && s.storage.IsConfigured() {
		if key, ok := s.storage.KeyFromURL(rec.S3URL); ok {
			if err := s.storage.DeleteObject(ctx, key); err != nil {
				s.logger.Warn("failed to delete existing object before reupload",
					slog.String("video_id", id),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if err := rec.ResetForReupload(force); err != nil {
		return nil, err
	}
	if err := s.videos.Update(ctx, rec); err != nil {
		return nil, err
	}
	return s.SyncVideo(ctx, id)
}

// ResetStuckUploads returns records stuck in uploading longer than the
// threshold to pending.
func (s *SyncService) ResetStuckUploads(ctx context.Context, threshold time.Duration) (int, error) {
	all, _, err := s.videos.List(ctx, VideoListFilter{Status: string(model.VideoStatusUploading)})
	if err != nil {
		return 0, err
	}
	reset := 0
	for _, rec := range all {
		if rec.UploadingAt == nil || time.Since(*rec.UploadingAt) < threshold {
			continue
		}
		rec.Status = model.VideoStatusPending
		rec.UploadingAt = nil
		rec.Error = fmt.Sprintf("upload reset after being stuck for more than %s", threshold)
		rec.ClearDownloadCache()
		if err := s.videos.Update(ctx, rec); err != nil {
			s.logger.Warn("failed to reset stuck upload",
				slog.String("video_id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		reset++
	}
	return reset, nil
}

// RetryAllFailed re-runs errored records, skipping protected content when
// asked and records that exhausted their retry budget.
func (s *SyncService) RetryAllFailed(ctx context.Context, skipProtected bool) (int, error) {
	all, _, err := s.videos.List(ctx, VideoListFilter{Status: string(model.VideoStatusError)})
	if err != nil {
		return 0, err
	}
	retried := 0
	for _, rec := range all {
		if skipProtected && rec.IsProtected {
			continue
		}
		if rec.RetryCount >= s.maxRetries {
			continue
		}
		rec.RetryCount++
		rec.ClearDownloadCache()
		if err := s.videos.Update(ctx, rec); err != nil {
			continue
		}
		s.dispatch(ctx, rec, 0)
		retried++
	}
	return retried, nil
}

// SyncAllPending dispatches every pending record.
func (s *SyncService) SyncAllPending(ctx context.Context) (int, error) {
	all, _, err := s.videos.List(ctx, VideoListFilter{Status: string(model.VideoStatusPending)})
	if err != nil {
		return 0, err
	}
	for _, rec := range all {
		s.dispatch(ctx, rec, 0)
	}
	return len(all), nil
}

// SyncMany dispatches a specific set of records.
func (s *SyncService) SyncMany(ctx context.Context, ids []string, priority int) (int, error) {
	dispatched := 0
	for _, id := range ids {
		rec, err := s.videos.GetByID(ctx, id)
		if err != nil {
			continue
		}
		s.dispatch(ctx, rec, priority)
		dispatched++
	}
	return dispatched, nil
}

// ReuploadMany resets then dispatches a set of records.
func (s *SyncService) ReuploadMany(ctx context.Context, ids []string, force bool) (int, error) {
	dispatched := 0
	for _, id := range ids {
		rec, err := s.videos.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if err := rec.ResetForReupload(force); err != nil {
			continue
		}
		if err := s.videos.Update(ctx, rec); err != nil {
			continue
		}
		s.dispatch(ctx, rec, 0)
		dispatched++
	}
	return dispatched, nil
}

// dispatch hands a record to the upload queue when one is attached, otherwise
// syncs inline.
func (s *SyncService) dispatch(ctx context.Context, rec *model.VideoRecord, priority int) {
	s.mu.Lock()
	enqueue := s.enqueue
	s.mu.Unlock()

	if enqueue != nil {
		if err := enqueue(rec.ID, priority, "", rec.SourceURL, rec.VideoURL); err != nil {
			s.logger.Warn("failed to enqueue video",
				slog.String("video_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if _, err := s.SyncVideo(ctx, rec.ID); err != nil && !errors.Is(err, ErrAlreadySynced) {
		s.logger.Warn("inline sync failed",
			slog.String("video_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}
