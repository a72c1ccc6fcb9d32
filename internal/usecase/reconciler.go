package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

const (
	inventoryTTL = 5 * time.Minute
	listPageSize = 1000
)

// OrphanFile is a stored object with no matching tracker record.
type OrphanFile struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
	VideoURL    string `json:"video_url,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
	UploadedAt  string `json:"uploaded_at,omitempty"`
}

// OutOfSyncEntry is a record matched to an object by metadata whose storage
// URL disagrees with the tracker.
type OutOfSyncEntry struct {
	VideoID    string `json:"video_id"`
	Key        string `json:"key"`
	TrackerURL string `json:"tracker_url"`
	StorageURL string `json:"storage_url"`
}

// ReconcileReport is the outcome of one reconciliation pass.
type ReconcileReport struct {
	OrphanFiles []OrphanFile     `json:"orphan_files"`
	OutOfSync   []OutOfSyncEntry `json:"out_of_sync"`
	MissingInS3 []string         `json:"missing_in_s3"`
	Synced      int              `json:"synced"`
	Pending     int              `json:"pending"`
	ScannedAt   time.Time        `json:"scanned_at"`
	ObjectCount int              `json:"object_count"`
}

// Reconciler compares the object store against the video tracker.
type Reconciler struct {
	videos  *VideoService
	storage repository.ObjectStorage
	logger  *slog.Logger

	mu        sync.Mutex
	scanning  bool
	inventory map[string]*repository.ObjectMetadata
	scannedAt time.Time
}

func NewReconciler(videos *VideoService, storage repository.ObjectStorage, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{videos: videos, storage: storage, logger: logger}
}

// ScanStorage walks the full bucket with pagination and caches the per-object
// metadata for five minutes. Only one scan runs at a time; a second caller
// gets ErrScanInProgress instead of waiting.
func (r *Reconciler) ScanStorage(ctx context.Context, forceRefresh bool) (map[string]*repository.ObjectMetadata, error) {
	if !r.storage.IsConfigured() {
		return nil, repository.ErrStorageNotConfigured
	}

	r.mu.Lock()
	if r.inventory != nil && !forceRefresh && time.Since(r.scannedAt) < inventoryTTL {
		inv := r.inventory
		r.mu.Unlock()
		return inv, nil
	}
	if r.scanning {
		r.mu.Unlock()
		return nil, repository.ErrScanInProgress
	}
	r.scanning = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.scanning = false
		r.mu.Unlock()
	}()

	inventory := make(map[string]*repository.ObjectMetadata)
	token := ""
	for {
		page, err := r.storage.ListObjects(ctx, token, "", listPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list storage objects: %w", err)
		}
		for _, obj := range page.Objects {
			meta, err := r.storage.GetObjectMetadata(ctx, obj.Key)
			if err != nil {
				// Keep the entry with what the listing gave us.
				meta = &repository.ObjectMetadata{Key: obj.Key, Size: obj.Size}
			}
			inventory[obj.Key] = meta
		}
		if !page.Truncated {
			break
		}
		token = page.NextToken
	}

	r.mu.Lock()
	r.inventory = inventory
	r.scannedAt = time.Now()
	r.mu.Unlock()

	r.logger.Info("storage scan complete", slog.Int("objects", len(inventory)))
	return inventory, nil
}

// Reconcile buckets every object and record into orphaned, out-of-sync,
// missing, synced or pending.
func (r *Reconciler) Reconcile(ctx context.Context, forceRefresh bool) (*ReconcileReport, error) {
	inventory, err := r.ScanStorage(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}

	records, _, err := r.videos.List(ctx, VideoListFilter{})
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		ScannedAt:   r.scanTime(),
		ObjectCount: len(inventory),
	}

	// Index the tracker by storage key and by media URL.
	byKey := make(map[string]*model.VideoRecord)
	byVideoURL := make(map[string]*model.VideoRecord)
	for _, rec := range records {
		if rec.S3URL != "" {
			if key, ok := r.storage.KeyFromURL(rec.S3URL); ok {
				byKey[key] = rec
			}
		}
		byVideoURL[model.NormalizeMediaURL(rec.VideoURL)] = rec
	}

	for key, meta := range inventory {
		if _, ok := byKey[key]; ok {
			continue
		}
		if meta.VideoURL != "" {
			if rec, ok := byVideoURL[model.NormalizeMediaURL(meta.VideoURL)]; ok {
				report.OutOfSync = append(report.OutOfSync, OutOfSyncEntry{
					VideoID:    rec.ID,
					Key:        key,
					TrackerURL: rec.S3URL,
					StorageURL: r.storage.PublicURL(key),
				})
				continue
			}
		}
		report.OrphanFiles = append(report.OrphanFiles, OrphanFile{
			Key:         key,
			Size:        meta.Size,
			ContentType: meta.ContentType,
			VideoURL:    meta.VideoURL,
			SourceURL:   meta.SourceURL,
			UploadedAt:  meta.UploadedAt,
		})
	}

	for _, rec := range records {
		switch rec.Status {
		case model.VideoStatusSynced:
			key, ok := r.storage.KeyFromURL(rec.S3URL)
			if !ok {
				continue
			}
			if _, present := inventory[key]; present {
				report.Synced++
			} else {
				report.MissingInS3 = append(report.MissingInS3, rec.ID)
			}
		case model.VideoStatusPending:
			report.Pending++
		}
	}
	return report, nil
}

func (r *Reconciler) scanTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scannedAt
}

// Invalidate drops the cached inventory. Called after any mutating operation.
func (r *Reconciler) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inventory = nil
	r.scannedAt = time.Time{}
}

// ImportOrphan creates a synced record from a stored object's metadata.
func (r *Reconciler) ImportOrphan(ctx context.Context, key string) (*model.VideoRecord, error) {
	if !r.storage.IsConfigured() {
		return nil, repository.ErrStorageNotConfigured
	}
	meta, err := r.storage.GetObjectMetadata(ctx, key)
	if err != nil {
		return nil, err
	}

	videoURL := meta.VideoURL
	if videoURL == "" {
		// No recorded origin; the public URL is the best stand-in.
		videoURL = r.storage.PublicURL(key)
	}

	rec, err := model.NewVideoRecord(meta.SourceURL, videoURL, nil)
	if err != nil {
		return nil, err
	}
	rec.MarkSynced(r.storage.PublicURL(key), false)
	rec.AutoImported = true
	rec.DownloadSize = meta.Size

	if err := r.videos.Update(ctx, rec); err != nil {
		return nil, err
	}
	r.Invalidate()
	r.logger.Info("orphan imported",
		slog.String("key", key),
		slog.String("video_id", rec.ID),
	)
	return rec, nil
}

// DeleteOrphan removes a stored object that has no tracker record.
func (r *Reconciler) DeleteOrphan(ctx context.Context, key string) error {
	if !r.storage.IsConfigured() {
		return repository.ErrStorageNotConfigured
	}
	if err := r.storage.DeleteObject(ctx, key); err != nil {
		return err
	}
	r.Invalidate()
	return nil
}

// ImportOrphans imports a set of keys, returning how many succeeded.
func (r *Reconciler) ImportOrphans(ctx context.Context, keys []string) (int, error) {
	imported := 0
	for _, key := range keys {
		if _, err := r.ImportOrphan(ctx, key); err == nil {
			imported++
		}
	}
	return imported, nil
}

// DeleteOrphans deletes a set of keys, returning how many succeeded.
func (r *Reconciler) DeleteOrphans(ctx context.Context, keys []string) (int, error) {
	deleted := 0
	for _, key := range keys {
		if err := r.DeleteOrphan(ctx, key); err == nil {
			deleted++
		}
	}
	return deleted, nil
}

// FixMissingInS3 resets records whose object vanished back to pending so the
// next sync re-uploads them.
func (r *Reconciler) FixMissingInS3(ctx context.Context, ids []string) (int, error) {
	fixed := 0
	for _, id := range ids {
		rec, err := r.videos.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if err := rec.ResetForReupload(false); err != nil {
			continue
		}
		rec.Error = "storage object missing, reset for re-upload"
		if err := r.videos.Update(ctx, rec); err != nil {
			continue
		}
		fixed++
	}
	if fixed > 0 {
		r.Invalidate()
	}
	return fixed, nil
}
