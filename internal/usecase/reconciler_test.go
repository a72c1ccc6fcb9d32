package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

// inventoryStorage builds a mockObjectStorage serving a fixed set of objects
// with metadata, the way a scanned bucket would look.
func inventoryStorage(objects map[string]*repository.ObjectMetadata) *mockObjectStorage {
	storage := newMockObjectStorage()
	storage.listObjectsFunc = func(ctx context.Context, token, prefix string, maxKeys int) (*repository.ObjectPage, error) {
		page := &repository.ObjectPage{}
		for key, meta := range objects {
			page.Objects = append(page.Objects, repository.ObjectEntry{Key: key, Size: meta.Size})
		}
		return page, nil
	}
	storage.getObjectMetadata = func(ctx context.Context, key string) (*repository.ObjectMetadata, error) {
		meta, ok := objects[key]
		if !ok {
			return nil, repository.ErrObjectNotFound
		}
		return meta, nil
	}
	return storage
}

func TestReconciler_Reconcile(t *testing.T) {
	objects := map[string]*repository.ObjectMetadata{
		"videos/synced.mp4": {
			Key:      "videos/synced.mp4",
			Size:     100,
			VideoURL: "https://cdn.example.com/synced.mp4",
		},
		"videos/orphan.mp4": {
			Key:       "videos/orphan.mp4",
			Size:      200,
			VideoURL:  "https://cdn.example.com/orphan.mp4",
			SourceURL: "https://example.com/orphan-page",
		},
		"videos/drifted.mp4": {
			Key:      "videos/drifted.mp4",
			Size:     300,
			VideoURL: "https://cdn.example.com/drifted.mp4",
		},
	}
	storage := inventoryStorage(objects)
	repo := newMockVideoRepository()
	videos := NewVideoService(repo, storage, nil)
	r := NewReconciler(videos, storage, nil)
	ctx := context.Background()

	// Synced record pointing at an existing object.
	synced, _ := model.NewVideoRecord("page", "https://cdn.example.com/synced.mp4", nil)
	synced.MarkSynced(storage.PublicURL("videos/synced.mp4"), false)
	repo.Create(ctx, synced)

	// Synced record whose object vanished.
	missing, _ := model.NewVideoRecord("page", "https://cdn.example.com/missing.mp4", nil)
	missing.MarkSynced(storage.PublicURL("videos/missing.mp4"), false)
	repo.Create(ctx, missing)

	// Record matching drifted.mp4 only by media URL; tracker points elsewhere.
	drifted, _ := model.NewVideoRecord("page", "https://cdn.example.com/drifted.mp4", nil)
	drifted.MarkSynced("https://old-store.example.org/drifted.mp4", false)
	repo.Create(ctx, drifted)

	// Plain pending record.
	pending, _ := model.NewVideoRecord("page", "https://cdn.example.com/pending.mp4", nil)
	repo.Create(ctx, pending)

	report, err := r.Reconcile(ctx, true)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if report.ObjectCount != 3 {
		t.Errorf("ObjectCount = %d, want 3", report.ObjectCount)
	}
	if len(report.OrphanFiles) != 1 || report.OrphanFiles[0].Key != "videos/orphan.mp4" {
		t.Errorf("orphans = %+v", report.OrphanFiles)
	}
	if len(report.OutOfSync) != 1 || report.OutOfSync[0].VideoID != drifted.ID {
		t.Errorf("out of sync = %+v", report.OutOfSync)
	}
	if len(report.MissingInS3) != 1 || report.MissingInS3[0] != missing.ID {
		t.Errorf("missing = %v", report.MissingInS3)
	}
	if report.Synced != 1 || report.Pending != 1 {
		t.Errorf("synced=%d pending=%d", report.Synced, report.Pending)
	}
}

func TestReconciler_ScanStorage_Pagination(t *testing.T) {
	storage := newMockObjectStorage()
	calls := 0
	storage.listObjectsFunc = func(ctx context.Context, token, prefix string, maxKeys int) (*repository.ObjectPage, error) {
		calls++
		if token == "" {
			return &repository.ObjectPage{
				Objects:   []repository.ObjectEntry{{Key: "videos/a.mp4"}},
				Truncated: true,
				NextToken: "videos/a.mp4",
			}, nil
		}
		return &repository.ObjectPage{
			Objects: []repository.ObjectEntry{{Key: "videos/b.mp4"}},
		}, nil
	}
	r := NewReconciler(NewVideoService(newMockVideoRepository(), storage, nil), storage, nil)

	inv, err := r.ScanStorage(context.Background(), true)
	if err != nil {
		t.Fatalf("ScanStorage: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 listing calls, got %d", calls)
	}
	if len(inv) != 2 {
		t.Errorf("inventory size = %d, want 2", len(inv))
	}
}

func TestReconciler_ScanStorage_CachedInventory(t *testing.T) {
	storage := newMockObjectStorage()
	calls := 0
	storage.listObjectsFunc = func(ctx context.Context, token, prefix string, maxKeys int) (*repository.ObjectPage, error) {
		calls++
		return &repository.ObjectPage{}, nil
	}
	r := NewReconciler(NewVideoService(newMockVideoRepository(), storage, nil), storage, nil)
	ctx := context.Background()

	r.ScanStorage(ctx, false)
	r.ScanStorage(ctx, false)
	if calls != 1 {
		t.Errorf("second scan must hit the cache, got %d listings", calls)
	}

	r.Invalidate()
	r.ScanStorage(ctx, false)
	if calls != 2 {
		t.Errorf("scan after Invalidate must relist, got %d listings", calls)
	}
}

func TestReconciler_ScanStorage_NotConfigured(t *testing.T) {
	storage := newMockObjectStorage()
	storage.configured = false
	r := NewReconciler(NewVideoService(newMockVideoRepository(), storage, nil), storage, nil)

	if _, err := r.ScanStorage(context.Background(), true); !errors.Is(err, repository.ErrStorageNotConfigured) {
		t.Errorf("expected ErrStorageNotConfigured, got %v", err)
	}
}

func TestReconciler_ImportOrphan(t *testing.T) {
	objects := map[string]*repository.ObjectMetadata{
		"videos/orphan.mp4": {
			Key:       "videos/orphan.mp4",
			Size:      512,
			VideoURL:  "https://cdn.example.com/orphan.mp4",
			SourceURL: "https://example.com/orphan-page",
		},
	}
	storage := inventoryStorage(objects)
	repo := newMockVideoRepository()
	videos := NewVideoService(repo, storage, nil)
	r := NewReconciler(videos, storage, nil)
	ctx := context.Background()

	rec, err := r.ImportOrphan(ctx, "videos/orphan.mp4")
	if err != nil {
		t.Fatalf("ImportOrphan: %v", err)
	}
	if rec.Status != model.VideoStatusSynced || !rec.AutoImported {
		t.Errorf("record = %s auto=%v", rec.Status, rec.AutoImported)
	}
	if rec.VideoURL != "https://cdn.example.com/orphan.mp4" || rec.DownloadSize != 512 {
		t.Errorf("record = %+v", rec)
	}

	stored, err := videos.GetByID(ctx, rec.ID)
	if err != nil || stored.S3URL != storage.PublicURL("videos/orphan.mp4") {
		t.Errorf("stored = %+v, %v", stored, err)
	}

	if _, err := r.ImportOrphan(ctx, "videos/unknown.mp4"); !errors.Is(err, repository.ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestReconciler_FixMissingInS3(t *testing.T) {
	storage := newMockObjectStorage()
	repo := newMockVideoRepository()
	videos := NewVideoService(repo, storage, nil)
	r := NewReconciler(videos, storage, nil)
	ctx := context.Background()

	rec, _ := model.NewVideoRecord("page", "https://cdn.example.com/gone.mp4", nil)
	rec.MarkSynced(storage.PublicURL("videos/gone.mp4"), false)
	repo.Create(ctx, rec)

	n, err := r.FixMissingInS3(ctx, []string{rec.ID, "no-such-id"})
	if err != nil {
		t.Fatalf("FixMissingInS3: %v", err)
	}
	if n != 1 {
		t.Errorf("fixed = %d, want 1", n)
	}

	got, _ := videos.GetByID(ctx, rec.ID)
	if got.Status != model.VideoStatusPending || got.Error == "" {
		t.Errorf("record = %s %q", got.Status, got.Error)
	}
}
