package usecase

import (
	"context"
	"sync"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/downloader"
)

// mockVideoRepository is an in-memory VideoRepository with optional function
// hooks for failure injection.
type mockVideoRepository struct {
	mu      sync.Mutex
	records map[string]*model.VideoRecord

	createFunc func(ctx context.Context, rec *model.VideoRecord) error
	updateFunc func(ctx context.Context, rec *model.VideoRecord) error
}

func newMockVideoRepository() *mockVideoRepository {
	return &mockVideoRepository{records: make(map[string]*model.VideoRecord)}
}

func (m *mockVideoRepository) Create(ctx context.Context, rec *model.VideoRecord) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockVideoRepository) GetByID(ctx context.Context, id string) (*model.VideoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, repository.ErrVideoNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *mockVideoRepository) GetAll(ctx context.Context) ([]*model.VideoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.VideoRecord, 0, len(m.records))
	for _, rec := range m.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

// Update upserts, matching the hash-store backend.
func (m *mockVideoRepository) Update(ctx context.Context, rec *model.VideoRecord) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockVideoRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return repository.ErrVideoNotFound
	}
	delete(m.records, id)
	return nil
}

// mockURLRepository is an in-memory URLRepository.
type mockURLRepository struct {
	mu      sync.Mutex
	records map[string]*model.URLRecord
}

func newMockURLRepository() *mockURLRepository {
	return &mockURLRepository{records: make(map[string]*model.URLRecord)}
}

func (m *mockURLRepository) Create(ctx context.Context, rec *model.URLRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockURLRepository) GetByID(ctx context.Context, id string) (*model.URLRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, repository.ErrURLNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *mockURLRepository) GetAll(ctx context.Context) ([]*model.URLRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.URLRecord, 0, len(m.records))
	for _, rec := range m.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockURLRepository) Update(ctx context.Context, rec *model.URLRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockURLRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return repository.ErrURLNotFound
	}
	delete(m.records, id)
	return nil
}

// mockObjectStorage implements repository.ObjectStorage with function fields.
// Unset fields behave like an empty, configured bucket.
type mockObjectStorage struct {
	configured bool

	uploadFromFileFunc    func(ctx context.Context, path, key, contentType string, meta repository.UploadMetadata) (string, error)
	deleteObjectFunc      func(ctx context.Context, key string) error
	checkObjectExistsFunc func(ctx context.Context, key string) (*repository.ObjectStat, error)
	listObjectsFunc       func(ctx context.Context, token, prefix string, maxKeys int) (*repository.ObjectPage, error)
	getObjectMetadata     func(ctx context.Context, key string) (*repository.ObjectMetadata, error)
}

var _ repository.ObjectStorage = (*mockObjectStorage)(nil)

func newMockObjectStorage() *mockObjectStorage {
	return &mockObjectStorage{configured: true}
}

func (m *mockObjectStorage) IsConfigured() bool { return m.configured }

func (m *mockObjectStorage) ValidateConnection(ctx context.Context) error { return nil }

func (m *mockObjectStorage) UploadFromFile(ctx context.Context, path, key, contentType string, meta repository.UploadMetadata) (string, error) {
	if m.uploadFromFileFunc != nil {
		return m.uploadFromFileFunc(ctx, path, key, contentType, meta)
	}
	return m.PublicURL(key), nil
}

func (m *mockObjectStorage) DeleteObject(ctx context.Context, key string) error {
	if m.deleteObjectFunc != nil {
		return m.deleteObjectFunc(ctx, key)
	}
	return nil
}

func (m *mockObjectStorage) CheckObjectExists(ctx context.Context, key string) (*repository.ObjectStat, error) {
	if m.checkObjectExistsFunc != nil {
		return m.checkObjectExistsFunc(ctx, key)
	}
	return &repository.ObjectStat{Exists: false}, nil
}

func (m *mockObjectStorage) ListObjects(ctx context.Context, token, prefix string, maxKeys int) (*repository.ObjectPage, error) {
	if m.listObjectsFunc != nil {
		return m.listObjectsFunc(ctx, token, prefix, maxKeys)
	}
	return &repository.ObjectPage{}, nil
}

func (m *mockObjectStorage) GetObjectMetadata(ctx context.Context, key string) (*repository.ObjectMetadata, error) {
	if m.getObjectMetadata != nil {
		return m.getObjectMetadata(ctx, key)
	}
	return nil, repository.ErrObjectNotFound
}

func (m *mockObjectStorage) PublicURL(key string) string {
	return "https://store.example.com/" + key
}

func (m *mockObjectStorage) KeyFromURL(rawURL string) (string, bool) {
	const base = "https://store.example.com/"
	if len(rawURL) > len(base) && rawURL[:len(base)] == base {
		return rawURL[len(base):], true
	}
	return "", false
}

func (m *mockObjectStorage) ObjectKey(rawURL string) string {
	return "videos/" + model.NormalizeMediaURL(rawURL)
}

// mockDownloader implements MediaDownloader with a function field.
type mockDownloader struct {
	downloadFunc func(ctx context.Context, mediaURL string, isHLS bool, referer string, progress downloader.ProgressFunc) (*downloader.Result, error)
}

func (m *mockDownloader) Download(ctx context.Context, mediaURL string, isHLS bool, referer string, progress downloader.ProgressFunc) (*downloader.Result, error) {
	return m.downloadFunc(ctx, mediaURL, isHLS, referer, progress)
}
