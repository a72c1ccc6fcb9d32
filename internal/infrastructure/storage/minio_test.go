package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

type mockMinioClient struct {
	bucketExistsFunc func(ctx context.Context, bucketName string) (bool, error)
	fPutObjectFunc   func(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	removeObjectFunc func(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	statObjectFunc   func(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	listObjectsFunc  func(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

func (m *mockMinioClient) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return m.bucketExistsFunc(ctx, bucketName)
}

func (m *mockMinioClient) FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return m.fPutObjectFunc(ctx, bucketName, objectName, filePath, opts)
}

func (m *mockMinioClient) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return m.removeObjectFunc(ctx, bucketName, objectName, opts)
}

func (m *mockMinioClient) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return m.statObjectFunc(ctx, bucketName, objectName, opts)
}

func (m *mockMinioClient) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	return m.listObjectsFunc(ctx, bucketName, opts)
}

func objectChan(objs ...minio.ObjectInfo) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(objs))
	for _, o := range objs {
		ch <- o
	}
	close(ch)
	return ch
}

func testClient(mc minioClient) *Client {
	return newClientWithMinioClient(mc, ClientConfig{
		Endpoint:  "s3.example.com",
		Bucket:    "media",
		KeyPrefix: "videos/",
		PathStyle: true,
		UseSSL:    true,
	})
}

func TestClient_UploadFromFile(t *testing.T) {
	var gotKey string
	var gotOpts minio.PutObjectOptions
	mc := &mockMinioClient{
		fPutObjectFunc: func(_ context.Context, _, objectName, _ string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
			gotKey = objectName
			gotOpts = opts
			return minio.UploadInfo{Key: objectName}, nil
		},
	}
	c := testClient(mc)

	url, err := c.UploadFromFile(context.Background(), "/tmp/v.mp4", "videos/clip-abc.mp4", "video/mp4", repository.UploadMetadata{
		VideoURL:  "https://cdn.example.com/clip.mp4",
		SourceURL: "https://example.com/page",
	})
	if err != nil {
		t.Fatalf("UploadFromFile: %v", err)
	}
	if gotKey != "videos/clip-abc.mp4" {
		t.Errorf("uploaded key = %q", gotKey)
	}
	if gotOpts.UserMetadata[metaVideoURL] != "https://cdn.example.com/clip.mp4" {
		t.Errorf("missing video url metadata: %v", gotOpts.UserMetadata)
	}
	if gotOpts.UserMetadata[metaSourceURL] != "https://example.com/page" {
		t.Errorf("missing source url metadata: %v", gotOpts.UserMetadata)
	}
	want := "https://s3.example.com/media/videos/clip-abc.mp4"
	if url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
}

func TestClient_CheckObjectExists(t *testing.T) {
	tests := []struct {
		name       string
		statErr    error
		wantExists bool
		wantErr    bool
	}{
		{
			name:       "object present",
			wantExists: true,
		},
		{
			name:       "no such key is a miss not an error",
			statErr:    minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404},
			wantExists: false,
		},
		{
			name:    "transport failure propagates",
			statErr: errors.New("connection reset"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := &mockMinioClient{
				statObjectFunc: func(context.Context, string, string, minio.StatObjectOptions) (minio.ObjectInfo, error) {
					if tt.statErr != nil {
						return minio.ObjectInfo{}, tt.statErr
					}
					return minio.ObjectInfo{Size: 1024, ContentType: "video/mp4"}, nil
				},
			}
			c := testClient(mc)

			stat, err := c.CheckObjectExists(context.Background(), "videos/clip.mp4")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stat.Exists != tt.wantExists {
				t.Errorf("Exists = %v, want %v", stat.Exists, tt.wantExists)
			}
		})
	}
}

func TestClient_DeleteObject_Versioned(t *testing.T) {
	var removed []string
	mc := &mockMinioClient{
		listObjectsFunc: func(_ context.Context, _ string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
			if !opts.WithVersions {
				t.Error("expected versioned listing")
			}
			return objectChan(
				minio.ObjectInfo{Key: "videos/clip.mp4", VersionID: "v1"},
				minio.ObjectInfo{Key: "videos/clip.mp4", VersionID: "v2"},
				minio.ObjectInfo{Key: "videos/other.mp4", VersionID: "v9"},
			)
		},
		removeObjectFunc: func(_ context.Context, _, _ string, opts minio.RemoveObjectOptions) error {
			removed = append(removed, opts.VersionID)
			return nil
		},
	}
	c := testClient(mc)

	if err := c.DeleteObject(context.Background(), "videos/clip.mp4"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if len(removed) != 2 || removed[0] != "v1" || removed[1] != "v2" {
		t.Errorf("removed versions = %v, want [v1 v2]", removed)
	}
}

func TestClient_DeleteObject_Unversioned(t *testing.T) {
	var plainDeletes int
	mc := &mockMinioClient{
		listObjectsFunc: func(context.Context, string, minio.ListObjectsOptions) <-chan minio.ObjectInfo {
			return objectChan()
		},
		removeObjectFunc: func(_ context.Context, _, _ string, opts minio.RemoveObjectOptions) error {
			if opts.VersionID == "" {
				plainDeletes++
			}
			return nil
		},
	}
	c := testClient(mc)

	if err := c.DeleteObject(context.Background(), "videos/clip.mp4"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if plainDeletes != 1 {
		t.Errorf("expected one unversioned delete, got %d", plainDeletes)
	}
}

func TestClient_GetObjectMetadata(t *testing.T) {
	mc := &mockMinioClient{
		statObjectFunc: func(context.Context, string, string, minio.StatObjectOptions) (minio.ObjectInfo, error) {
			return minio.ObjectInfo{
				Size:        2048,
				ContentType: "video/mp4",
				UserMetadata: minio.StringMap{
					"X-Amz-Meta-X-Video-Url":   "https://cdn.example.com/clip.mp4",
					"X-Amz-Meta-X-Source-Url":  "https://example.com/page",
					"X-Amz-Meta-X-Uploaded-At": "2026-01-01T00:00:00Z",
				},
				LastModified: time.Now(),
			}, nil
		},
	}
	c := testClient(mc)

	meta, err := c.GetObjectMetadata(context.Background(), "videos/clip.mp4")
	if err != nil {
		t.Fatalf("GetObjectMetadata: %v", err)
	}
	if meta.VideoURL != "https://cdn.example.com/clip.mp4" {
		t.Errorf("VideoURL = %q", meta.VideoURL)
	}
	if meta.SourceURL != "https://example.com/page" {
		t.Errorf("SourceURL = %q", meta.SourceURL)
	}

	mc.statObjectFunc = func(context.Context, string, string, minio.StatObjectOptions) (minio.ObjectInfo, error) {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	if _, err := c.GetObjectMetadata(context.Background(), "videos/gone.mp4"); !errors.Is(err, repository.ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestClient_PublicURLAndKeyFromURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		key  string
		want string
	}{
		{
			name: "path style",
			cfg:  ClientConfig{Endpoint: "s3.example.com", Bucket: "media", PathStyle: true, UseSSL: true},
			key:  "videos/clip.mp4",
			want: "https://s3.example.com/media/videos/clip.mp4",
		},
		{
			name: "virtual hosted",
			cfg:  ClientConfig{Endpoint: "s3.example.com", Bucket: "media", UseSSL: true},
			key:  "videos/clip.mp4",
			want: "https://media.s3.example.com/videos/clip.mp4",
		},
		{
			name: "cdn base wins",
			cfg:  ClientConfig{Endpoint: "s3.example.com", Bucket: "media", CDNURL: "https://cdn.example.com", UseSSL: true},
			key:  "videos/clip.mp4",
			want: "https://cdn.example.com/videos/clip.mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClientWithMinioClient(&mockMinioClient{}, tt.cfg)
			got := c.PublicURL(tt.key)
			if got != tt.want {
				t.Errorf("PublicURL = %q, want %q", got, tt.want)
			}
			key, ok := c.KeyFromURL(got)
			if !ok || key != tt.key {
				t.Errorf("KeyFromURL(%q) = %q, %v; want %q", got, key, ok, tt.key)
			}
		})
	}

	c := newClientWithMinioClient(&mockMinioClient{}, ClientConfig{Endpoint: "s3.example.com", Bucket: "media", PathStyle: true})
	if _, ok := c.KeyFromURL("https://other.example.com/media/videos/clip.mp4"); ok {
		t.Error("foreign host must not resolve to a key")
	}
}

func TestClient_Unconfigured(t *testing.T) {
	c := NewUnconfiguredClient()
	if c.IsConfigured() {
		t.Fatal("expected unconfigured client")
	}
	if _, err := c.CheckObjectExists(context.Background(), "k"); !errors.Is(err, repository.ErrStorageNotConfigured) {
		t.Errorf("expected ErrStorageNotConfigured, got %v", err)
	}
	if err := c.DeleteObject(context.Background(), "k"); !errors.Is(err, repository.ErrStorageNotConfigured) {
		t.Errorf("expected ErrStorageNotConfigured, got %v", err)
	}
}
