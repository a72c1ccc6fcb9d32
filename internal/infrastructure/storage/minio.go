package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

// User metadata keys attached to uploaded objects. minio-go surfaces them
// with the X-Amz-Meta- prefix on reads.
const (
	metaVideoURL   = "X-Video-Url"
	metaSourceURL  = "X-Source-Url"
	metaUploadedAt = "X-Uploaded-At"
)

const (
	multipartPartSize = 10 * 1024 * 1024
	multipartThreads  = 4
)

// minioClient defines the MinIO operations the gateway uses.
// This abstraction allows for easier unit testing with mocks.
type minioClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// ClientConfig holds configuration for the object-store client.
type ClientConfig struct {
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	KeyPrefix       string
	CDNURL          string
	PathStyle       bool
	UseSSL          bool
}

// Client wraps a MinIO client and implements repository.ObjectStorage.
// The zero-value Client reports IsConfigured() == false and refuses work.
type Client struct {
	client     minioClient
	bucket     string
	endpoint   string
	keyPrefix  string
	cdnURL     string
	pathStyle  bool
	useSSL     bool
	configured bool
}

var _ repository.ObjectStorage = (*Client)(nil)

// NewClient creates an object-store client. It does not contact the bucket;
// call ValidateConnection to fail fast on misconfiguration.
func NewClient(cfg ClientConfig) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: bucketLookup(cfg.PathStyle),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return newClientWithMinioClient(mc, cfg), nil
}

// NewUnconfiguredClient returns a client that reports IsConfigured() == false.
// Storage-backed operations return ErrStorageNotConfigured.
func NewUnconfiguredClient() *Client {
	return &Client{}
}

func bucketLookup(pathStyle bool) minio.BucketLookupType {
	if pathStyle {
		return minio.BucketLookupPath
	}
	return minio.BucketLookupDNS
}

// newClientWithMinioClient is used for dependency injection in tests.
func newClientWithMinioClient(mc minioClient, cfg ClientConfig) *Client {
	return &Client{
		client:     mc,
		bucket:     cfg.Bucket,
		endpoint:   cfg.Endpoint,
		keyPrefix:  cfg.KeyPrefix,
		cdnURL:     strings.TrimSuffix(cfg.CDNURL, "/"),
		pathStyle:  cfg.PathStyle,
		useSSL:     cfg.UseSSL,
		configured: true,
	}
}

func (c *Client) IsConfigured() bool {
	return c.configured
}

// ValidateConnection checks bucket access, retrying transient failures with
// exponential backoff.
func (c *Client) ValidateConnection(ctx context.Context) error {
	if !c.configured {
		return repository.ErrStorageNotConfigured
	}
	op := func() error {
		exists, err := c.client.BucketExists(ctx, c.bucket)
		if err != nil {
			return fmt.Errorf("failed to check bucket existence: %w", err)
		}
		if !exists {
			return backoff.Permanent(fmt.Errorf("%w: %s", repository.ErrBucketNotFound, c.bucket))
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(op, bo)
}

// UploadFromFile streams a local file using a multipart upload and attaches
// the tracking metadata used by the reconciler.
func (c *Client) UploadFromFile(ctx context.Context, path, key, contentType string, meta repository.UploadMetadata) (string, error) {
	if !c.configured {
		return "", repository.ErrStorageNotConfigured
	}
	opts := minio.PutObjectOptions{
		ContentType: contentType,
		PartSize:    multipartPartSize,
		NumThreads:  multipartThreads,
		UserMetadata: map[string]string{
			metaVideoURL:   meta.VideoURL,
			metaSourceURL:  meta.SourceURL,
			metaUploadedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}
	if _, err := c.client.FPutObject(ctx, c.bucket, key, path, opts); err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	return c.PublicURL(key), nil
}

// DeleteObject removes an object. On versioned buckets (B2-style) it first
// lists all versions and delete markers and removes each, then falls back to
// a single unversioned delete.
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	if !c.configured {
		return repository.ErrStorageNotConfigured
	}

	versions := c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:       key,
		WithVersions: true,
	})
	removedVersions := false
	for obj := range versions {
		if obj.Err != nil {
			// Bucket may not support versioned listing; fall through to the
			// unversioned delete below.
			removedVersions = false
			break
		}
		if obj.Key != key || obj.VersionID == "" {
			continue
		}
		err := c.client.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{
			VersionID: obj.VersionID,
		})
		if err != nil {
			return fmt.Errorf("failed to delete object version %s: %w", obj.VersionID, err)
		}
		removedVersions = true
	}
	if removedVersions {
		return nil
	}

	if err := c.client.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// CheckObjectExists performs a HEAD on the object, mapping NoSuchKey to a
// non-error miss.
func (c *Client) CheckObjectExists(ctx context.Context, key string) (*repository.ObjectStat, error) {
	if !c.configured {
		return nil, repository.ErrStorageNotConfigured
	}
	info, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return &repository.ObjectStat{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to check object existence: %w", err)
	}
	return &repository.ObjectStat{
		Exists:       true,
		Size:         info.Size,
		ContentType:  info.ContentType,
		Metadata:     flattenMetadata(info.UserMetadata),
		LastModified: info.LastModified,
		ETag:         info.ETag,
	}, nil
}

// ListObjects returns one page of the listing. The continuation token is the
// last key of the previous page.
func (c *Client) ListObjects(ctx context.Context, token, prefix string, maxKeys int) (*repository.ObjectPage, error) {
	if !c.configured {
		return nil, repository.ErrStorageNotConfigured
	}
	if maxKeys <= 0 {
		maxKeys = 1000
	}
	if prefix == "" {
		prefix = c.keyPrefix
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := c.client.ListObjects(listCtx, c.bucket, minio.ListObjectsOptions{
		Prefix:     prefix,
		Recursive:  true,
		StartAfter: token,
		MaxKeys:    maxKeys,
	})

	page := &repository.ObjectPage{}
	for obj := range ch {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		page.Objects = append(page.Objects, repository.ObjectEntry{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ETag:         obj.ETag,
		})
		if len(page.Objects) >= maxKeys {
			page.Truncated = true
			page.NextToken = obj.Key
			break
		}
	}
	return page, nil
}

// GetObjectMetadata projects the user metadata fields of interest.
func (c *Client) GetObjectMetadata(ctx context.Context, key string) (*repository.ObjectMetadata, error) {
	stat, err := c.CheckObjectExists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !stat.Exists {
		return nil, repository.ErrObjectNotFound
	}
	return &repository.ObjectMetadata{
		Key:         key,
		Size:        stat.Size,
		ContentType: stat.ContentType,
		VideoURL:    metadataValue(stat.Metadata, metaVideoURL),
		SourceURL:   metadataValue(stat.Metadata, metaSourceURL),
		UploadedAt:  metadataValue(stat.Metadata, metaUploadedAt),
	}, nil
}

// PublicURL returns the externally reachable URL for a key. A configured CDN
// base wins; otherwise the endpoint is used with path-style or virtual-hosted
// addressing.
func (c *Client) PublicURL(key string) string {
	if c.cdnURL != "" {
		return c.cdnURL + "/" + key
	}
	scheme := "http"
	if c.useSSL {
		scheme = "https"
	}
	if c.pathStyle {
		return fmt.Sprintf("%s://%s/%s/%s", scheme, c.endpoint, c.bucket, key)
	}
	return fmt.Sprintf("%s://%s.%s/%s", scheme, c.bucket, c.endpoint, key)
}

// KeyFromURL is the inverse of PublicURL.
func (c *Client) KeyFromURL(rawURL string) (string, bool) {
	if c.cdnURL != "" {
		if rest, ok := strings.CutPrefix(rawURL, c.cdnURL+"/"); ok {
			return rest, true
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	p := strings.TrimPrefix(u.Path, "/")
	if c.pathStyle {
		if u.Host != c.endpoint {
			return "", false
		}
		rest, ok := strings.CutPrefix(p, c.bucket+"/")
		if !ok {
			return "", false
		}
		return rest, true
	}
	if u.Host != c.bucket+"."+c.endpoint {
		return "", false
	}
	return p, true
}

// ObjectKey derives the deterministic storage key for a media URL.
func (c *Client) ObjectKey(rawURL string) string {
	return ObjectKeyWithPrefix(c.keyPrefix, rawURL)
}

// KeyPrefix returns the configured object key prefix.
func (c *Client) KeyPrefix() string {
	return c.keyPrefix
}

// flattenMetadata normalizes user metadata keys to their canonical form.
func flattenMetadata(meta minio.StringMap) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[strings.TrimPrefix(k, "X-Amz-Meta-")] = v
	}
	return out
}

// metadataValue looks a field up tolerating the X-Amz-Meta- prefix and case
// differences between backends.
func metadataValue(meta map[string]string, key string) string {
	if v, ok := meta[key]; ok {
		return v
	}
	for k, v := range meta {
		if strings.EqualFold(k, key) || strings.EqualFold(k, "X-Amz-Meta-"+key) {
			return v
		}
	}
	return ""
}
