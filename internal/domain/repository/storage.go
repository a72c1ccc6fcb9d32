package repository

import (
	"context"
	"time"
)

// UploadMetadata is attached to uploaded objects as user metadata and read
// back by the reconciler to match objects to tracker records.
type UploadMetadata struct {
	VideoURL  string
	SourceURL string
}

// ObjectStat describes the result of an existence check.
// A 404 from the backend maps to Exists=false with a nil error.
type ObjectStat struct {
	Exists       bool
	Size         int64
	ContentType  string
	Metadata     map[string]string
	LastModified time.Time
	ETag         string
}

// ObjectEntry is one object in a listing page.
type ObjectEntry struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// ObjectPage is one page of a paginated listing.
type ObjectPage struct {
	Objects   []ObjectEntry
	NextToken string
	Truncated bool
}

// ObjectMetadata projects the user metadata fields of interest.
type ObjectMetadata struct {
	Key         string
	Size        int64
	ContentType string
	VideoURL    string
	SourceURL   string
	UploadedAt  string
}

// ObjectStorage defines the object-store operations the gateway needs.
// Implementations should be provided by the infrastructure layer (MinIO/S3).
type ObjectStorage interface {
	// IsConfigured reports whether storage credentials are present. Callers
	// must treat false as "skip storage work", not as an error.
	IsConfigured() bool

	// ValidateConnection performs a HEAD on the bucket.
	ValidateConnection(ctx context.Context) error

	// UploadFromFile streams a local file into the store under key using a
	// multipart upload, attaching the given user metadata. Returns the
	// public URL of the uploaded object.
	UploadFromFile(ctx context.Context, path, key, contentType string, meta UploadMetadata) (string, error)

	// DeleteObject removes an object, including all versions and delete
	// markers on versioned buckets, falling back to a plain delete.
	DeleteObject(ctx context.Context, key string) error

	// CheckObjectExists performs a HEAD on the object, mapping 404 to a
	// non-error {Exists: false} result.
	CheckObjectExists(ctx context.Context, key string) (*ObjectStat, error)

	// ListObjects returns one page of the bucket listing with continuation.
	ListObjects(ctx context.Context, token, prefix string, maxKeys int) (*ObjectPage, error)

	// GetObjectMetadata projects the metadata fields of interest for a key.
	GetObjectMetadata(ctx context.Context, key string) (*ObjectMetadata, error)

	// PublicURL returns the externally reachable URL for a key, honoring an
	// optional CDN base and path- vs virtual-hosted addressing.
	PublicURL(key string) string

	// KeyFromURL is the inverse of PublicURL. Returns false when the URL
	// does not address this store.
	KeyFromURL(rawURL string) (string, bool)

	// ObjectKey derives the deterministic storage key for a media URL.
	// Identical URLs modulo query and fragment yield identical keys.
	ObjectKey(rawURL string) string
}
