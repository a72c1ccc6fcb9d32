package repository

import "errors"

var (
	// ErrKeyNotFound is returned by state-store reads for absent keys/fields.
	ErrKeyNotFound = errors.New("key not found")

	// ErrURLNotFound is returned when a scrape request record cannot be found.
	ErrURLNotFound = errors.New("url record not found")

	// ErrVideoNotFound is returned when a video record cannot be found.
	ErrVideoNotFound = errors.New("video not found")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrObjectNotFound is returned when an object cannot be found in storage.
	ErrObjectNotFound = errors.New("object not found")

	// ErrStorageNotConfigured is returned by storage-backed operations when
	// no object store credentials are configured.
	ErrStorageNotConfigured = errors.New("object storage is not configured")

	// ErrScanInProgress is returned when a storage scan is already running.
	ErrScanInProgress = errors.New("storage scan already in progress")
)
