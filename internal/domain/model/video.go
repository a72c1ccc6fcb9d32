package model

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VideoStatus represents the sync state of a discovered media asset.
type VideoStatus string

const (
	VideoStatusPending   VideoStatus = "pending"
	VideoStatusUploading VideoStatus = "uploading"
	VideoStatusSynced    VideoStatus = "synced"
	VideoStatusError     VideoStatus = "error"
)

func (s VideoStatus) IsValid() bool {
	switch s {
	case VideoStatusPending, VideoStatusUploading, VideoStatusSynced, VideoStatusError:
		return true
	default:
		return false
	}
}

func (s VideoStatus) String() string {
	return string(s)
}

var (
	ErrEmptyVideoURL   = errors.New("video url cannot be empty")
	ErrNotReuploadable = errors.New("video is not in a reuploadable state")
)

// VideoSource is one candidate origin for a video asset.
type VideoSource struct {
	URL      string `json:"url"`
	IsHLS    bool   `json:"is_hls,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// FailedAttempt records one failed download/upload attempt against a source.
type FailedAttempt struct {
	SourceIndex int       `json:"source_index"`
	Attempt     int       `json:"attempt"`
	URL         string    `json:"url"`
	Error       string    `json:"error"`
	Timestamp   time.Time `json:"timestamp"`
}

// VideoRecord is the authoritative state of one discovered media asset.
//
// Invariants:
//   - status == synced implies S3URL and SyncedAt are set
//   - status == uploading implies UploadingAt is set
//   - DownloadPath may reference a file that no longer exists; consumers must
//     treat a missing file as absent and redownload
type VideoRecord struct {
	ID              string        `json:"id"`
	SourceURL       string        `json:"source_url"`
	VideoURL        string        `json:"video_url"`
	VideoSources    []VideoSource `json:"video_sources,omitempty"`
	PrimaryVideoURL string        `json:"primary_video_url"`
	Status          VideoStatus   `json:"status"`

	S3URL string `json:"s3_url,omitempty"`

	DownloadPath        string     `json:"download_path,omitempty"`
	DownloadSize        int64      `json:"download_size,omitempty"`
	DownloadContentType string     `json:"download_content_type,omitempty"`
	DownloadedAt        *time.Time `json:"downloaded_at,omitempty"`

	SyncedAt      *time.Time `json:"synced_at,omitempty"`
	UploadingAt   *time.Time `json:"uploading_at,omitempty"`
	Error         string     `json:"error,omitempty"`
	IsProtected   bool       `json:"is_protected,omitempty"`
	SkippedUpload bool       `json:"skipped_upload,omitempty"`
	AutoImported  bool       `json:"auto_imported,omitempty"`
	ForceReupload bool       `json:"force_reupload,omitempty"`

	RetryCount            int             `json:"retry_count,omitempty"`
	FailedAttempts        []FailedAttempt `json:"failed_attempts,omitempty"`
	DownloadedSourceIndex *int            `json:"downloaded_source_index,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewVideoRecord creates a pending record for a discovered asset.
func NewVideoRecord(sourceURL, videoURL string, sources []VideoSource) (*VideoRecord, error) {
	if videoURL == "" {
		return nil, ErrEmptyVideoURL
	}
	return &VideoRecord{
		ID:              uuid.NewString(),
		SourceURL:       sourceURL,
		VideoURL:        videoURL,
		VideoSources:    sources,
		PrimaryVideoURL: videoURL,
		Status:          VideoStatusPending,
		CreatedAt:       time.Now(),
	}, nil
}

// MarkUploading stamps the record for stuck detection.
func (v *VideoRecord) MarkUploading() {
	now := time.Now()
	v.Status = VideoStatusUploading
	v.UploadingAt = &now
	v.Error = ""
}

// MarkSynced records a successful upload. The storage URL and sync timestamp
// are always set together so the synced invariant holds on every read.
func (v *VideoRecord) MarkSynced(s3URL string, skipped bool) {
	now := time.Now()
	v.Status = VideoStatusSynced
	v.S3URL = s3URL
	v.SyncedAt = &now
	v.SkippedUpload = skipped
	v.UploadingAt = nil
	v.Error = ""
	v.ForceReupload = false
}

// MarkError records a failure and clears stale download pointers so the next
// attempt redownloads.
func (v *VideoRecord) MarkError(msg string) {
	v.Status = VideoStatusError
	v.Error = msg
	v.UploadingAt = nil
	v.ClearDownloadCache()
}

// ClearDownloadCache drops the local file pointers without touching status.
func (v *VideoRecord) ClearDownloadCache() {
	v.DownloadPath = ""
	v.DownloadSize = 0
	v.DownloadContentType = ""
	v.DownloadedAt = nil
	v.DownloadedSourceIndex = nil
}

// SetDownloaded records a completed local download.
func (v *VideoRecord) SetDownloaded(path string, size int64, contentType string, sourceIndex int) {
	now := time.Now()
	v.DownloadPath = path
	v.DownloadSize = size
	v.DownloadContentType = contentType
	v.DownloadedAt = &now
	v.DownloadedSourceIndex = &sourceIndex
}

// ResetForReupload returns the record to pending ahead of a new sync cycle.
// Allowed from synced, error, or uploading (stuck).
func (v *VideoRecord) ResetForReupload(force bool) error {
	switch v.Status {
	case VideoStatusSynced, VideoStatusError, VideoStatusUploading:
	default:
		return ErrNotReuploadable
	}
	v.Status = VideoStatusPending
	v.SyncedAt = nil
	v.UploadingAt = nil
	v.SkippedUpload = false
	v.ForceReupload = force
	v.Error = ""
	v.ClearDownloadCache()
	return nil
}

// RecordFailedAttempt appends to the per-source failure log.
func (v *VideoRecord) RecordFailedAttempt(sourceIndex, attempt int, url, errMsg string) {
	v.FailedAttempts = append(v.FailedAttempts, FailedAttempt{
		SourceIndex: sourceIndex,
		Attempt:     attempt,
		URL:         url,
		Error:       errMsg,
		Timestamp:   time.Now(),
	})
}

// NormalizeMediaURL strips the query string and fragment from a media URL so
// records for the same asset compare equal. Invalid URLs are returned as-is.
func NormalizeMediaURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "?")
}
