package model

// Candidate is a media URL observed in a page's network traffic, fed to the
// selector for scoring.
type Candidate struct {
	URL             string `json:"url"`
	IsHLS           bool   `json:"is_hls,omitempty"`
	MimeType        string `json:"mime_type,omitempty"`
	Size            int64  `json:"size,omitempty"`
	IsPrimaryPlayer bool   `json:"is_primary_player,omitempty"`
}
