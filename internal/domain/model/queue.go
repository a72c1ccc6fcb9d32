package model

import "time"

// QueueState represents the upload-queue state of one item.
type QueueState string

const (
	QueueStatePending   QueueState = "pending"
	QueueStateActive    QueueState = "active"
	QueueStatePaused    QueueState = "paused"
	QueueStateCompleted QueueState = "completed"
	QueueStateFailed    QueueState = "failed"
	QueueStateCancelled QueueState = "cancelled"
)

func (s QueueState) IsTerminal() bool {
	return s == QueueStateCompleted || s == QueueStateFailed || s == QueueStateCancelled
}

func (s QueueState) String() string {
	return string(s)
}

// QueueItem is the queue's transient projection of a video; the video tracker
// remains the authority on the underlying record.
type QueueItem struct {
	VideoID     string     `json:"video_id"`
	Priority    int        `json:"priority"`
	State       QueueState `json:"state"`
	AddedAt     time.Time  `json:"added_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Progress    float64    `json:"progress"`
	Speed       string     `json:"speed,omitempty"`
	ETA         string     `json:"eta,omitempty"`
	Error       string     `json:"error,omitempty"`

	// Display fields carried for status listings.
	Title     string `json:"title,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	VideoURL  string `json:"video_url,omitempty"`
}
