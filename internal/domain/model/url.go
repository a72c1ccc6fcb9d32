package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ScrapeStatus represents the lifecycle state of a scrape request.
type ScrapeStatus string

const (
	ScrapeStatusWaiting    ScrapeStatus = "waiting"
	ScrapeStatusProcessing ScrapeStatus = "processing"
	ScrapeStatusDone       ScrapeStatus = "done"
	ScrapeStatusCancelled  ScrapeStatus = "cancelled"
	ScrapeStatusError      ScrapeStatus = "error"
)

// Valid status transitions:
// waiting -> processing -> done | error
// waiting | processing -> cancelled
var validScrapeTransitions = map[ScrapeStatus][]ScrapeStatus{
	ScrapeStatusWaiting:    {ScrapeStatusProcessing, ScrapeStatusCancelled, ScrapeStatusError},
	ScrapeStatusProcessing: {ScrapeStatusDone, ScrapeStatusError, ScrapeStatusCancelled},
	ScrapeStatusDone:       {},
	ScrapeStatusCancelled:  {},
	ScrapeStatusError:      {},
}

func (s ScrapeStatus) IsValid() bool {
	switch s {
	case ScrapeStatusWaiting, ScrapeStatusProcessing, ScrapeStatusDone, ScrapeStatusCancelled, ScrapeStatusError:
		return true
	default:
		return false
	}
}

func (s ScrapeStatus) IsTerminal() bool {
	return s == ScrapeStatusDone || s == ScrapeStatusCancelled || s == ScrapeStatusError
}

func (s ScrapeStatus) CanTransitionTo(next ScrapeStatus) bool {
	allowed, ok := validScrapeTransitions[s]
	if !ok {
		return false
	}
	for _, st := range allowed {
		if st == next {
			return true
		}
	}
	return false
}

func (s ScrapeStatus) String() string {
	return string(s)
}

var (
	ErrEmptyURL                = errors.New("url cannot be empty")
	ErrInvalidScrapeTransition = errors.New("invalid scrape status transition")
	ErrNotCancellable          = errors.New("request is not in a cancellable state")
)

// ScrapeResult summarizes a completed render for diagnostics and replay.
type ScrapeResult struct {
	HTMLLength  int      `json:"html_length"`
	HTMLPreview string   `json:"html_preview"`
	Title       string   `json:"title"`
	VideoURLs   []string `json:"video_urls,omitempty"`
	Cached      bool     `json:"cached"`
}

// URLRecord tracks a single scrape request through its lifecycle.
type URLRecord struct {
	ID          string        `json:"id"`
	URL         string        `json:"url"`
	Status      ScrapeStatus  `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Error       string        `json:"error,omitempty"`
	CacheKey    string        `json:"cache_key,omitempty"`
	Result      *ScrapeResult `json:"result,omitempty"`
}

// NewURLRecord creates a record in the waiting state.
func NewURLRecord(rawURL string) (*URLRecord, error) {
	if rawURL == "" {
		return nil, ErrEmptyURL
	}
	return &URLRecord{
		ID:        uuid.NewString(),
		URL:       rawURL,
		Status:    ScrapeStatusWaiting,
		CreatedAt: time.Now(),
	}, nil
}

// transitionTo enforces monotonic status progression and maintains the
// startedAt/completedAt invariants.
func (r *URLRecord) transitionTo(next ScrapeStatus) error {
	if !next.IsValid() || !r.Status.CanTransitionTo(next) {
		return ErrInvalidScrapeTransition
	}
	now := time.Now()
	if next == ScrapeStatusProcessing && r.StartedAt == nil {
		r.StartedAt = &now
	}
	if next.IsTerminal() {
		r.CompletedAt = &now
	}
	r.Status = next
	return nil
}

func (r *URLRecord) MarkProcessing() error {
	return r.transitionTo(ScrapeStatusProcessing)
}

func (r *URLRecord) MarkDone(result *ScrapeResult) error {
	if err := r.transitionTo(ScrapeStatusDone); err != nil {
		return err
	}
	r.Result = result
	return nil
}

func (r *URLRecord) MarkError(msg string) error {
	if err := r.transitionTo(ScrapeStatusError); err != nil {
		return err
	}
	r.Error = msg
	return nil
}

// MarkCancelled only succeeds from waiting or processing.
func (r *URLRecord) MarkCancelled() error {
	if r.Status != ScrapeStatusWaiting && r.Status != ScrapeStatusProcessing {
		return ErrNotCancellable
	}
	return r.transitionTo(ScrapeStatusCancelled)
}
