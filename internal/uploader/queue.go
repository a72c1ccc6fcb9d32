// Package uploader runs the prioritized upload queue. The queue holds a
// transient projection keyed by videoId; the video tracker stays authoritative
// for the underlying records.
package uploader

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/events"
	"github.com/hszk-dev/mediagate/internal/infrastructure/metrics"
)

var ErrQueueClosed = errors.New("upload queue is shut down")

const (
	defaultMaxConcurrent = 2
	defaultHistorySize   = 50
)

// SyncFunc performs the actual download-upload work for one video.
type SyncFunc func(ctx context.Context, videoID string) error

// AddOptions carries priority and the display fields shown in status
// listings.
type AddOptions struct {
	Priority  int
	Title     string
	SourceURL string
	VideoURL  string
}

// Status is the queue snapshot returned to the admin API.
type Status struct {
	Pending      []*model.QueueItem `json:"pending"`
	Active       []*model.QueueItem `json:"active"`
	History      []*model.QueueItem `json:"history"`
	PendingTotal int                `json:"pending_total"`
	ActiveCount  int                `json:"active_count"`
	HistoryTotal int                `json:"history_total"`
	IsPaused     bool               `json:"is_paused"`
}

// StatusFilter pages the pending and history listings independently.
type StatusFilter struct {
	PendingPage    int
	PendingPerPage int
	HistoryPage    int
	HistoryPerPage int
}

// Queue is the prioritized upload queue. One mutex guards all membership;
// admission happens under the mutex, workers run outside it.
//
// Invariant: a videoId appears in at most one of pending, active, history.
type Queue struct {
	syncFn  SyncFunc
	bus     *events.Bus
	logger  *slog.Logger
	baseCtx context.Context

	maxConcurrent int
	historySize   int

	mu       sync.Mutex
	pending  []*model.QueueItem
	active   map[string]*activeEntry
	history  []*model.QueueItem
	isPaused bool
	closed   bool
	wg       sync.WaitGroup
}

type activeEntry struct {
	item   *model.QueueItem
	cancel context.CancelFunc
}

func NewQueue(ctx context.Context, syncFn SyncFunc, bus *events.Bus, maxConcurrent int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &Queue{
		syncFn:        syncFn,
		bus:           bus,
		logger:        logger,
		baseCtx:       ctx,
		maxConcurrent: maxConcurrent,
		historySize:   defaultHistorySize,
		active:        make(map[string]*activeEntry),
	}
}

// Add enqueues a video. Adding a videoId already present returns its current
// position, promoting the stored priority if the new one is higher.
func (q *Queue) Add(videoID string, opts AddOptions) (int, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, ErrQueueClosed
	}

	if _, running := q.active[videoID]; running {
		q.mu.Unlock()
		return 0, nil
	}
	for i, item := range q.pending {
		if item.VideoID != videoID {
			continue
		}
		if opts.Priority > item.Priority {
			item.Priority = opts.Priority
		}
		pos := q.positionLocked(i)
		q.mu.Unlock()
		return pos, nil
	}

	item := &model.QueueItem{
		VideoID:   videoID,
		Priority:  opts.Priority,
		State:     model.QueueStatePending,
		AddedAt:   time.Now(),
		Title:     opts.Title,
		SourceURL: opts.SourceURL,
		VideoURL:  opts.VideoURL,
	}
	q.pending = append(q.pending, item)
	pos := q.positionLocked(len(q.pending) - 1)
	q.mu.Unlock()

	q.bus.State(events.UploadQueued, map[string]any{"video_id": videoID, "position": pos})
	q.processNext()
	return pos, nil
}

// AddMany enqueues a batch, returning how many were newly added.
func (q *Queue) AddMany(videoIDs []string, opts AddOptions) (int, error) {
	added := 0
	for _, id := range videoIDs {
		if _, err := q.Add(id, opts); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// positionLocked computes the 1-based admission position of pending index i
// given priority ordering.
func (q *Queue) positionLocked(i int) int {
	target := q.pending[i]
	pos := 1
	for j, item := range q.pending {
		if j == i {
			continue
		}
		if item.Priority > target.Priority ||
			(item.Priority == target.Priority && item.AddedAt.Before(target.AddedAt)) {
			pos++
		}
	}
	return pos
}

// processNext runs admission: picks the highest-priority non-paused pending
// items while worker slots are free, and launches workers outside the lock.
func (q *Queue) processNext() {
	var launches []*model.QueueItem

	q.mu.Lock()
	for !q.isPaused && !q.closed && len(q.active) < q.maxConcurrent {
		idx := q.nextAdmissibleLocked()
		if idx < 0 {
			break
		}
		item := q.pending[idx]
		q.pending = append(q.pending[:idx], q.pending[idx+1:]...)

		now := time.Now()
		item.State = model.QueueStateActive
		item.StartedAt = &now

		ctx, cancel := context.WithCancel(q.baseCtx)
		q.active[item.VideoID] = &activeEntry{item: item, cancel: cancel}
		q.wg.Add(1)
		launches = append(launches, item)
		go q.runWorker(ctx, item)
	}
	metrics.QueueActive.Set(float64(len(q.active)))
	q.mu.Unlock()

	for _, item := range launches {
		q.bus.State(events.UploadStart, map[string]any{"video_id": item.VideoID})
	}
}

func (q *Queue) nextAdmissibleLocked() int {
	best := -1
	for i, item := range q.pending {
		if item.State == model.QueueStatePaused {
			continue
		}
		if best < 0 ||
			item.Priority > q.pending[best].Priority ||
			(item.Priority == q.pending[best].Priority && item.AddedAt.Before(q.pending[best].AddedAt)) {
			best = i
		}
	}
	return best
}

func (q *Queue) runWorker(ctx context.Context, item *model.QueueItem) {
	defer q.wg.Done()

	err := q.syncFn(ctx, item.VideoID)

	q.mu.Lock()
	entry, still := q.active[item.VideoID]
	if !still {
		// Cancelled while running; Cancel already moved it to history.
		q.mu.Unlock()
		q.processNext()
		return
	}
	entry.cancel()
	delete(q.active, item.VideoID)

	now := time.Now()
	item.CompletedAt = &now
	switch {
	case err == nil:
		item.State = model.QueueStateCompleted
		item.Progress = 100
	case errors.Is(err, context.Canceled):
		item.State = model.QueueStateCancelled
		item.Error = "cancelled"
	default:
		item.State = model.QueueStateFailed
		item.Error = err.Error()
	}
	q.pushHistoryLocked(item)
	metrics.QueueActive.Set(float64(len(q.active)))
	metrics.QueueItemsTotal.WithLabelValues(item.State.String()).Inc()
	q.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		q.logger.Warn("queue item failed",
			slog.String("video_id", item.VideoID),
			slog.String("error", err.Error()),
		)
	}
	q.processNext()
}

func (q *Queue) pushHistoryLocked(item *model.QueueItem) {
	q.history = append(q.history, item)
	if len(q.history) > q.historySize {
		q.history = q.history[len(q.history)-q.historySize:]
	}
}

// Pause marks a pending item paused so admission skips it. Active items
// cannot pause mid-flight.
func (q *Queue) Pause(videoID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.pending {
		if item.VideoID == videoID && item.State == model.QueueStatePending {
			item.State = model.QueueStatePaused
			q.bus.State(events.UploadPaused, map[string]any{"video_id": videoID})
			return true
		}
	}
	return false
}

// Resume returns a paused item to pending.
func (q *Queue) Resume(videoID string) bool {
	q.mu.Lock()
	found := false
	for _, item := range q.pending {
		if item.VideoID == videoID && item.State == model.QueueStatePaused {
			item.State = model.QueueStatePending
			found = true
			break
		}
	}
	q.mu.Unlock()

	if found {
		q.bus.State(events.UploadResumed, map[string]any{"video_id": videoID})
		q.processNext()
	}
	return found
}

// Cancel removes a pending item or signals an active worker to stop at its
// next suspension point.
func (q *Queue) Cancel(videoID string) bool {
	q.mu.Lock()
	for i, item := range q.pending {
		if item.VideoID != videoID {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		now := time.Now()
		item.State = model.QueueStateCancelled
		item.CompletedAt = &now
		item.Error = "cancelled"
		q.pushHistoryLocked(item)
		metrics.QueueItemsTotal.WithLabelValues(model.QueueStateCancelled.String()).Inc()
		q.mu.Unlock()
		q.bus.State(events.UploadCancelled, map[string]any{"video_id": videoID})
		return true
	}
	if entry, ok := q.active[videoID]; ok {
		entry.cancel()
		delete(q.active, videoID)
		now := time.Now()
		entry.item.State = model.QueueStateCancelled
		entry.item.CompletedAt = &now
		entry.item.Error = "cancelled"
		q.pushHistoryLocked(entry.item)
		metrics.QueueActive.Set(float64(len(q.active)))
		metrics.QueueItemsTotal.WithLabelValues(model.QueueStateCancelled.String()).Inc()
		q.mu.Unlock()
		q.bus.State(events.UploadCancelled, map[string]any{"video_id": videoID})
		q.processNext()
		return true
	}
	q.mu.Unlock()
	return false
}

// SetPriority changes a pending item's priority; it takes effect at the next
// admission.
func (q *Queue) SetPriority(videoID string, priority int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.pending {
		if item.VideoID == videoID {
			item.Priority = priority
			return true
		}
	}
	return false
}

// PauseAll blocks admission without touching in-flight work.
func (q *Queue) PauseAll() {
	q.mu.Lock()
	q.isPaused = true
	q.mu.Unlock()
	q.bus.State(events.UploadPaused, map[string]any{"all": true})
}

// ResumeAll re-enables admission.
func (q *Queue) ResumeAll() {
	q.mu.Lock()
	q.isPaused = false
	q.mu.Unlock()
	q.bus.State(events.UploadResumed, map[string]any{"all": true})
	q.processNext()
}

// UpdateProgress records worker progress for the status listing.
func (q *Queue) UpdateProgress(videoID string, progress float64, speed, eta string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if entry, ok := q.active[videoID]; ok {
		entry.item.Progress = progress
		entry.item.Speed = speed
		entry.item.ETA = eta
	}
}

// GetStatus snapshots the queue with independent pagination for pending and
// history.
func (q *Queue) GetStatus(f StatusFilter) *Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make([]*model.QueueItem, len(q.pending))
	for i, item := range q.pending {
		cp := *item
		pending[i] = &cp
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].AddedAt.Before(pending[j].AddedAt)
	})

	active := make([]*model.QueueItem, 0, len(q.active))
	for _, entry := range q.active {
		cp := *entry.item
		active = append(active, &cp)
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].AddedAt.Before(active[j].AddedAt)
	})

	history := make([]*model.QueueItem, len(q.history))
	for i, item := range q.history {
		cp := *item
		history[len(q.history)-1-i] = &cp // newest first
	}

	return &Status{
		Pending:      paginateItems(pending, f.PendingPage, f.PendingPerPage),
		Active:       active,
		History:      paginateItems(history, f.HistoryPage, f.HistoryPerPage),
		PendingTotal: len(pending),
		ActiveCount:  len(active),
		HistoryTotal: len(history),
		IsPaused:     q.isPaused,
	}
}

// ClearHistory empties the terminal-state history.
func (q *Queue) ClearHistory() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.history)
	q.history = nil
	return n
}

// ClearAll cancels everything pending and clears history. Active workers
// keep running.
func (q *Queue) ClearAll() int {
	q.mu.Lock()
	n := len(q.pending) + len(q.history)
	q.pending = nil
	q.history = nil
	q.mu.Unlock()
	return n
}

// Shutdown stops admission, cancels active workers and waits for them to
// return. In-flight records remain in uploading and are recovered by the
// stuck-upload reset.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	for _, entry := range q.active {
		entry.cancel()
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func paginateItems(items []*model.QueueItem, page, perPage int) []*model.QueueItem {
	if perPage <= 0 {
		return items
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(items) {
		return []*model.QueueItem{}
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
