package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/mediagate/internal/uploader"
	"github.com/hszk-dev/mediagate/internal/usecase"
)

// QueueHandler serves the admin upload-queue endpoints.
type QueueHandler struct {
	queue *uploader.Queue
	sync  *usecase.SyncService
}

func NewQueueHandler(queue *uploader.Queue, sync *usecase.SyncService) *QueueHandler {
	return &QueueHandler{queue: queue, sync: sync}
}

func (h *QueueHandler) Status(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	st := h.queue.GetStatus(uploader.StatusFilter{
		PendingPage:    atoiOr(q.Get("pending_page"), 1),
		PendingPerPage: atoiOr(q.Get("pending_per_page"), 50),
		HistoryPage:    atoiOr(q.Get("history_page"), 1),
		HistoryPerPage: atoiOr(q.Get("history_per_page"), 50),
	})
	JSON(w, http.StatusOK, st)
}

type queueAddRequest struct {
	VideoID  string   `json:"video_id"`
	IDs      []string `json:"ids,omitempty"`
	Priority int      `json:"priority"`
	Title    string   `json:"title,omitempty"`
}

func (h *QueueHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req queueAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (req.VideoID == "" && len(req.IDs) == 0) {
		Error(w, http.StatusBadRequest, "video_id is required")
		return
	}
	opts := uploader.AddOptions{Priority: req.Priority, Title: req.Title}
	if req.VideoID != "" {
		pos, err := h.queue.Add(req.VideoID, opts)
		if err != nil {
			Error(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		JSON(w, http.StatusAccepted, map[string]any{"queued": true, "position": pos})
		return
	}
	added, err := h.queue.AddMany(req.IDs, opts)
	if err != nil {
		Error(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	JSON(w, http.StatusAccepted, map[string]int{"queued": added})
}

func (h *QueueHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.itemAction(w, r, h.queue.Pause)
}

func (h *QueueHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.itemAction(w, r, h.queue.Resume)
}

func (h *QueueHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.itemAction(w, r, h.queue.Cancel)
}

func (h *QueueHandler) itemAction(w http.ResponseWriter, r *http.Request, fn func(string) bool) {
	id := chi.URLParam(r, "id")
	if !fn(id) {
		Error(w, http.StatusNotFound, "queue item not found or not in an applicable state")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type priorityRequest struct {
	Priority int `json:"priority"`
}

func (h *QueueHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	var req priorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "priority is required")
		return
	}
	if !h.queue.SetPriority(chi.URLParam(r, "id"), req.Priority) {
		Error(w, http.StatusNotFound, "queue item not found")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *QueueHandler) PauseAll(w http.ResponseWriter, r *http.Request) {
	h.queue.PauseAll()
	JSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (h *QueueHandler) ResumeAll(w http.ResponseWriter, r *http.Request) {
	h.queue.ResumeAll()
	JSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	n := h.queue.ClearAll()
	JSON(w, http.StatusOK, map[string]int{"cleared": n})
}

// ResetAll empties the queue and returns every uploading record to pending.
func (h *QueueHandler) ResetAll(w http.ResponseWriter, r *http.Request) {
	cleared := h.queue.ClearAll()
	reset, err := h.sync.ResetStuckUploads(r.Context(), 0)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]int{"cleared": cleared, "reset": reset})
}
