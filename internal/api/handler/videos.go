package handler

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/uploader"
	"github.com/hszk-dev/mediagate/internal/usecase"
)

// VideoHandler serves the admin video-tracker endpoints.
type VideoHandler struct {
	videos *usecase.VideoService
	sync   *usecase.SyncService
	queue  *uploader.Queue
	stuck  time.Duration
}

func NewVideoHandler(videos *usecase.VideoService, sync *usecase.SyncService, queue *uploader.Queue, stuckTimeout time.Duration) *VideoHandler {
	return &VideoHandler{videos: videos, sync: sync, queue: queue, stuck: stuckTimeout}
}

type videoListResponse struct {
	Videos []*model.VideoRecord `json:"videos"`
	Total  int                  `json:"total"`
}

func (h *VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := usecase.VideoListFilter{
		Status:   q.Get("status"),
		Search:   q.Get("search"),
		SortDesc: q.Get("sort") != "asc",
		Page:     atoiOr(q.Get("page"), 1),
		PerPage:  atoiOr(q.Get("per_page"), 50),
	}
	if t, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		f.From = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		f.To = &t
	}

	records, total, err := h.videos.List(r.Context(), f)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, videoListResponse{Videos: records, Total: total})
}

func (h *VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.videos.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		videoError(w, err)
		return
	}
	JSON(w, http.StatusOK, rec)
}

type addVideoRequest struct {
	SourceURL string              `json:"source_url"`
	VideoURL  string              `json:"video_url"`
	Sources   []model.VideoSource `json:"sources,omitempty"`
}

// Add handles POST /admin/api/videos (manual add with auto-import).
func (h *VideoHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoURL == "" {
		Error(w, http.StatusBadRequest, "video_url is required")
		return
	}
	rec, created, err := h.videos.AddVideo(r.Context(), req.SourceURL, req.VideoURL, req.Sources)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	JSON(w, status, rec)
}

type updateVideoRequest struct {
	SourceURL *string `json:"source_url,omitempty"`
	VideoURL  *string `json:"video_url,omitempty"`
}

func (h *VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rec, err := h.videos.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		videoError(w, err)
		return
	}
	if req.SourceURL != nil {
		rec.SourceURL = *req.SourceURL
	}
	if req.VideoURL != nil {
		rec.VideoURL = *req.VideoURL
		rec.PrimaryVideoURL = *req.VideoURL
	}
	if err := h.videos.Update(r.Context(), rec); err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, rec)
}

func (h *VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	deleteFromStorage := r.URL.Query().Get("delete_from_storage") == "true"
	if err := h.videos.Delete(r.Context(), chi.URLParam(r, "id"), deleteFromStorage); err != nil {
		videoError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// Sync handles POST /admin/api/videos/{id}/sync: the pipeline runs through
// the upload queue.
func (h *VideoHandler) Sync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.videos.GetByID(r.Context(), id)
	if err != nil {
		videoError(w, err)
		return
	}
	pos, err := h.queue.Add(id, uploader.AddOptions{
		Priority:  atoiOr(r.URL.Query().Get("priority"), 1),
		SourceURL: rec.SourceURL,
		VideoURL:  rec.VideoURL,
	})
	if err != nil {
		Error(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	JSON(w, http.StatusAccepted, map[string]any{"queued": true, "position": pos})
}

// Reupload handles POST /admin/api/videos/{id}/reupload.
func (h *VideoHandler) Reupload(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	rec, err := h.sync.ReuploadVideo(r.Context(), chi.URLParam(r, "id"), force)
	if err != nil {
		if errors.Is(err, model.ErrNotReuploadable) {
			Error(w, http.StatusConflict, err.Error())
			return
		}
		videoError(w, err)
		return
	}
	JSON(w, http.StatusOK, rec)
}

func (h *VideoHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.sync.SyncAllPending(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusAccepted, map[string]int{"dispatched": n})
}

type bulkVideoRequest struct {
	IDs   []string `json:"ids"`
	Force bool     `json:"force,omitempty"`
}

func (h *VideoHandler) BulkSync(w http.ResponseWriter, r *http.Request) {
	var req bulkVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		Error(w, http.StatusBadRequest, "ids is required")
		return
	}
	n, err := h.sync.SyncMany(r.Context(), req.IDs, 0)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusAccepted, map[string]int{"dispatched": n})
}

func (h *VideoHandler) BulkReupload(w http.ResponseWriter, r *http.Request) {
	var req bulkVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		Error(w, http.StatusBadRequest, "ids is required")
		return
	}
	n, err := h.sync.ReuploadMany(r.Context(), req.IDs, req.Force)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusAccepted, map[string]int{"dispatched": n})
}

type bulkDeleteVideosRequest struct {
	IDs               []string `json:"ids"`
	DeleteFromStorage bool     `json:"delete_from_storage,omitempty"`
}

func (h *VideoHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteVideosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		Error(w, http.StatusBadRequest, "ids is required")
		return
	}
	deleted, err := h.videos.DeleteMany(r.Context(), req.IDs, req.DeleteFromStorage)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *VideoHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	skipProtected := r.URL.Query().Get("skip_protected") != "false"
	n, err := h.sync.RetryAllFailed(r.Context(), skipProtected)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusAccepted, map[string]int{"retried": n})
}

func (h *VideoHandler) ResetStuck(w http.ResponseWriter, r *http.Request) {
	n, err := h.sync.ResetStuckUploads(r.Context(), h.stuck)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]int{"reset": n})
}

// Download redirects to the stored object for a synced video.
func (h *VideoHandler) Download(w http.ResponseWriter, r *http.Request) {
	rec, err := h.videos.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		videoError(w, err)
		return
	}
	if rec.S3URL == "" {
		Error(w, http.StatusConflict, "video has no stored object")
		return
	}
	http.Redirect(w, r, rec.S3URL, http.StatusFound)
}

// Export handles GET /admin/api/videos/export?format=csv|json.
func (h *VideoHandler) Export(w http.ResponseWriter, r *http.Request) {
	records, _, err := h.videos.List(r.Context(), usecase.VideoListFilter{
		Status:   r.URL.Query().Get("status"),
		SortDesc: true,
	})
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	if r.URL.Query().Get("format") == "json" {
		w.Header().Set("Content-Disposition", `attachment; filename="videos.json"`)
		JSON(w, http.StatusOK, records)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="videos.csv"`)
	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "status", "source_url", "video_url", "s3_url", "size", "created_at", "synced_at", "error"})
	for _, rec := range records {
		syncedAt := ""
		if rec.SyncedAt != nil {
			syncedAt = rec.SyncedAt.Format(time.RFC3339Nano)
		}
		cw.Write([]string{
			rec.ID,
			string(rec.Status),
			rec.SourceURL,
			rec.VideoURL,
			rec.S3URL,
			fmt.Sprintf("%d", rec.DownloadSize),
			rec.CreatedAt.Format(time.RFC3339Nano),
			syncedAt,
			rec.Error,
		})
	}
	cw.Flush()
}

// Stats handles GET /admin/api/videos/stats.
func (h *VideoHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.videos.Stats(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, st)
}

func videoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrVideoNotFound):
		Error(w, http.StatusNotFound, "video record not found")
	case errors.Is(err, repository.ErrStorageNotConfigured):
		Error(w, http.StatusBadRequest, "object storage is not configured")
	case errors.Is(err, usecase.ErrSyncInProgress):
		Error(w, http.StatusConflict, err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}
