package handler

import (
	"net/http"

	"github.com/hszk-dev/mediagate/internal/browser"
	"github.com/hszk-dev/mediagate/internal/scraper"
	"github.com/hszk-dev/mediagate/internal/uploader"
	"github.com/hszk-dev/mediagate/internal/usecase"
)

// DashboardHandler aggregates counts across every subsystem.
type DashboardHandler struct {
	urls   *usecase.URLService
	videos *usecase.VideoService
	queue  *uploader.Queue
	pool   *browser.Pool
	cache  *scraper.Cache
}

func NewDashboardHandler(urls *usecase.URLService, videos *usecase.VideoService, queue *uploader.Queue, pool *browser.Pool, cache *scraper.Cache) *DashboardHandler {
	return &DashboardHandler{urls: urls, videos: videos, queue: queue, pool: pool, cache: cache}
}

func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	urlStats, err := h.urls.Stats(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	videoStats, err := h.videos.Stats(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	queueStatus := h.queue.GetStatus(uploader.StatusFilter{PendingPerPage: 1, HistoryPerPage: 1})
	poolStats := h.pool.Stats()

	out := map[string]any{
		"urls":   urlStats,
		"videos": videoStats,
		"queue": map[string]any{
			"pending":   queueStatus.PendingTotal,
			"active":    queueStatus.ActiveCount,
			"history":   queueStatus.HistoryTotal,
			"is_paused": queueStatus.IsPaused,
		},
		"browsers": poolStats,
	}
	if cacheStats, err := h.cache.Stats(r.Context()); err == nil {
		out["cache"] = cacheStats
	}
	JSON(w, http.StatusOK, out)
}

// Browsers handles GET /admin/api/browsers (pool process info).
func (h *DashboardHandler) Browsers(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"stats":     h.pool.Stats(),
		"processes": h.pool.ProcessInfo(),
	})
}
