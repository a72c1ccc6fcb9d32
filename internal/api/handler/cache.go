package handler

import (
	"net/http"

	"github.com/hszk-dev/mediagate/internal/scraper"
)

// CacheHandler serves the admin scrape-cache endpoints.
type CacheHandler struct {
	cache *scraper.Cache
}

func NewCacheHandler(cache *scraper.Cache) *CacheHandler {
	return &CacheHandler{cache: cache}
}

func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.cache.Clear(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.cache.Stats(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, st)
}
