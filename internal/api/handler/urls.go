package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/scraper"
	"github.com/hszk-dev/mediagate/internal/usecase"
)

// URLHandler serves the admin URL-tracker endpoints.
type URLHandler struct {
	urls  *usecase.URLService
	cache *scraper.Cache
}

func NewURLHandler(urls *usecase.URLService, cache *scraper.Cache) *URLHandler {
	return &URLHandler{urls: urls, cache: cache}
}

type urlListResponse struct {
	URLs  []*model.URLRecord `json:"urls"`
	Total int                `json:"total"`
}

// List handles GET /admin/api/urls with filter/search/pagination params.
func (h *URLHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := usecase.URLListFilter{
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

	records, total, err := h.urls.List(r.Context(), f)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, urlListResponse{URLs: records, Total: total})
}

func (h *URLHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.urls.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		urlError(w, err)
		return
	}
	JSON(w, http.StatusOK, rec)
}

func (h *URLHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.urls.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		urlError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// Cancel handles POST /admin/api/urls/{id}/cancel; only waiting or
// processing requests can be cancelled.
func (h *URLHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	rec, err := h.urls.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, model.ErrNotCancellable) {
			Error(w, http.StatusConflict, err.Error())
			return
		}
		urlError(w, err)
		return
	}
	JSON(w, http.StatusOK, rec)
}

// Rescrape handles POST /admin/api/urls/{id}/rescrape: the old record is
// replaced with a fresh waiting one for the same URL.
func (h *URLHandler) Rescrape(w http.ResponseWriter, r *http.Request) {
	rec, err := h.urls.Recreate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		urlError(w, err)
		return
	}
	JSON(w, http.StatusCreated, rec)
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

func (h *URLHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		Error(w, http.StatusBadRequest, "ids is required")
		return
	}
	deleted, err := h.urls.DeleteMany(r.Context(), req.IDs)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// Response handles GET /admin/api/urls/{id}/response: replays the cached
// render body for a completed request.
func (h *URLHandler) Response(w http.ResponseWriter, r *http.Request) {
	rec, err := h.urls.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		urlError(w, err)
		return
	}
	if rec.CacheKey == "" {
		Error(w, http.StatusNotFound, "no cached response for this request")
		return
	}
	raw, err := h.cache.Get(r.Context(), rec.CacheKey)
	if err != nil {
		Error(w, http.StatusNotFound, "cached response has expired")
		return
	}
	payload := scraper.DecodePayload(raw)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(payload.Body))
}

func urlError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrURLNotFound) {
		Error(w, http.StatusNotFound, "url record not found")
		return
	}
	Error(w, http.StatusInternalServerError, err.Error())
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
