// Package api assembles the HTTP surface: the public scrape endpoint, the
// admin API, and operational endpoints.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hszk-dev/mediagate/internal/api/handler"
	"github.com/hszk-dev/mediagate/internal/api/middleware"
)

// Handlers carries every handler the router mounts.
type Handlers struct {
	Scrape    *handler.ScrapeHandler
	URLs      *handler.URLHandler
	Videos    *handler.VideoHandler
	Queue     *handler.QueueHandler
	Storage   *handler.StorageHandler
	Cache     *handler.CacheHandler
	Dashboard *handler.DashboardHandler
	Logs      *handler.LogsHandler
	Health    http.HandlerFunc
}

// NewRouter wires the full route tree.
func NewRouter(logger *slog.Logger, h Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/apis/scrape/v1/{engine}", h.Scrape.Scrape)

	r.Route("/admin/api", func(r chi.Router) {
		r.Get("/dashboard", h.Dashboard.Dashboard)
		r.Get("/browsers", h.Dashboard.Browsers)

		r.Route("/urls", func(r chi.Router) {
			r.Get("/", h.URLs.List)
			r.Post("/bulk-delete", h.URLs.BulkDelete)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.URLs.Get)
				r.Delete("/", h.URLs.Delete)
				r.Post("/cancel", h.URLs.Cancel)
				r.Post("/rescrape", h.URLs.Rescrape)
				r.Get("/response", h.URLs.Response)
			})
		})

		r.Route("/videos", func(r chi.Router) {
			r.Get("/", h.Videos.List)
			r.Post("/", h.Videos.Add)
			r.Get("/stats", h.Videos.Stats)
			r.Get("/export", h.Videos.Export)
			r.Post("/sync-all", h.Videos.SyncAll)
			r.Post("/bulk-sync", h.Videos.BulkSync)
			r.Post("/bulk-reupload", h.Videos.BulkReupload)
			r.Post("/bulk-delete", h.Videos.BulkDelete)
			r.Post("/retry-failed", h.Videos.RetryFailed)
			r.Post("/reset-stuck", h.Videos.ResetStuck)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Videos.Get)
				r.Put("/", h.Videos.Update)
				r.Delete("/", h.Videos.Delete)
				r.Post("/sync", h.Videos.Sync)
				r.Post("/reupload", h.Videos.Reupload)
				r.Get("/download", h.Videos.Download)
			})
		})

		r.Route("/upload-queue", func(r chi.Router) {
			r.Get("/status", h.Queue.Status)
			r.Post("/add", h.Queue.Add)
			r.Post("/pause-all", h.Queue.PauseAll)
			r.Post("/resume-all", h.Queue.ResumeAll)
			r.Post("/clear", h.Queue.Clear)
			r.Post("/reset-all", h.Queue.ResetAll)
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/pause", h.Queue.Pause)
				r.Post("/resume", h.Queue.Resume)
				r.Post("/cancel", h.Queue.Cancel)
				r.Post("/priority", h.Queue.SetPriority)
			})
		})

		r.Route("/storage", func(r chi.Router) {
			r.Get("/status", h.Storage.Status)
			r.Post("/test", h.Storage.Test)
			r.Post("/scan", h.Storage.Scan)
			r.Get("/reconcile", h.Storage.Reconcile)
			r.Get("/orphans", h.Storage.Orphans)
			r.Post("/orphans/import", h.Storage.ImportOrphan)
			r.Post("/orphans/bulk-import", h.Storage.BulkImportOrphans)
			r.Post("/orphans/bulk-delete", h.Storage.BulkDeleteOrphans)
			r.Post("/fix-missing", h.Storage.FixMissing)
			r.Post("/clear-cache", h.Storage.ClearCache)
		})

		r.Route("/cache", func(r chi.Router) {
			r.Post("/clear", h.Cache.Clear)
			r.Get("/stats", h.Cache.Stats)
		})

		r.Get("/logs/stream", h.Logs.Stream)
	})

	return r
}
