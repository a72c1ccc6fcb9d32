// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mediagate"

var (
	// ScrapeRequestsTotal tracks scrape API requests.
	// Labels:
	//   - status: done, error, cancelled
	//   - cache: hit, miss
	ScrapeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_requests_total",
			Help:      "Total number of scrape requests",
		},
		[]string{"status", "cache"},
	)

	// CacheOperationsTotal tracks scrape-cache operations.
	// Labels:
	//   - operation: get, set, delete, clear
	//   - status: hit, miss, success, error
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of scrape cache operations",
		},
		[]string{"operation", "status"},
	)

	// SingleflightRequestsTotal tracks render coalescing behavior.
	// Labels:
	//   - result: initiated (new render), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight render requests",
		},
		[]string{"result"},
	)

	// BrowsersLive is the number of live browser instances in the pool.
	BrowsersLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browsers_live",
			Help:      "Number of live browser instances in the pool",
		},
	)

	// PagesAcquiredTotal counts pages handed out by the pool.
	PagesAcquiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_acquired_total",
			Help:      "Total number of pages handed out by the browser pool",
		},
	)

	// BrowsersRotatedTotal counts browser rotations (TTL or page budget).
	BrowsersRotatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "browsers_rotated_total",
			Help:      "Total number of browser rotations",
		},
	)

	// QueueItemsTotal counts upload-queue item transitions.
	// Labels:
	//   - state: completed, failed, cancelled
	QueueItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_items_total",
			Help:      "Total number of upload queue items by terminal state",
		},
		[]string{"state"},
	)

	// QueueActive is the number of currently active upload workers.
	QueueActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_active",
			Help:      "Number of active upload queue workers",
		},
	)

	// DownloadBytesTotal counts bytes downloaded by the direct downloader.
	DownloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Total bytes downloaded",
		},
	)
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
	CacheOpClear  = "clear"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
