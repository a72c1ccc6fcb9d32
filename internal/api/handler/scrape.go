package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/mediagate/internal/config"
	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/infrastructure/metrics"
	"github.com/hszk-dev/mediagate/internal/scraper"
	"github.com/hszk-dev/mediagate/internal/usecase"
)

const supportedEngine = "puppeteer"

// ScrapeResponse is returned when the render found a playable video.
type ScrapeResponse struct {
	URL      string   `json:"url"`
	Video    string   `json:"video"`
	APICalls []string `json:"apicalls"`
}

// ScrapeHandler serves GET /apis/scrape/v1/{engine}.
type ScrapeHandler struct {
	cfg      config.Config
	cache    *scraper.Cache
	scraper  *scraper.Scraper
	urls     *usecase.URLService
	videos   *usecase.VideoService
	logger   *slog.Logger
	autoSync func(videoID, sourceURL, videoURL string)
}

func NewScrapeHandler(cfg config.Config, cache *scraper.Cache, sc *scraper.Scraper, urls *usecase.URLService, videos *usecase.VideoService, logger *slog.Logger) *ScrapeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScrapeHandler{
		cfg:     cfg,
		cache:   cache,
		scraper: sc,
		urls:    urls,
		videos:  videos,
		logger:  logger,
	}
}

// SetAutoSync installs the hook fired for each newly discovered video when
// AUTO_SYNC_VIDEOS is enabled.
func (h *ScrapeHandler) SetAutoSync(fn func(videoID, sourceURL, videoURL string)) {
	h.autoSync = fn
}

// Scrape validates the request, renders (or replays from cache), and records
// the outcome in the URL and video trackers.
func (h *ScrapeHandler) Scrape(w http.ResponseWriter, r *http.Request) {
	if engine := chi.URLParam(r, "engine"); engine != supportedEngine {
		Error(w, http.StatusBadRequest, "engine is not supported: "+engine)
		return
	}

	query, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		Error(w, http.StatusBadRequest, "malformed query encoding")
		return
	}

	opts, reason, errMsg := parseScrapeOptions(query, h.cfg.Server.APIKey)
	if reason != "" {
		h.logger.Warn("scrape request rejected", slog.String("reason", reason))
		Error(w, http.StatusBadRequest, errMsg)
		return
	}

	rec, err := h.urls.Create(r.Context(), opts.URL)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := h.urls.MarkProcessing(r.Context(), rec.ID); err != nil {
		h.logger.Warn("failed to mark url processing", slog.String("error", err.Error()))
	}

	timeout := h.cfg.Browser.Timeout
	if opts.TimeoutMS > 0 {
		timeout = time.Duration(opts.TimeoutMS) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	key := scraper.Fingerprint(*opts)
	raw, hit, err := h.cache.GetOrRender(ctx, key, func(ctx context.Context) (string, error) {
		res, err := h.scraper.Render(ctx, *opts)
		if err != nil {
			return "", err
		}
		h.recordVideo(res, opts.URL)
		return scraper.EncodePayload(scraper.Payload{
			Body:     renderBody(res),
			Title:    res.Title,
			VideoURL: res.VideoURL,
			APICalls: res.APICalls,
			IsImage:  res.IsImage,
		})
	})
	if err != nil {
		h.failScrape(w, r, rec.ID, err)
		return
	}

	payload := scraper.DecodePayload(raw)
	result := scraper.ResultFor(payload, hit)
	if _, err := h.urls.Complete(r.Context(), rec.ID, result, key); err != nil {
		h.logger.Warn("failed to complete url record", slog.String("error", err.Error()))
	}

	cacheLabel := metrics.CacheStatusMiss
	if hit {
		cacheLabel = metrics.CacheStatusHit
	}
	metrics.ScrapeRequestsTotal.WithLabelValues("done", cacheLabel).Inc()

	w.Header().Set("X-Cache", strings.ToUpper(cacheLabel))
	switch {
	case payload.VideoURL != "" && !payload.IsImage:
		JSON(w, http.StatusOK, ScrapeResponse{
			URL:      opts.URL,
			Video:    payload.VideoURL,
			APICalls: payload.APICalls,
		})
	default:
		w.Header().Set("Content-Type", contentTypeFor(payload))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(payload.Body))
	}
}

func renderBody(res *scraper.Result) string {
	if res.IsImage {
		return res.Base64
	}
	return res.HTML
}

func contentTypeFor(p scraper.Payload) string {
	if p.IsImage {
		return "text/plain; charset=utf-8"
	}
	return "text/html; charset=utf-8"
}

func (h *ScrapeHandler) failScrape(w http.ResponseWriter, r *http.Request, recID string, cause error) {
	if _, err := h.urls.Fail(r.Context(), recID, cause.Error()); err != nil {
		h.logger.Warn("failed to record scrape error", slog.String("error", err.Error()))
	}
	metrics.ScrapeRequestsTotal.WithLabelValues("error", metrics.CacheStatusMiss).Inc()

	if errors.Is(cause, context.DeadlineExceeded) {
		Error(w, http.StatusGatewayTimeout, "render did not finish before the deadline")
		return
	}
	Error(w, http.StatusInternalServerError, cause.Error())
}

// recordVideo registers the selected video (if any) with the tracker and
// fires the auto-sync hook for new records.
func (h *ScrapeHandler) recordVideo(res *scraper.Result, sourceURL string) {
	if res.VideoURL == "" || res.IsImage {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sources := []model.VideoSource{{URL: res.VideoURL, IsHLS: res.IsHLS, MimeType: res.MimeType}}
	rec, created, err := h.videos.AddVideo(ctx, sourceURL, res.VideoURL, sources)
	if err != nil {
		h.logger.Warn("failed to record discovered video",
			slog.String("source_url", sourceURL),
			slog.String("error", err.Error()),
		)
		return
	}
	if created && h.cfg.Server.AutoSyncVideos && h.autoSync != nil && rec.Status == model.VideoStatusPending {
		h.autoSync(rec.ID, sourceURL, res.VideoURL)
	}
}

// parseScrapeOptions validates every query parameter per the API contract.
// The literal value "default" is treated as unset. Returns a non-empty error
// code on validation failure.
func parseScrapeOptions(query url.Values, apiKey string) (*scraper.Options, string, string) {
	get := func(name string) string {
		v := query.Get(name)
		if v == "default" {
			return ""
		}
		return v
	}

	if query.Get("apikey") != apiKey {
		return nil, "invalid_api_key", "API key is required"
	}

	rawURL := get("url")
	if rawURL == "" {
		return nil, "missing_url", "url is required"
	}
	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return nil, "invalid_url", "url must be an absolute http or https URL"
	}

	opts := &scraper.Options{
		URL:       rawURL,
		UserAgent: get("custom_user_agent"),
		ProxyURL:  get("proxy_url"),
		ProxyAuth: get("proxy_auth"),
		Eval:      get("eval"),
	}

	if raw := get("custom_cookies"); raw != "" {
		cookies, err := parseCookies(raw)
		if err != nil {
			return nil, "invalid_cookies", err.Error()
		}
		opts.Cookies = cookies
	}

	auth := get("user_pass")
	if auth == "" {
		auth = get("basic_auth")
	}
	if auth != "" {
		if !strings.Contains(auth, ":") {
			return nil, "invalid_auth", "user_pass must be username:password"
		}
		opts.BasicAuth = auth
	}

	if raw := get("timeout"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, "invalid_timeout", "timeout must be a positive integer (milliseconds)"
		}
		opts.TimeoutMS = n
	}

	if raw := get("cleanup"); raw != "" {
		switch raw {
		case "true":
			opts.Cleanup = true
		case "false":
		default:
			return nil, "invalid_cleanup", "cleanup must be true or false"
		}
	}

	if raw := get("delay"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, "invalid_delay", "delay must be a non-negative integer (milliseconds)"
		}
		opts.Delay = n
	}

	if raw := get("localstorage"); raw != "" {
		opts.LocalStorage = parsePairs(raw)
	}

	return opts, "", ""
}

// parseCookies accepts either a JSON object of name:value or a
// name=value;name=value string.
func parseCookies(raw string) (map[string]string, error) {
	if strings.HasPrefix(strings.TrimSpace(raw), "{") {
		var m map[string]string
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, errors.New("custom_cookies JSON must be an object of name:value")
		}
		return m, nil
	}
	out := make(map[string]string)
	for _, seg := range strings.Split(raw, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		name, value, ok := strings.Cut(seg, "=")
		if !ok {
			return nil, errors.New("each cookie segment must be name=value")
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return out, nil
}

func parsePairs(raw string) map[string]string {
	out := make(map[string]string)
	for _, seg := range strings.Split(raw, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if k, v, ok := strings.Cut(seg, "="); ok {
			out[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return out
}
