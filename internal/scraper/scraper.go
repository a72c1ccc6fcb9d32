// Package scraper renders pages through the browser pool, collects the media
// candidates observed on the wire, and caches completed renders by request
// fingerprint.
package scraper

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/hszk-dev/mediagate/internal/browser"
	"github.com/hszk-dev/mediagate/internal/config"
	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/selector"
)

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".svg": true, ".ico": true,
}

const htmlPreviewLength = 500

// Result is one completed render.
type Result struct {
	HTML     string
	Title    string
	VideoURL string
	IsHLS    bool
	MimeType string
	APICalls []string
	IsImage  bool
	Base64   string
}

// Scraper renders URLs with pooled browser pages.
type Scraper struct {
	pool   *browser.Pool
	cfg    config.BrowserConfig
	logger *slog.Logger
	client *http.Client
}

func New(pool *browser.Pool, cfg config.BrowserConfig, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil
	return &Scraper{
		pool:   pool,
		cfg:    cfg,
		logger: logger,
		client: rc.StandardClient(),
	}
}

// Render drives one scrape: image targets are fetched directly and returned
// as base64, everything else goes through a pooled browser page.
func (s *Scraper) Render(ctx context.Context, opts Options) (*Result, error) {
	if IsImageURL(opts.URL) {
		return s.fetchImage(ctx, opts)
	}
	return s.renderPage(ctx, opts)
}

// IsImageURL reports whether the target looks like a static image by its
// path extension.
func IsImageURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	if i := strings.LastIndex(p, "."); i >= 0 {
		return imageExtensions[p[i:]]
	}
	return false
}

// fetchImage bypasses the browser for static images: plain GET, body encoded
// as base64.
func (s *Scraper) fetchImage(ctx context.Context, opts Options) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	if opts.BasicAuth != "" {
		user, pass, _ := strings.Cut(opts.BasicAuth, ":")
		req.SetBasicAuth(user, pass)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 50*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	return &Result{
		IsImage:  true,
		MimeType: resp.Header.Get("Content-Type"),
		Base64:   base64.StdEncoding.EncodeToString(body),
	}, nil
}

func (s *Scraper) renderPage(ctx context.Context, opts Options) (*Result, error) {
	page, err := s.pool.AcquirePage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire page: %w", err)
	}

	destroyed := false
	defer func() {
		if destroyed {
			return
		}
		if opts.Cleanup {
			s.pool.DestroyPage(page)
			return
		}
		s.pool.ReleasePage(page)
	}()

	timeout := s.cfg.Timeout
	if opts.TimeoutMS > 0 {
		timeout = time.Duration(opts.TimeoutMS) * time.Millisecond
	}
	page = page.Context(ctx).Timeout(timeout)

	if err := s.preparePage(page, opts); err != nil {
		destroyed = true
		s.pool.DestroyPage(page)
		return nil, err
	}

	collector := NewCollector(page)
	defer collector.Stop()

	if err := page.Navigate(opts.URL); err != nil {
		destroyed = true
		s.pool.DestroyPage(page)
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		destroyed = true
		s.pool.DestroyPage(page)
		return nil, fmt.Errorf("failed to wait for load: %w", err)
	}

	if err := s.afterLoad(ctx, page, opts); err != nil {
		destroyed = true
		s.pool.DestroyPage(page)
		return nil, err
	}

	html, err := page.HTML()
	if err != nil {
		destroyed = true
		s.pool.DestroyPage(page)
		return nil, fmt.Errorf("failed to read page HTML: %w", err)
	}

	result := &Result{
		HTML:     html,
		Title:    ExtractTitle(html),
		APICalls: collector.APICalls(),
	}
	if best := selector.SelectBest(collector.Candidates()); best != nil {
		result.VideoURL = best.URL
		result.IsHLS = best.IsHLS
		result.MimeType = best.MimeType
	}
	return result, nil
}

// preparePage applies viewport, identity and proxy settings before navigation.
func (s *Scraper) preparePage(page *rod.Page, opts Options) error {
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.ViewportWidth,
		Height:            s.cfg.ViewportHeight,
		DeviceScaleFactor: s.cfg.ViewportScale,
	}); err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}

	if opts.UserAgent != "" {
		err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent})
		if err != nil {
			return fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	if len(opts.Cookies) > 0 {
		target, err := url.Parse(opts.URL)
		if err != nil {
			return fmt.Errorf("failed to parse target url for cookies: %w", err)
		}
		params := make([]*proto.NetworkCookieParam, 0, len(opts.Cookies))
		for name, value := range opts.Cookies {
			params = append(params, &proto.NetworkCookieParam{
				Name:   name,
				Value:  value,
				Domain: target.Hostname(),
				Path:   "/",
			})
		}
		if err := page.SetCookies(params); err != nil {
			return fmt.Errorf("failed to set cookies: %w", err)
		}
	}

	var headers []string
	if opts.BasicAuth != "" {
		headers = append(headers, "Authorization",
			"Basic "+base64.StdEncoding.EncodeToString([]byte(opts.BasicAuth)))
	}
	if len(headers) > 0 {
		if _, err := page.SetExtraHeaders(headers); err != nil {
			return fmt.Errorf("failed to set extra headers: %w", err)
		}
	}

	if opts.ProxyURL != "" {
		if err := s.routeThroughProxy(page, opts); err != nil {
			return err
		}
	}
	return nil
}

// routeThroughProxy hijacks all page requests and replays them through an
// HTTP client bound to the requested proxy. Per-request proxying cannot be
// set on a shared browser, so the traffic is relayed at the CDP layer.
func (s *Scraper) routeThroughProxy(page *rod.Page, opts Options) error {
	proxyURL, err := url.Parse(opts.ProxyURL)
	if err != nil {
		return fmt.Errorf("failed to parse proxy url: %w", err)
	}
	if opts.ProxyAuth != "" {
		user, pass, ok := strings.Cut(opts.ProxyAuth, ":")
		if !ok {
			return fmt.Errorf("proxy_auth must be username:password")
		}
		proxyURL.User = url.UserPassword(user, pass)
	}

	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		Timeout:   s.cfg.Timeout,
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if err := h.LoadResponse(client, true); err != nil {
			h.Response.Fail(proto.NetworkErrorReasonConnectionFailed)
		}
	})
	go router.Run()
	return nil
}

// afterLoad runs the optional post-navigation steps: fixed delay, injected
// localStorage entries (with a reload so the page sees them), then the eval
// snippet.
func (s *Scraper) afterLoad(ctx context.Context, page *rod.Page, opts Options) error {
	if opts.Delay > 0 {
		select {
		case <-time.After(time.Duration(opts.Delay) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if len(opts.LocalStorage) > 0 {
		for k, v := range opts.LocalStorage {
			if _, err := page.Eval(`(k, v) => localStorage.setItem(k, v)`, k, v); err != nil {
				return fmt.Errorf("failed to set localStorage: %w", err)
			}
		}
		if err := page.Reload(); err != nil {
			return fmt.Errorf("failed to reload after localStorage: %w", err)
		}
		if err := page.WaitLoad(); err != nil {
			return fmt.Errorf("failed to wait for reload: %w", err)
		}
	}

	if opts.Eval != "" {
		if _, err := page.Eval(opts.Eval); err != nil {
			s.logger.Warn("eval snippet failed",
				slog.String("url", opts.URL),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// ExtractTitle pulls the document title out of rendered HTML.
func ExtractTitle(html string) string {
	m := titleRe.FindStringSubmatch(html)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// PreviewOf truncates HTML to the stored diagnostic preview length.
func PreviewOf(html string) string {
	if len(html) <= htmlPreviewLength {
		return html
	}
	return html[:htmlPreviewLength]
}

// ResultFor converts a cached render payload into the tracker's summary form.
func ResultFor(p Payload, cached bool) *model.ScrapeResult {
	sr := &model.ScrapeResult{
		HTMLLength:  len(p.Body),
		HTMLPreview: PreviewOf(p.Body),
		Title:       p.Title,
		Cached:      cached,
	}
	if p.VideoURL != "" {
		sr.VideoURLs = []string{p.VideoURL}
	}
	return sr
}
