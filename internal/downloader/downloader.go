// Package downloader fetches media to local temp files: direct HTTP for
// plain videos, yt-dlp (with an ffmpeg fallback) for HLS and DASH. Concurrency
// is bounded by a semaphore independent of the upload queue's worker count.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/semaphore"

	"github.com/hszk-dev/mediagate/internal/config"
	"github.com/hszk-dev/mediagate/internal/events"
	"github.com/hszk-dev/mediagate/internal/infrastructure/metrics"
)

var (
	ErrTooLarge      = errors.New("download exceeds configured size limit")
	ErrBlockedTarget = errors.New("target address is not allowed")
)

// ProgressFunc receives byte-level download progress. total is zero when the
// server did not declare a length.
type ProgressFunc func(downloaded, total int64)

// Result describes a completed download.
type Result struct {
	Path        string
	Size        int64
	ContentType string
}

// Downloader owns the shared download semaphore and the external tool
// configuration.
type Downloader struct {
	cfg       config.UploadConfig
	ytdlp     config.YTDLPConfig
	watermark config.WatermarkConfig
	sem       *semaphore.Weighted
	logger    *slog.Logger
	bus       *events.Bus
	client    *http.Client
}

func New(cfg config.UploadConfig, ytdlp config.YTDLPConfig, watermark config.WatermarkConfig, bus *events.Bus, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	maxDownloads := cfg.MaxConcurrentDownloads
	if maxDownloads <= 0 {
		maxDownloads = 2
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil
	rc.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("too many redirects")
			}
			// Every hop gets the same scrutiny as the original target.
			return ValidateTargetURL(req.URL.String())
		},
	}

	return &Downloader{
		cfg:       cfg,
		ytdlp:     ytdlp,
		watermark: watermark,
		sem:       semaphore.NewWeighted(maxDownloads),
		logger:    logger,
		bus:       bus,
		client:    rc.StandardClient(),
	}
}

// Download fetches one media URL to a temp file, validates it with ffprobe,
// and applies the optional watermark. The caller owns the returned file.
func (d *Downloader) Download(ctx context.Context, mediaURL string, isHLS bool, referer string, progress ProgressFunc) (*Result, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire download slot: %w", err)
	}
	defer d.sem.Release(1)

	if err := os.MkdirAll(d.cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	d.bus.State(events.DownloadStart, map[string]any{"url": mediaURL})

	var (
		res *Result
		err error
	)
	if isHLS || isStreamManifest(mediaURL) {
		res, err = d.downloadWithTools(ctx, mediaURL, referer)
	} else {
		res, err = d.downloadDirect(ctx, mediaURL, referer, progress)
	}
	if err != nil {
		d.bus.State(events.DownloadError, map[string]any{"url": mediaURL, "error": err.Error()})
		return nil, err
	}

	if err := ValidateVideoFile(ctx, res.Path); err != nil {
		os.Remove(res.Path)
		d.bus.State(events.DownloadError, map[string]any{"url": mediaURL, "error": err.Error()})
		return nil, err
	}

	if d.watermark.Enabled && d.watermark.Text != "" {
		if marked, werr := d.applyWatermark(ctx, res.Path); werr != nil {
			// Watermarking fails soft: keep the original file.
			d.logger.Warn("watermark failed, keeping original",
				slog.String("path", res.Path),
				slog.String("error", werr.Error()),
			)
		} else {
			replaceWithWatermarked(res, marked)
		}
	}

	d.bus.State(events.DownloadComplete, map[string]any{"url": mediaURL, "size": res.Size})
	return res, nil
}

// replaceWithWatermarked swaps the result to the marked copy and deletes the
// unmarked original so only one temp file survives the download.
func replaceWithWatermarked(res *Result, marked string) {
	os.Remove(res.Path)
	res.Path = marked
	if fi, err := os.Stat(marked); err == nil {
		res.Size = fi.Size()
	}
}

func isStreamManifest(mediaURL string) bool {
	s := strings.ToLower(mediaURL)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return strings.HasSuffix(s, ".m3u8") || strings.HasSuffix(s, ".m3u") || strings.HasSuffix(s, ".mpd")
}

// downloadDirect streams a plain HTTP(S) video to disk enforcing both the
// declared Content-Length and the actual byte count against the size limit.
func (d *Downloader) downloadDirect(ctx context.Context, mediaURL, referer string, progress ProgressFunc) (*Result, error) {
	if err := ValidateTargetURL(mediaURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	maxSize := d.cfg.MaxSizeBytes()
	if resp.ContentLength > 0 && resp.ContentLength > maxSize {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrTooLarge, resp.ContentLength)
	}

	dest := filepath.Join(d.cfg.TempDir, uuid.NewString()+extensionFor(mediaURL, resp.Header.Get("Content-Type")))
	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	written, err := d.copyBounded(ctx, f, resp.Body, maxSize, resp.ContentLength, progress)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return nil, err
	}

	metrics.DownloadBytesTotal.Add(float64(written))
	return &Result{
		Path:        dest,
		Size:        written,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// copyBounded copies until EOF, failing once the accumulator crosses maxSize.
func (d *Downloader) copyBounded(ctx context.Context, dst io.Writer, src io.Reader, maxSize, total int64, progress ProgressFunc) (int64, error) {
	buf := make([]byte, 256*1024)
	var written int64
	lastReport := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > maxSize {
				return written, fmt.Errorf("%w: read %d bytes", ErrTooLarge, written)
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("failed to write temp file: %w", werr)
			}
			if progress != nil && time.Since(lastReport) > time.Second {
				progress(written, total)
				lastReport = time.Now()
			}
		}
		if rerr == io.EOF {
			if progress != nil {
				progress(written, total)
			}
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("failed to read response body: %w", rerr)
		}
	}
}

func extensionFor(mediaURL, contentType string) string {
	s := strings.ToLower(mediaURL)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "."); i >= 0 && len(s)-i <= 5 && !strings.Contains(s[i:], "/") {
		return s[i:]
	}
	switch {
	case strings.Contains(contentType, "webm"):
		return ".webm"
	case strings.Contains(contentType, "quicktime"):
		return ".mov"
	default:
		return ".mp4"
	}
}

var blockedRanges = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
}

// ValidateTargetURL rejects URLs that could reach internal infrastructure:
// non-HTTP schemes, localhost, and private, loopback or link-local addresses.
// Hostnames are checked against every address they resolve to.
func ValidateTargetURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid download url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrBlockedTarget, u.Scheme)
	}
	host := u.Hostname()
	if host == "" || strings.EqualFold(host, "localhost") {
		return fmt.Errorf("%w: %s", ErrBlockedTarget, host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return validateAddr(addr, host)
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	for _, a := range addrs {
		addr, err := netip.ParseAddr(a)
		if err != nil {
			continue
		}
		if err := validateAddr(addr, host); err != nil {
			return err
		}
	}
	return nil
}

func validateAddr(addr netip.Addr, host string) error {
	addr = addr.Unmap()
	for _, p := range blockedRanges {
		if p.Contains(addr) {
			return fmt.Errorf("%w: %s resolves to %s", ErrBlockedTarget, host, addr)
		}
	}
	return nil
}
