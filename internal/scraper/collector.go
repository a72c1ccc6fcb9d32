package scraper

import (
	"context"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hszk-dev/mediagate/internal/domain/model"
)

// Media MIME types that mark a response as a playable candidate.
var mediaMimeTypes = map[string]bool{
	"application/vnd.apple.mpegurl": true,
	"application/x-mpegurl":         true,
	"audio/mpegurl":                 true,
	"application/dash+xml":          true,
}

var mediaExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".m4v":  true,
	".m3u8": true,
	".m3u":  true,
	".mpd":  true,
}

var hlsExtensions = map[string]bool{".m3u8": true, ".m3u": true}

// Collector watches network responses on one page and accumulates video
// candidates plus the XHR/fetch call log returned to scrape clients.
type Collector struct {
	mu         sync.Mutex
	candidates []model.Candidate
	apiCalls   []string
	seen       map[string]bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewCollector attaches to the page's network events. Call Stop before
// reading the results.
func NewCollector(page *rod.Page) *Collector {
	ctx, cancel := context.WithCancel(page.GetContext())
	c := &Collector{
		seen:   make(map[string]bool),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	watched := page.Context(ctx)
	go func() {
		defer close(c.done)
		watched.EachEvent(func(e *proto.NetworkResponseReceived) {
			c.record(e)
		})()
	}()
	return c
}

func (c *Collector) record(e *proto.NetworkResponseReceived) {
	if e.Response == nil {
		return
	}
	url := e.Response.URL
	mime := strings.ToLower(e.Response.MIMEType)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Type {
	case proto.NetworkResourceTypeXHR, proto.NetworkResourceTypeFetch:
		c.apiCalls = append(c.apiCalls, url)
	}

	if !isMediaResponse(url, mime) {
		return
	}
	norm := model.NormalizeMediaURL(url)
	if c.seen[norm] {
		return
	}
	c.seen[norm] = true

	var size int64
	if e.Response.EncodedDataLength > 0 {
		size = int64(e.Response.EncodedDataLength)
	}
	c.candidates = append(c.candidates, model.Candidate{
		URL:             url,
		IsHLS:           isHLSResponse(url, mime),
		MimeType:        mime,
		Size:            size,
		IsPrimaryPlayer: e.Type == proto.NetworkResourceTypeMedia,
	})
}

func isMediaResponse(url, mime string) bool {
	if strings.HasPrefix(mime, "video/") || mediaMimeTypes[mime] {
		return true
	}
	return mediaExtensions[urlExtension(url)]
}

func isHLSResponse(url, mime string) bool {
	if mime == "application/vnd.apple.mpegurl" || mime == "application/x-mpegurl" || mime == "audio/mpegurl" {
		return true
	}
	return hlsExtensions[urlExtension(url)]
}

func urlExtension(rawURL string) string {
	s := strings.ToLower(rawURL)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i:]
	}
	return ""
}

// Stop detaches the event watcher.
func (c *Collector) Stop() {
	c.cancel()
	<-c.done
}

// Candidates returns the collected media candidates in first-seen order.
func (c *Collector) Candidates() []model.Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Candidate, len(c.candidates))
	copy(out, c.candidates)
	return out
}

// APICalls returns the observed XHR and fetch request URLs.
func (c *Collector) APICalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.apiCalls))
	copy(out, c.apiCalls)
	return out
}
