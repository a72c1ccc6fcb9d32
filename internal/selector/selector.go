// Package selector picks the best media candidate from the network traffic
// observed while rendering a page. Scoring is purely additive; the pipeline
// first filters obvious junk, then scores whatever remains.
package selector

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/hszk-dev/mediagate/internal/domain/model"
)

var adURLPatterns = []string{
	"doubleclick.net",
	"googlesyndication",
	"googleadservices",
	"adservice.",
	"/adsense/",
	"adnxs.com",
	"adsrvr.org",
	"criteo.",
	"taboola.",
	"outbrain.",
	"zedo.com",
	"exoclick",
	"trafficjunky",
	"juicyads",
	"popads",
	"propellerads",
}

var adCDNHosts = []string{
	"ads.",
	"ad.",
	"banners.",
	"track.",
	"tracker.",
	"metrics.",
	"analytics.",
}

var adQueryMarkers = []string{
	"utm_campaign=ad",
	"ad_id=",
	"adunit=",
	"advertiser=",
	"creative_id=",
}

var junkPatterns = []string{
	"blank.mp4",
	"placeholder",
	"dummy",
	"empty.mp4",
	"null.mp4",
	"spacer",
}

var themePathPatterns = []string{
	"/themes/",
	"/player/",
	"/assets/",
	"/static/js/",
	"/skin/",
	"/templates/",
}

var contentPathPatterns = []string{
	"/storage/",
	"/videos/",
	"/uploads/",
	"/media/",
	"/content/",
	"/files/",
}

var suspiciousSubstrings = []string{
	"pixel",
	"beacon",
	"impression",
	"telemetry",
	"sprite",
	"thumb",
}

var trustedCDNHosts = []string{
	"cloudfront.net",
	"akamaized.net",
	"fastly.net",
	"b-cdn.net",
	"bunnycdn",
	"cdn77",
	"keycdn",
}

var genericFilenames = map[string]bool{
	"index":    true,
	"video":    true,
	"file":     true,
	"stream":   true,
	"playlist": true,
	"master":   true,
	"media":    true,
}

// qualityTokens maps quality tokens to raw scores, highest first; the
// contribution is the table value divided by 5 and only the best match
// counts.
var qualityTokens = []struct {
	token string
	score int
}{
	{"2160p", 100},
	{"1440p", 90},
	{"1080p", 80},
	{"720p", 60},
	{"480p", 40},
	{"360p", 25},
	{"240p", 10},
}

var (
	segmentPattern    = regexp.MustCompile(`(?i)(seg-\d+|segment-?\d+|chunk-?\d+|frag-?\d+)`)
	libraryPathRe     = regexp.MustCompile(`/library/\d+/`)
	resolutionSegRe   = regexp.MustCompile(`/(\d{3,4})/`)
	uuidLikeRe        = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	meaningfulSlugRe  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+){2,}$`)
	downloadPathRe    = regexp.MustCompile(`/(dload|download|dl|get)/`)
	videoExtensions   = map[string]bool{".webm": true, ".mov": true, ".avi": true, ".mkv": true, ".m4v": true}
	segmentExtensions = map[string]bool{".ts": true, ".m4s": true}
)

// SelectBest picks one best candidate, or nil when nothing usable remains
// after filtering. Ties break in favor of the first-seen candidate.
func SelectBest(candidates []model.Candidate) *model.Candidate {
	filtered := filter(candidates)
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		c := filtered[0]
		slog.Info("video selected",
			slog.String("url", c.URL),
			slog.Int("score", 0),
			slog.String("reasons", "only candidate"),
		)
		return &c
	}

	best := 0
	bestScore, bestReasons := Score(filtered[0])
	for i := 1; i < len(filtered); i++ {
		score, reasons := Score(filtered[i])
		if score > bestScore {
			best, bestScore, bestReasons = i, score, reasons
		}
	}

	c := filtered[best]
	slog.Info("video selected",
		slog.String("url", c.URL),
		slog.Int("score", bestScore),
		slog.String("reasons", strings.Join(bestReasons, ", ")),
	)
	return &c
}

// filter drops ads, stream segments, blob URLs and MP2T responses, then
// deduplicates by URL with the query string removed.
func filter(candidates []model.Candidate) []model.Candidate {
	seen := make(map[string]bool)
	var out []model.Candidate
	for _, c := range candidates {
		lower := strings.ToLower(c.URL)
		if isAdURL(lower) {
			continue
		}
		if isStreamSegment(lower, c.MimeType) {
			continue
		}
		if strings.HasPrefix(lower, "blob:") {
			continue
		}
		norm := model.NormalizeMediaURL(c.URL)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, c)
	}
	return out
}

func isAdURL(lower string) bool {
	for _, p := range adURLPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func isStreamSegment(lower, mimeType string) bool {
	if strings.EqualFold(mimeType, "video/mp2t") {
		return true
	}
	ext := extOf(lower)
	if segmentExtensions[ext] {
		return true
	}
	return segmentPattern.MatchString(lower)
}

func extOf(lower string) string {
	u, err := url.Parse(lower)
	p := lower
	if err == nil {
		p = u.Path
	}
	if i := strings.LastIndex(p, "."); i >= 0 {
		return p[i:]
	}
	return ""
}

// Score computes the additive score and the list of applied reasons for one
// candidate. Each rule contributes once.
func Score(c model.Candidate) (int, []string) {
	score := 0
	var reasons []string
	add := func(delta int, reason string) {
		score += delta
		reasons = append(reasons, fmt.Sprintf("%s (%+d)", reason, delta))
	}

	lower := strings.ToLower(c.URL)
	u, parseErr := url.Parse(c.URL)
	pathLower := lower
	host := ""
	if parseErr == nil {
		pathLower = strings.ToLower(u.Path)
		host = strings.ToLower(u.Host)
	}
	ext := extOf(lower)

	junk := containsAny(lower, junkPatterns)
	theme := containsAny(pathLower, themePathPatterns)
	if junk {
		add(-100, "junk/placeholder pattern")
	}
	if theme {
		add(-50, "theme/asset path")
	}

	switch {
	case ext == ".mp4" && !junk && !theme:
		add(50, "mp4 extension")
	case ext == ".mp4":
		add(10, "mp4 extension (junk-suspect)")
	case videoExtensions[ext]:
		add(40, "video container extension")
	}

	if ext == ".m3u8" || c.IsHLS {
		add(20, "HLS stream")
	}
	if ext == ".mpd" {
		add(15, "DASH manifest")
	}
	if downloadPathRe.MatchString(pathLower) {
		add(25, "download path")
	}
	if c.IsPrimaryPlayer {
		add(15, "primary player")
	}
	if hostMatchesAny(host, adCDNHosts) {
		add(-80, "ad CDN host")
	}
	if containsAny(lower, adQueryMarkers) {
		add(-60, "ad-network query marker")
	}
	if libraryPathRe.MatchString(pathLower) {
		add(-30, "library path")
	}
	contentPath := containsAny(pathLower, contentPathPatterns)
	if contentPath {
		add(15, "content path")
	}
	for _, q := range qualityTokens {
		if strings.Contains(lower, q.token) {
			add(q.score/5, "quality token "+q.token)
			break
		}
	}
	if m := resolutionSegRe.FindStringSubmatch(pathLower); m != nil {
		add(resolutionLadderScore(m[1]), "resolution segment /"+m[1]+"/")
	}

	filename := filenameOf(pathLower)
	slug := isMeaningfulSlug(filename)
	if n := len(filename) / 20; n > 0 {
		if n > 5 {
			n = 5
		}
		add(n, "filename length")
	}
	if slug {
		add(10, "meaningful slug")
	}
	if genericFilenames[filename] && !slug && !contentPath {
		add(-5, "generic filename")
	}

	if strings.HasPrefix(lower, "blob:") {
		add(-30, "blob URL")
	} else {
		add(10, "fetchable scheme")
	}
	if len(c.URL) < 50 {
		add(-10, "short URL")
	}
	if c.Size > 0 {
		add(3, "declared size")
	}
	if containsAny(host, trustedCDNHosts) {
		add(5, "trusted CDN host")
	}
	if containsAny(lower, suspiciousSubstrings) {
		add(-20, "suspicious substring")
	}

	return score, reasons
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func hostMatchesAny(host string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(host, p) {
			return true
		}
	}
	return false
}

// resolutionLadderScore maps a /NNN(N)/ path segment to 4..20.
func resolutionLadderScore(digits string) int {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 4
	}
	switch {
	case n >= 2160:
		return 20
	case n >= 1080:
		return 16
	case n >= 720:
		return 12
	case n >= 480:
		return 8
	default:
		return 4
	}
}

func filenameOf(pathLower string) string {
	p := pathLower
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	if i := strings.LastIndex(p, "."); i >= 0 {
		p = p[:i]
	}
	return p
}

// isMeaningfulSlug reports long hyphenated names that are not UUIDs.
func isMeaningfulSlug(filename string) bool {
	if len(filename) < 12 || uuidLikeRe.MatchString(filename) {
		return false
	}
	return meaningfulSlugRe.MatchString(filename)
}
