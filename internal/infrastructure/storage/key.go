package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const (
	keyHashLen    = 12
	maxKeyNameLen = 100
)

var disallowedKeyChars = regexp.MustCompile(`[^a-z0-9._-]+`)
var dashRuns = regexp.MustCompile(`-{2,}`)

// hlsExtensions map to the output container extension because segmented
// streams are assembled into a single file before upload.
var hlsExtensions = map[string]bool{
	".m3u8": true,
	".m3u":  true,
}

const outputExtension = ".mp4"

// normalizeURL strips query and fragment so URLs addressing the same asset
// hash identically. This is the deduplication anchor.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// sanitizeName lowercases, replaces disallowed characters with dashes,
// collapses runs, trims, and caps the length.
func sanitizeName(name string) string {
	name = strings.ToLower(name)
	name = disallowedKeyChars.ReplaceAllString(name, "-")
	name = dashRuns.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if len(name) > maxKeyNameLen {
		name = name[:maxKeyNameLen]
		name = strings.Trim(name, "-")
	}
	return name
}

// ObjectKeyWithPrefix derives the deterministic storage key for a media URL:
// prefix + sanitized filename + "-" + first 12 hex chars of the sha256 of the
// normalized URL + extension. The same input URL always yields the same key.
func ObjectKeyWithPrefix(prefix, rawURL string) string {
	normalized := normalizeURL(rawURL)

	base := "video"
	ext := outputExtension
	if u, err := url.Parse(normalized); err == nil && u.Path != "" {
		filename := path.Base(u.Path)
		if e := path.Ext(filename); e != "" {
			if !hlsExtensions[strings.ToLower(e)] {
				ext = strings.ToLower(e)
			}
			filename = strings.TrimSuffix(filename, e)
		}
		if name := sanitizeName(filename); name != "" {
			base = name
		}
	}

	sum := sha256.Sum256([]byte(normalized))
	digest := hex.EncodeToString(sum[:])[:keyHashLen]

	return prefix + base + "-" + digest + ext
}
