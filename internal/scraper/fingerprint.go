package scraper

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const cacheKeyPrefix = "cache:"

// Options carries everything that affects a render. The fields marked as
// fingerprinted determine the cache identity; presentation-only knobs
// (cleanup, delay, localstorage, eval) deliberately do not.
type Options struct {
	URL          string
	UserAgent    string
	Cookies      map[string]string
	BasicAuth    string // "username:password"
	TimeoutMS    int
	ProxyURL     string
	ProxyAuth    string
	Delay        int // milliseconds
	LocalStorage map[string]string
	Eval         string
	Cleanup      bool
}

// Fingerprint returns the canonical cache key for a request: a stable JSON
// encoding of the identity-relevant options, hashed and prefixed. json.Marshal
// sorts map keys, which gives the canonical ordering for free.
func Fingerprint(o Options) string {
	cookies, _ := json.Marshal(o.Cookies)
	canonical, _ := json.Marshal(map[string]any{
		"url":               o.URL,
		"custom_user_agent": o.UserAgent,
		"custom_cookies":    string(cookies),
		"user_pass":         o.BasicAuth,
		"timeout":           fmt.Sprintf("%d", o.TimeoutMS),
		"proxy_url":         o.ProxyURL,
		"proxy_auth":        o.ProxyAuth,
	})
	sum := sha256.Sum256(canonical)
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
