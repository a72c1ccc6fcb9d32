package storage

import (
	"strings"
	"testing"
)

func TestObjectKeyWithPrefix_Deterministic(t *testing.T) {
	a := ObjectKeyWithPrefix("videos/", "https://cdn.example.com/clip.mp4")
	b := ObjectKeyWithPrefix("videos/", "https://cdn.example.com/clip.mp4")
	if a != b {
		t.Errorf("same URL produced different keys: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "videos/clip-") || !strings.HasSuffix(a, ".mp4") {
		t.Errorf("unexpected key shape: %q", a)
	}
}

func TestObjectKeyWithPrefix_QueryStripped(t *testing.T) {
	plain := ObjectKeyWithPrefix("", "https://cdn.example.com/clip.mp4")
	signed := ObjectKeyWithPrefix("", "https://cdn.example.com/clip.mp4?token=abc&expires=999")
	fragment := ObjectKeyWithPrefix("", "https://cdn.example.com/clip.mp4#t=30")
	if plain != signed || plain != fragment {
		t.Errorf("query/fragment must not change the key: %q %q %q", plain, signed, fragment)
	}
}

func TestObjectKeyWithPrefix_Sanitize(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantBase string
	}{
		{
			name:     "uppercase and spaces",
			url:      "https://cdn.example.com/My%20Great%20Video.mp4",
			wantBase: "my-great-video",
		},
		{
			name:     "special characters collapsed",
			url:      "https://cdn.example.com/v!!@@deo.mp4",
			wantBase: "v-deo",
		},
		{
			name:     "no filename falls back",
			url:      "https://cdn.example.com/",
			wantBase: "video",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := ObjectKeyWithPrefix("", tt.url)
			if !strings.HasPrefix(key, tt.wantBase+"-") {
				t.Errorf("key %q does not start with base %q", key, tt.wantBase)
			}
		})
	}
}

func TestObjectKeyWithPrefix_HLSBecomesMP4(t *testing.T) {
	key := ObjectKeyWithPrefix("", "https://cdn.example.com/stream/master.m3u8")
	if !strings.HasSuffix(key, ".mp4") {
		t.Errorf("HLS manifest must map to .mp4, got %q", key)
	}
	if !strings.HasPrefix(key, "master-") {
		t.Errorf("expected manifest name as base, got %q", key)
	}
}

func TestObjectKeyWithPrefix_LongNameCapped(t *testing.T) {
	long := strings.Repeat("a", 300)
	key := ObjectKeyWithPrefix("", "https://cdn.example.com/"+long+".mp4")
	base := strings.TrimSuffix(key, ".mp4")
	// base-hash: 100 chars of name, a dash, and the 12-char digest.
	if len(base) > maxKeyNameLen+1+keyHashLen {
		t.Errorf("key base too long: %d chars", len(base))
	}
}

func TestObjectKeyWithPrefix_DifferentURLsDiffer(t *testing.T) {
	a := ObjectKeyWithPrefix("", "https://cdn.example.com/a/clip.mp4")
	b := ObjectKeyWithPrefix("", "https://cdn.example.com/b/clip.mp4")
	if a == b {
		t.Error("distinct paths must hash to distinct keys")
	}
}
