package downloader

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hszk-dev/mediagate/internal/config"
	"github.com/hszk-dev/mediagate/internal/events"
)

func newTestDownloader(t *testing.T) *Downloader {
	t.Helper()
	cfg := config.UploadConfig{
		MaxSizeMB: 1,
		TempDir:   t.TempDir(),
		UserAgent: "test-agent",
	}
	return New(cfg, config.YTDLPConfig{}, config.WatermarkConfig{}, events.NewBus(), nil)
}

func TestValidateTargetURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public https", "https://cdn.example.com/v.mp4", false},
		{"public ipv4", "http://93.184.216.34/v.mp4", false},
		{"public dns resolver", "http://8.8.8.8/v.mp4", false},
		{"ftp scheme", "ftp://cdn.example.com/v.mp4", true},
		{"file scheme", "file:///etc/passwd", true},
		{"localhost", "http://localhost:8080/v.mp4", true},
		{"loopback", "http://127.0.0.1/v.mp4", true},
		{"loopback high", "http://127.8.8.8/v.mp4", true},
		{"rfc1918 10/8", "http://10.0.0.5/v.mp4", true},
		{"rfc1918 172.16/12", "http://172.16.0.1/v.mp4", true},
		{"rfc1918 192.168/16", "http://192.168.1.10/v.mp4", true},
		{"link local", "http://169.254.169.254/latest/meta-data", true},
		{"this-network", "http://0.0.0.0/v.mp4", true},
		{"ipv6 loopback", "http://[::1]/v.mp4", true},
		{"ipv6 link local", "http://[fe80::1]/v.mp4", true},
		{"172.32 is public", "http://172.32.0.1/v.mp4", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTargetURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected rejection for %s", tt.url)
				}
				return
			}
			// Hostname cases may fail resolution in sandboxed environments;
			// only blocked-target errors count as failures.
			if errors.Is(err, ErrBlockedTarget) {
				t.Errorf("unexpected block for %s: %v", tt.url, err)
			}
		})
	}
}

func TestDownloadDirect_RejectsInternalTarget(t *testing.T) {
	d := newTestDownloader(t)
	_, err := d.downloadDirect(context.Background(), "http://127.0.0.1:9/v.mp4", "", nil)
	if !errors.Is(err, ErrBlockedTarget) {
		t.Errorf("expected ErrBlockedTarget, got %v", err)
	}
}

func TestCopyBounded(t *testing.T) {
	d := newTestDownloader(t)
	ctx := context.Background()

	var dst bytes.Buffer
	n, err := d.copyBounded(ctx, &dst, strings.NewReader("0123456789"), 100, 10, nil)
	if err != nil || n != 10 {
		t.Errorf("copyBounded = %d, %v", n, err)
	}

	dst.Reset()
	_, err = d.copyBounded(ctx, &dst, strings.NewReader(strings.Repeat("x", 50)), 20, 50, nil)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := d.copyBounded(cancelled, &dst, strings.NewReader("abc"), 100, 3, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestReplaceWithWatermarked(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "clip.mp4")
	marked := filepath.Join(dir, "clip.wm.mp4")
	if err := os.WriteFile(original, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(marked, []byte("watermarked"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := &Result{Path: original, Size: 3}
	replaceWithWatermarked(res, marked)

	if res.Path != marked {
		t.Errorf("path = %q, want the marked copy", res.Path)
	}
	if res.Size != int64(len("watermarked")) {
		t.Errorf("size = %d, want %d", res.Size, len("watermarked"))
	}
	if _, err := os.Stat(original); !os.IsNotExist(err) {
		t.Error("unmarked original was not deleted")
	}
}

func TestIsStreamManifest(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/master.m3u8", true},
		{"https://cdn.example.com/master.M3U8?token=x", true},
		{"https://cdn.example.com/index.m3u", true},
		{"https://cdn.example.com/manifest.mpd", true},
		{"https://cdn.example.com/clip.mp4", false},
		{"https://cdn.example.com/page.m3u8.html", false},
	}
	for _, tt := range tests {
		if got := isStreamManifest(tt.url); got != tt.want {
			t.Errorf("isStreamManifest(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
		want        string
	}{
		{"https://cdn.example.com/clip.mp4", "", ".mp4"},
		{"https://cdn.example.com/clip.webm?sig=abc", "", ".webm"},
		{"https://cdn.example.com/stream", "video/webm", ".webm"},
		{"https://cdn.example.com/stream", "video/quicktime", ".mov"},
		{"https://cdn.example.com/stream", "video/mp4", ".mp4"},
		{"https://cdn.example.com/stream", "", ".mp4"},
		{"https://cdn.example.com/v1.2/stream", "", ".mp4"},
	}
	for _, tt := range tests {
		if got := extensionFor(tt.url, tt.contentType); got != tt.want {
			t.Errorf("extensionFor(%q, %q) = %q, want %q", tt.url, tt.contentType, got, tt.want)
		}
	}
}
