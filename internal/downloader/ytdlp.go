package downloader

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// downloadWithTools fetches an HLS/DASH stream with yt-dlp, falling back to
// ffmpeg when yt-dlp exits non-zero. Partial output is removed between
// attempts and the wall-clock timeout kills the child process.
func (d *Downloader) downloadWithTools(ctx context.Context, mediaURL, referer string) (*Result, error) {
	dest := filepath.Join(d.cfg.TempDir, uuid.NewString()+".mp4")

	toolCtx := ctx
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	ytErr := d.runYTDLP(toolCtx, mediaURL, referer, dest)
	if ytErr == nil {
		return d.statResult(dest)
	}
	removePartials(dest)
	d.logger.Warn("yt-dlp failed, falling back to ffmpeg",
		slog.String("url", mediaURL),
		slog.String("error", ytErr.Error()),
	)

	if ffErr := d.runFFmpeg(toolCtx, mediaURL, referer, dest); ffErr != nil {
		removePartials(dest)
		return nil, fmt.Errorf("stream download failed: yt-dlp: %v; ffmpeg: %w", ytErr, ffErr)
	}
	return d.statResult(dest)
}

func (d *Downloader) statResult(dest string) (*Result, error) {
	fi, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("download produced no output: %w", err)
	}
	if fi.Size() == 0 {
		os.Remove(dest)
		return nil, fmt.Errorf("download produced empty output")
	}
	if fi.Size() > d.cfg.MaxSizeBytes() {
		os.Remove(dest)
		return nil, fmt.Errorf("%w: stream produced %d bytes", ErrTooLarge, fi.Size())
	}
	return &Result{Path: dest, Size: fi.Size(), ContentType: "video/mp4"}, nil
}

func (d *Downloader) runYTDLP(ctx context.Context, mediaURL, referer, dest string) error {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--concurrent-fragments", strconv.Itoa(orDefault(d.ytdlp.ConcurrentFragments, 4)),
		"--retries", strconv.Itoa(orDefault(d.ytdlp.Retries, 3)),
		"--fragment-retries", strconv.Itoa(orDefault(d.ytdlp.FragmentRetries, 5)),
		"--socket-timeout", strconv.Itoa(orDefault(d.ytdlp.SocketTimeout, 20)),
		"--user-agent", d.cfg.UserAgent,
		"-o", dest,
	}
	if referer != "" {
		args = append(args, "--referer", referer)
	}
	if d.ytdlp.Downloader == "aria2c" {
		args = append(args,
			"--downloader", "aria2c",
			"--downloader-args",
			fmt.Sprintf("aria2c:-x %d", orDefault(d.ytdlp.Aria2cConnections, 4)),
		)
	}
	args = append(args, mediaURL)
	return runTool(ctx, "yt-dlp", args)
}

func (d *Downloader) runFFmpeg(ctx context.Context, mediaURL, referer, dest string) error {
	args := []string{
		"-y",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-protocol_whitelist", "file,http,https,tcp,tls,crypto",
		"-user_agent", d.cfg.UserAgent,
	}
	if referer != "" {
		args = append(args, "-referer", referer)
	}
	args = append(args,
		"-i", mediaURL,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		dest,
	)
	return runTool(ctx, "ffmpeg", args)
}

// runTool executes an external downloader. exec.CommandContext kills the
// child when the context fires; WaitDelay escalates to SIGKILL if it lingers.
func runTool(ctx context.Context, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := lastLine(stderr.String())
		if ctx.Err() != nil {
			return fmt.Errorf("%s timed out: %w", name, ctx.Err())
		}
		if msg != "" {
			return fmt.Errorf("%s failed: %s", name, msg)
		}
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

func removePartials(dest string) {
	os.Remove(dest)
	matches, _ := filepath.Glob(dest + "*")
	for _, m := range matches {
		os.Remove(m)
	}
}

func lastLine(s string) string {
	var line string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				line = s[start:i]
			}
			start = i + 1
		}
	}
	if start < len(s) {
		line = s[start:]
	}
	return line
}

func orDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
