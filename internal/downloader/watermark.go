package downloader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// drawtext anchor expressions by configured position.
var watermarkPositions = map[string]string{
	"topleft":     "x=10:y=10",
	"topright":    "x=w-tw-10:y=10",
	"bottomleft":  "x=10:y=h-th-10",
	"bottomright": "x=w-tw-10:y=h-th-10",
	"center":      "x=(w-tw)/2:y=(h-th)/2",
}

// applyWatermark re-encodes the file with a drawtext overlay and returns the
// new path. Callers treat errors as soft and keep the original file.
func (d *Downloader) applyWatermark(ctx context.Context, path string) (string, error) {
	pos, ok := watermarkPositions[d.watermark.Position]
	if !ok {
		pos = watermarkPositions["bottomright"]
	}
	filter := fmt.Sprintf(
		"drawtext=text='%s':fontsize=%d:fontcolor=white@%.2f:%s",
		escapeDrawtext(d.watermark.Text),
		d.watermark.FontSize,
		d.watermark.Opacity,
		pos,
	)

	ext := filepath.Ext(path)
	out := strings.TrimSuffix(path, ext) + ".wm" + ext
	args := []string{
		"-y",
		"-i", path,
		"-vf", filter,
		"-c:a", "copy",
		out,
	}
	if err := runTool(ctx, "ffmpeg", args); err != nil {
		removePartials(out)
		return "", err
	}
	return out, nil
}

// escapeDrawtext quotes the characters drawtext treats specially.
func escapeDrawtext(text string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(text)
}
