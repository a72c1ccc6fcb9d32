package downloader

import (
	"context"
	"fmt"
	"time"

	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// Codecs that indicate a still image wrapped in a video container. Downloads
// decoding to one of these are treated as failed scrapes.
var imageCodecs = map[string]bool{
	"png":   true,
	"mjpeg": true,
	"jpeg":  true,
	"gif":   true,
	"bmp":   true,
	"webp":  true,
}

const (
	probeTimeout  = 30 * time.Second
	minDimension  = 10
	invalidPrefix = "not a valid video"
)

// ValidateVideoFile confirms the downloaded file contains a real video
// stream: a decodable video track with plausible dimensions and a non-image
// codec.
func ValidateVideoFile(ctx context.Context, path string) error {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	data, err := ffprobe.ProbeURL(probeCtx, path)
	if err != nil {
		return fmt.Errorf("%s: ffprobe failed: %w", invalidPrefix, err)
	}

	stream := data.FirstVideoStream()
	if stream == nil {
		return fmt.Errorf("%s: no video stream found", invalidPrefix)
	}
	if stream.Width < minDimension || stream.Height < minDimension {
		return fmt.Errorf("%s: implausible dimensions %dx%d", invalidPrefix, stream.Width, stream.Height)
	}
	if imageCodecs[stream.CodecName] {
		return fmt.Errorf("%s: image codec %s", invalidPrefix, stream.CodecName)
	}
	return nil
}
