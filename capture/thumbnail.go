package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// thumbnail width in pixels; height follows the source aspect ratio
const thumbnailWidth = 320

// FFmpegThumbnailer writes scaled-down previews next to stored captures.
type FFmpegThumbnailer struct {
	BinPath string
}

// NewFFmpegThumbnailer returns a thumbnailer using the ffmpeg binary on PATH.
func NewFFmpegThumbnailer() *FFmpegThumbnailer {
	return &FFmpegThumbnailer{BinPath: "ffmpeg"}
}

// GenerateThumbnail writes a 320px-wide copy of imagePath into a
// .thumbnails directory beside it.
func (t *FFmpegThumbnailer) GenerateThumbnail(ctx context.Context, imagePath string) error {
	thumbDir := filepath.Join(filepath.Dir(imagePath), ".thumbnails")
	if err := os.MkdirAll(thumbDir, 0755); err != nil {
		return fmt.Errorf("create thumbnail directory: %w", err)
	}
	thumbPath := filepath.Join(thumbDir, filepath.Base(imagePath))

	cmd := exec.CommandContext(ctx, t.BinPath,
		"-loglevel", "error",
		"-i", imagePath,
		"-vf", fmt.Sprintf("scale=%d:-1", thumbnailWidth),
		"-y", thumbPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("thumbnail ffmpeg: %v: %s", err, out)
	}
	return nil
}
