// Package capture grabs single frames from HTTP snapshot endpoints and
// RTSP streams using ffmpeg.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kernelkaribou/timelapse-manager/models"
)

// FFmpegCapturer shells out to ffmpeg for one frame per attempt. RTSP
// sources are forced over TCP, which survives lossy networks far better
// than the UDP default.
type FFmpegCapturer struct {
	BinPath string
}

// NewFFmpegCapturer returns a capturer using the ffmpeg binary on PATH.
func NewFFmpegCapturer() *FFmpegCapturer {
	return &FFmpegCapturer{BinPath: "ffmpeg"}
}

// Capture writes a single JPEG frame from the stream to destPath. The
// context bounds the whole attempt; exceeding it is reported as a timeout
// failure, never a hang.
func (c *FFmpegCapturer) Capture(ctx context.Context, url string, streamType models.StreamType, destPath string) error {
	args := []string{"-loglevel", "error"}
	if streamType == models.StreamRTSP {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args, "-i", url, "-frames:v", "1", "-q:v", "2", "-y", destPath)

	cmd := exec.CommandContext(ctx, c.BinPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		label := "HTTP"
		if streamType == models.StreamRTSP {
			label = "RTSP"
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s error: connection timeout", label)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s error: %s", label, firstLine(msg))
		}
		return fmt.Errorf("%s error: stream unreachable or invalid", label)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
