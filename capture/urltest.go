package capture

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kernelkaribou/timelapse-manager/models"
)

// TestResult is the outcome of a one-shot URL probe.
type TestResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ImageData string `json:"image_data,omitempty"`
	ImageSize int64  `json:"image_size,omitempty"`
}

// TestURL grabs a single frame from a candidate stream URL so the user can
// preview it before creating a job. The frame never touches permanent
// storage.
func TestURL(ctx context.Context, capturer Framegrabber, url string, timeout time.Duration) TestResult {
	streamType, err := models.StreamTypeForURL(url)
	if err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}

	tmpPath := filepath.Join(os.TempDir(), "urltest_"+uuid.New().String()+".jpg")
	defer os.Remove(tmpPath)

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := capturer.Capture(probeCtx, url, streamType, tmpPath); err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil || len(data) == 0 {
		return TestResult{Success: false, Message: "captured frame is empty"}
	}

	return TestResult{
		Success:   true,
		Message:   "Stream reachable",
		ImageData: base64.StdEncoding.EncodeToString(data),
		ImageSize: int64(len(data)),
	}
}

// Framegrabber matches the scheduler's Capturer contract.
type Framegrabber interface {
	Capture(ctx context.Context, url string, streamType models.StreamType, destPath string) error
}
