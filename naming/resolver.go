// Package naming renders capture and video file paths from job metadata,
// sequence numbers, and timestamps.
package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kernelkaribou/timelapse-manager/models"
)

const (
	// DefaultCapturePattern names capture files; {num} is zero-padded to six digits.
	DefaultCapturePattern = "{job_name}_capture{num}_{timestamp}"
	// DefaultVideoPattern names encoded video files.
	DefaultVideoPattern = "{job_name}_{created_timestamp}"
)

const timestampLayout = "20060102_150405"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SanitizeName normalizes a job name so it is safe to use in file paths.
func SanitizeName(name string) string {
	s := unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "job"
	}
	return s
}

// Resolver renders destination paths for captures and videos.
type Resolver struct {
	VideosDir string
}

// CapturePath returns the destination for one capture: the job's capture
// directory plus a year/month/day/hour hierarchy and the rendered filename.
func (r *Resolver) CapturePath(job *models.Job, seq int64, capturedAt time.Time) string {
	pattern := job.NamingPattern
	if pattern == "" {
		pattern = DefaultCapturePattern
	}

	ts := capturedAt.Format(timestampLayout)
	name := strings.NewReplacer(
		"{job_name}", SanitizeName(job.Name),
		"{num}", fmt.Sprintf("%06d", seq),
		"{timestamp}", ts,
		"{created_timestamp}", ts,
	).Replace(pattern)

	datePath := filepath.Join(
		job.CapturePath,
		fmt.Sprintf("%04d", capturedAt.Year()),
		fmt.Sprintf("%02d", capturedAt.Month()),
		fmt.Sprintf("%02d", capturedAt.Day()),
		fmt.Sprintf("%02d", capturedAt.Hour()),
	)
	return filepath.Join(datePath, name+".jpg")
}

// VideoPath returns the destination for an encoded video.
func (r *Resolver) VideoPath(job *models.Job, name string, createdAt time.Time) string {
	ts := createdAt.Format(timestampLayout)
	base := strings.NewReplacer(
		"{job_name}", SanitizeName(job.Name),
		"{created_timestamp}", ts,
		"{timestamp}", ts,
	).Replace(DefaultVideoPattern)
	if name != "" {
		base = SanitizeName(name) + "_" + ts
	}
	return filepath.Join(r.VideosDir, base+".mp4")
}
