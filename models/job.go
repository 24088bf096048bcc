package models

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current state of a capture job
type JobStatus string

const (
	StatusScheduled JobStatus = "scheduled"
	StatusActive    JobStatus = "active"
	StatusSleeping  JobStatus = "sleeping"
	StatusDisabled  JobStatus = "disabled"
	StatusCompleted JobStatus = "completed"
)

// Terminal reports whether the scheduler should never evaluate the job again.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted
}

// StreamType identifies the transport used to grab frames from a source URL
type StreamType string

const (
	StreamHTTP StreamType = "http"
	StreamRTSP StreamType = "rtsp"
)

// StreamTypeForURL derives the stream type from the URL scheme.
func StreamTypeForURL(url string) (StreamType, error) {
	switch {
	case strings.HasPrefix(url, "rtsp://"):
		return StreamRTSP, nil
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return StreamHTTP, nil
	default:
		return "", fmt.Errorf("unsupported URL scheme: %s", url)
	}
}

// MinIntervalSeconds is the smallest capture interval a job may be configured with.
const MinIntervalSeconds = 10

// Job represents a recurring timelapse capture task against one stream URL
type Job struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	StreamType      StreamType `json:"stream_type"`
	StartAt         time.Time  `json:"start_datetime"`
	EndAt           *time.Time `json:"end_datetime,omitempty"`
	IntervalSeconds int        `json:"interval_seconds"`
	Framerate       int        `json:"framerate"`
	Status          JobStatus  `json:"status"`
	CapturePath     string     `json:"capture_path"`
	NamingPattern   string     `json:"naming_pattern"`
	CaptureCount    int64      `json:"capture_count"`
	StorageSize     int64      `json:"storage_size"`
	WarningMessage  *string    `json:"warning_message,omitempty"`
	WindowEnabled   bool       `json:"time_window_enabled"`
	WindowStart     string     `json:"time_window_start,omitempty"`
	WindowEnd       string     `json:"time_window_end,omitempty"`
	NextCaptureAt   *time.Time `json:"next_capture_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Interval returns the capture interval as a duration.
func (j *Job) Interval() time.Duration {
	return time.Duration(j.IntervalSeconds) * time.Second
}

// Ended reports whether the job's end time has passed at the given instant.
// Open-ended jobs never end on their own.
func (j *Job) Ended(now time.Time) bool {
	return j.EndAt != nil && !now.Before(*j.EndAt)
}
