package models

import "time"

// VideoStatus represents the lifecycle of one video build request
type VideoStatus string

const (
	VideoQueued     VideoStatus = "queued"
	VideoProcessing VideoStatus = "processing"
	VideoCompleted  VideoStatus = "completed"
	VideoFailed     VideoStatus = "failed"
)

// Video represents one request to assemble an ordered capture subset
// into an encoded video, and its result.
type Video struct {
	ID              string      `json:"id"`
	JobID           string      `json:"job_id"`
	Name            string      `json:"name"`
	FilePath        string      `json:"file_path"`
	FileSize        int64       `json:"file_size"`
	Resolution      string      `json:"resolution"`
	Framerate       int         `json:"framerate"`
	Quality         string      `json:"quality"`
	StartTime       *time.Time  `json:"start_time,omitempty"`
	EndTime         *time.Time  `json:"end_time,omitempty"`
	TotalFrames     int         `json:"total_frames"`
	DurationSeconds float64     `json:"duration_seconds"`
	Status          VideoStatus `json:"status"`
	Progress        float64     `json:"progress"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}
