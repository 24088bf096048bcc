package models

import "time"

// Capture represents one stored image resulting from a successful capture attempt
type Capture struct {
	ID         int64     `json:"id"`
	JobID      string    `json:"job_id"`
	FilePath   string    `json:"file_path"`
	FileSize   int64     `json:"file_size"`
	CapturedAt time.Time `json:"captured_at"`
}
