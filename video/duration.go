package video

import "fmt"

// framerates offered in duration estimates
var estimateFramerates = []int{15, 24, 30, 60}

// DurationCalculation is the estimated video length at one framerate.
type DurationCalculation struct {
	FPS               int     `json:"fps"`
	DurationSeconds   float64 `json:"duration_seconds"`
	DurationFormatted string  `json:"duration_formatted"`
}

// DurationEstimate lists estimated video lengths for a capture count.
type DurationEstimate struct {
	Captures     int64                 `json:"captures"`
	Calculations []DurationCalculation `json:"calculations"`
}

// EstimateDuration reports how long a video built from the given number of
// captures would run at common framerates.
func EstimateDuration(captures int64) DurationEstimate {
	est := DurationEstimate{Captures: captures}
	for _, fps := range estimateFramerates {
		seconds := float64(captures) / float64(fps)
		est.Calculations = append(est.Calculations, DurationCalculation{
			FPS:               fps,
			DurationSeconds:   seconds,
			DurationFormatted: FormatDuration(seconds),
		})
	}
	return est
}

// FormatDuration renders seconds as a short human-readable string,
// e.g. "1h 4m 30s", "2m 5s", "45.5s".
func FormatDuration(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
