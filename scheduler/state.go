package scheduler

import (
	"time"

	"github.com/kernelkaribou/timelapse-manager/models"
)

// Transition evaluates the job status state machine for one tick and
// returns the status the job should hold at the given instant, plus
// whether the job is eligible for capture dispatch this tick.
//
// Rules, in order: disabled and completed jobs are skipped outright; a job
// past its end time completes; a scheduled job whose start has arrived
// activates; a job outside its enabled time window sleeps (and wakes when
// the window reopens). Only a job landing on active is dispatch-eligible.
func Transition(job *models.Job, now time.Time) (models.JobStatus, bool) {
	if job.Status == models.StatusDisabled || job.Status == models.StatusCompleted {
		return job.Status, false
	}

	if job.Ended(now) {
		return models.StatusCompleted, false
	}

	status := job.Status
	if status == models.StatusScheduled {
		if now.Before(job.StartAt) {
			return models.StatusScheduled, false
		}
		status = models.StatusActive
	}

	if job.WindowEnabled {
		start, err1 := ParseClockTime(job.WindowStart)
		end, err2 := ParseClockTime(job.WindowEnd)
		if err1 == nil && err2 == nil {
			if !InWindow(now, start, end) {
				return models.StatusSleeping, false
			}
			// window permits capture; a sleeping job wakes up
			status = models.StatusActive
		}
	}

	return status, status == models.StatusActive
}

// NextDue advances a schedule-aligned due time past now. Stepping from the
// previous due time rather than from now keeps the capture grid anchored
// to the job's start and prevents drift from accumulating out of
// processing latency. Missed slots are skipped, not replayed.
func NextDue(prev time.Time, interval time.Duration, now time.Time) time.Time {
	next := prev.Add(interval)
	if next.After(now) {
		return next
	}
	missed := now.Sub(prev) / interval
	next = prev.Add((missed + 1) * interval)
	return next
}
