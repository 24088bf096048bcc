package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kernelkaribou/timelapse-manager/models"
)

func stateJob(status models.JobStatus) *models.Job {
	return &models.Job{
		ID:              "job-1",
		Name:            "front-door",
		Status:          status,
		StartAt:         time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		IntervalSeconds: 60,
	}
}

func TestTransitionDisabledAndCompletedAreSkipped(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, status := range []models.JobStatus{models.StatusDisabled, models.StatusCompleted} {
		job := stateJob(status)
		// even a passed end time must not touch a disabled job this tick
		end := now.Add(-time.Hour)
		job.EndAt = &end

		got, eligible := Transition(job, now)
		assert.Equal(t, status, got)
		assert.False(t, eligible)
	}
}

func TestTransitionEndReachedCompletes(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	job := stateJob(models.StatusActive)
	end := now.Add(-time.Second)
	job.EndAt = &end

	got, eligible := Transition(job, now)
	assert.Equal(t, models.StatusCompleted, got)
	assert.False(t, eligible, "completing tick dispatches no capture")

	// exact boundary: now == end means ended
	job = stateJob(models.StatusActive)
	job.EndAt = &now
	got, _ = Transition(job, now)
	assert.Equal(t, models.StatusCompleted, got)
}

func TestTransitionScheduledActivatesAtStart(t *testing.T) {
	job := stateJob(models.StatusScheduled)

	got, eligible := Transition(job, job.StartAt.Add(-time.Minute))
	assert.Equal(t, models.StatusScheduled, got)
	assert.False(t, eligible)

	got, eligible = Transition(job, job.StartAt)
	assert.Equal(t, models.StatusActive, got)
	assert.True(t, eligible)
}

func TestTransitionWindowSleepAndWake(t *testing.T) {
	job := stateJob(models.StatusActive)
	job.WindowEnabled = true
	job.WindowStart = "08:00"
	job.WindowEnd = "20:00"

	got, eligible := Transition(job, time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC))
	assert.Equal(t, models.StatusSleeping, got)
	assert.False(t, eligible)

	job.Status = models.StatusSleeping
	got, eligible = Transition(job, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, models.StatusActive, got)
	assert.True(t, eligible)
}

func TestTransitionActiveStaysActive(t *testing.T) {
	job := stateJob(models.StatusActive)
	got, eligible := Transition(job, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, models.StatusActive, got)
	assert.True(t, eligible)
}

func TestNextDue(t *testing.T) {
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	interval := time.Minute

	t.Run("normal advance", func(t *testing.T) {
		next := NextDue(base, interval, base.Add(10*time.Second))
		assert.Equal(t, base.Add(time.Minute), next)
	})

	t.Run("skips missed slots instead of replaying them", func(t *testing.T) {
		now := base.Add(5*time.Minute + 30*time.Second)
		next := NextDue(base, interval, now)
		assert.Equal(t, base.Add(6*time.Minute), next)
		assert.True(t, next.After(now))
	})

	t.Run("stays on the grid anchored at the previous due time", func(t *testing.T) {
		// latency of 3s must not shift the grid
		next := NextDue(base, interval, base.Add(3*time.Second))
		assert.Equal(t, base.Add(time.Minute), next)
		next = NextDue(next, interval, next.Add(7*time.Second))
		assert.Equal(t, base.Add(2*time.Minute), next)
	})
}
