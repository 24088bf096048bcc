package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kernelkaribou/timelapse-manager/models"
)

const jobColumns = `id, name, url, stream_type, start_datetime, end_datetime,
	interval_seconds, framerate, status, capture_path, naming_pattern,
	capture_count, storage_size, warning_message,
	time_window_enabled, COALESCE(time_window_start, ''), COALESCE(time_window_end, ''),
	next_capture_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	j := &models.Job{}
	err := row.Scan(
		&j.ID, &j.Name, &j.URL, &j.StreamType, &j.StartAt, &j.EndAt,
		&j.IntervalSeconds, &j.Framerate, &j.Status, &j.CapturePath, &j.NamingPattern,
		&j.CaptureCount, &j.StorageSize, &j.WarningMessage,
		&j.WindowEnabled, &j.WindowStart, &j.WindowEnd,
		&j.NextCaptureAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// CreateJob inserts a new job. The ID, status, and initial next-capture
// time are assigned here: jobs starting in the future are created as
// scheduled, everything else as active, and the capture grid is anchored
// at the start time.
func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	job.ID = uuid.New().String()
	if job.Status == "" {
		job.Status = models.StatusActive
		if job.StartAt.After(time.Now()) {
			job.Status = models.StatusScheduled
		}
	}
	next := job.StartAt
	job.NextCaptureAt = &next

	query := `
		INSERT INTO jobs (
			id, name, url, stream_type, start_datetime, end_datetime,
			interval_seconds, framerate, status, capture_path, naming_pattern,
			time_window_enabled, time_window_start, time_window_end, next_capture_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at
	`
	return s.db.QueryRow(ctx, query,
		job.ID, job.Name, job.URL, job.StreamType, job.StartAt, job.EndAt,
		job.IntervalSeconds, job.Framerate, job.Status, job.CapturePath, job.NamingPattern,
		job.WindowEnabled, nullIfEmpty(job.WindowStart), nullIfEmpty(job.WindowEnd), job.NextCaptureAt,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

// GetJob returns a job by ID, or ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(s.db.QueryRow(ctx, query, id))
}

// ListJobs returns all jobs, optionally filtered by status, newest first.
func (s *Store) ListJobs(ctx context.Context, status models.JobStatus) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	return s.queryJobs(ctx, query, args...)
}

// ListCandidates returns the jobs the scheduler evaluates each tick.
// Completed and disabled jobs never transition on their own and are
// excluded; a re-enabled job reappears on the next tick.
func (s *Store) ListCandidates(ctx context.Context) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status <> $1 AND status <> $2 ORDER BY created_at ASC`
	return s.queryJobs(ctx, query, models.StatusCompleted, models.StatusDisabled)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]models.Job, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// JobUpdate carries the user-editable fields of a job; nil means unchanged.
type JobUpdate struct {
	Name            *string
	URL             *string
	StreamType      *models.StreamType
	StartAt         *time.Time
	EndAt           *time.Time
	ClearEnd        bool
	IntervalSeconds *int
	Framerate       *int
	Status          *models.JobStatus
	WindowEnabled   *bool
	WindowStart     *string
	WindowEnd       *string
}

// UpdateJob applies a partial user edit inside a row-locked transaction so
// it cannot interleave with a scheduler write for the same job. Returns
// the updated job.
func (s *Store) UpdateJob(ctx context.Context, id string, upd JobUpdate) (*models.Job, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		job.Name = *upd.Name
	}
	if upd.URL != nil {
		job.URL = *upd.URL
	}
	if upd.StreamType != nil {
		job.StreamType = *upd.StreamType
	}
	scheduleChanged := false
	if upd.StartAt != nil {
		job.StartAt = *upd.StartAt
		scheduleChanged = true
	}
	if upd.ClearEnd {
		job.EndAt = nil
	} else if upd.EndAt != nil {
		job.EndAt = upd.EndAt
	}
	if upd.IntervalSeconds != nil {
		if *upd.IntervalSeconds < models.MinIntervalSeconds {
			return nil, fmt.Errorf("interval must be at least %d seconds", models.MinIntervalSeconds)
		}
		job.IntervalSeconds = *upd.IntervalSeconds
	}
	if upd.Framerate != nil {
		job.Framerate = *upd.Framerate
	}
	if upd.WindowEnabled != nil {
		job.WindowEnabled = *upd.WindowEnabled
	}
	if upd.WindowStart != nil {
		job.WindowStart = *upd.WindowStart
	}
	if upd.WindowEnd != nil {
		job.WindowEnd = *upd.WindowEnd
	}
	if upd.Status != nil {
		job.Status = *upd.Status
		if *upd.Status == models.StatusCompleted {
			// "complete now" pins the end time to the present
			now := time.Now()
			job.EndAt = &now
			job.WarningMessage = nil
		}
	}
	if job.EndAt != nil && !job.EndAt.After(job.StartAt) {
		return nil, fmt.Errorf("end time must be after start time")
	}
	if scheduleChanged {
		// re-anchor the capture grid at the new start
		next := job.StartAt
		job.NextCaptureAt = &next
	}

	query := `
		UPDATE jobs SET
			name = $2, url = $3, stream_type = $4, start_datetime = $5, end_datetime = $6,
			interval_seconds = $7, framerate = $8, status = $9,
			time_window_enabled = $10, time_window_start = $11, time_window_end = $12,
			next_capture_at = $13, warning_message = $14, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err = tx.QueryRow(ctx, query,
		job.ID, job.Name, job.URL, job.StreamType, job.StartAt, job.EndAt,
		job.IntervalSeconds, job.Framerate, job.Status,
		job.WindowEnabled, nullIfEmpty(job.WindowStart), nullIfEmpty(job.WindowEnd),
		job.NextCaptureAt, job.WarningMessage,
	).Scan(&job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return job, tx.Commit(ctx)
}

// DeleteJob removes a job. Captures cascade at the schema level; the
// returned paths let the caller remove files from disk when cascading.
func (s *Store) DeleteJob(ctx context.Context, id string, cascadeCaptures bool) ([]string, error) {
	var paths []string
	if cascadeCaptures {
		rows, err := s.db.Query(ctx, `SELECT file_path FROM captures WHERE job_id = $1`, id)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				return nil, err
			}
			paths = append(paths, p)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return paths, nil
}

// SetJobStatus moves a job from the status the caller observed to a new
// one. The write is a compare-and-set: a row whose status changed since
// the observation is left alone and ErrConflict is returned, so a stale
// scheduler tick can never overwrite a concurrent user edit. Completion
// also clears the warning, matching the behavior on reaching the end time.
func (s *Store) SetJobStatus(ctx context.Context, id string, from, to models.JobStatus) error {
	query := `UPDATE jobs SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	if to == models.StatusCompleted {
		query = `UPDATE jobs SET status = $3, warning_message = NULL, updated_at = NOW() WHERE id = $1 AND status = $2`
	}
	tag, err := s.db.Exec(ctx, query, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// SetNextCapture sets the job's schedule-aligned due time.
func (s *Store) SetNextCapture(ctx context.Context, id string, next time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE jobs SET next_capture_at = $2, updated_at = NOW() WHERE id = $1`, id, next)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordCapture persists one successful capture atomically: insert the
// capture row, bump the job's counters, clear any warning, and advance the
// due time. Returns ErrNotFound when the job vanished mid-attempt so the
// caller can treat it as a no-op.
func (s *Store) RecordCapture(ctx context.Context, jobID, filePath string, fileSize int64, capturedAt, nextDue time.Time) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE jobs SET
			capture_count = capture_count + 1,
			storage_size = storage_size + $2,
			warning_message = NULL,
			next_capture_at = $3,
			updated_at = NOW()
		WHERE id = $1
	`, jobID, fileSize, nextDue)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotFound
	}

	var captureID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO captures (job_id, file_path, file_size, captured_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, jobID, filePath, fileSize, capturedAt).Scan(&captureID)
	if err != nil {
		return 0, err
	}

	return captureID, tx.Commit(ctx)
}

// RecordFailure notes a failed capture attempt: the warning message is set
// and the due time advances, nothing else changes.
func (s *Store) RecordFailure(ctx context.Context, jobID, warning string, nextDue time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs SET warning_message = $2, next_capture_at = $3, updated_at = NOW()
		WHERE id = $1
	`, jobID, warning, nextDue)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
