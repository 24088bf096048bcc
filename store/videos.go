package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kernelkaribou/timelapse-manager/models"
)

const videoColumns = `id, job_id, name, file_path, file_size, resolution, framerate,
	quality, start_time, end_time, total_frames, duration_seconds,
	status, progress, error_message, created_at, completed_at`

func scanVideo(row pgx.Row) (*models.Video, error) {
	v := &models.Video{}
	err := row.Scan(
		&v.ID, &v.JobID, &v.Name, &v.FilePath, &v.FileSize, &v.Resolution, &v.Framerate,
		&v.Quality, &v.StartTime, &v.EndTime, &v.TotalFrames, &v.DurationSeconds,
		&v.Status, &v.Progress, &v.ErrorMessage, &v.CreatedAt, &v.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// CreateVideo inserts a new build row at status queued.
func (s *Store) CreateVideo(ctx context.Context, v *models.Video) error {
	v.ID = uuid.New().String()
	v.Status = models.VideoQueued
	return s.db.QueryRow(ctx, `
		INSERT INTO videos (id, job_id, name, file_path, resolution, framerate, quality, start_time, end_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at
	`, v.ID, v.JobID, v.Name, v.FilePath, v.Resolution, v.Framerate, v.Quality, v.StartTime, v.EndTime,
	).Scan(&v.CreatedAt)
}

// GetVideo returns one build by ID, or ErrNotFound.
func (s *Store) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	return scanVideo(s.db.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
}

// ListVideos returns builds, optionally filtered by job, newest first.
func (s *Store) ListVideos(ctx context.Context, jobID string) ([]models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos`
	args := []any{}
	if jobID != "" {
		query += ` WHERE job_id = $1`
		args = append(args, jobID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

// SetVideoProcessing moves a build to processing with the resolved frame count.
func (s *Store) SetVideoProcessing(ctx context.Context, id string, totalFrames int) error {
	_, err := s.db.Exec(ctx,
		`UPDATE videos SET status = $2, total_frames = $3 WHERE id = $1`,
		id, models.VideoProcessing, totalFrames)
	return err
}

// SetVideoProgress persists an encode progress fraction (0.0-1.0). The
// GREATEST guard keeps observed progress monotonically non-decreasing even
// if updates land out of order.
func (s *Store) SetVideoProgress(ctx context.Context, id string, progress float64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE videos SET progress = GREATEST(progress, $2) WHERE id = $1`,
		id, progress)
	return err
}

// CompleteVideo records a finished encode.
func (s *Store) CompleteVideo(ctx context.Context, id string, fileSize int64, totalFrames int, durationSeconds float64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE videos SET
			status = $2, progress = 1, file_size = $3, total_frames = $4,
			duration_seconds = $5, completed_at = NOW()
		WHERE id = $1
	`, id, models.VideoCompleted, fileSize, totalFrames, durationSeconds)
	return err
}

// FailVideo marks a build failed with a reason.
func (s *Store) FailVideo(ctx context.Context, id, reason string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE videos SET status = $2, error_message = $3, completed_at = NOW() WHERE id = $1`,
		id, models.VideoFailed, reason)
	return err
}

// DeleteVideo removes a build row, returning its file path for disk cleanup.
func (s *Store) DeleteVideo(ctx context.Context, id string) (string, error) {
	var filePath string
	err := s.db.QueryRow(ctx,
		`DELETE FROM videos WHERE id = $1 RETURNING file_path`, id,
	).Scan(&filePath)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return filePath, err
}
