package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kernelkaribou/timelapse-manager/models"
)

// ListCaptures returns a job's captures ordered by capture time ascending,
// optionally restricted to the half-open range [start, end).
func (s *Store) ListCaptures(ctx context.Context, jobID string, start, end *time.Time) ([]models.Capture, error) {
	query := `SELECT id, job_id, file_path, file_size, captured_at FROM captures WHERE job_id = $1`
	args := []any{jobID}
	if start != nil {
		args = append(args, *start)
		query += ` AND captured_at >= $2`
	}
	if end != nil {
		args = append(args, *end)
		if start != nil {
			query += ` AND captured_at < $3`
		} else {
			query += ` AND captured_at < $2`
		}
	}
	query += ` ORDER BY captured_at ASC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []models.Capture
	for rows.Next() {
		var c models.Capture
		if err := rows.Scan(&c.ID, &c.JobID, &c.FilePath, &c.FileSize, &c.CapturedAt); err != nil {
			return nil, err
		}
		captures = append(captures, c)
	}
	return captures, rows.Err()
}

// GetCapture returns one capture by ID, or ErrNotFound.
func (s *Store) GetCapture(ctx context.Context, id int64) (*models.Capture, error) {
	c := &models.Capture{}
	err := s.db.QueryRow(ctx,
		`SELECT id, job_id, file_path, file_size, captured_at FROM captures WHERE id = $1`, id,
	).Scan(&c.ID, &c.JobID, &c.FilePath, &c.FileSize, &c.CapturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// DeleteCapture removes one capture and rolls its size out of the owning
// job's counters in the same transaction. Returns the file path so the
// caller can delete the image from disk.
func (s *Store) DeleteCapture(ctx context.Context, id int64) (string, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var jobID, filePath string
	var fileSize int64
	err = tx.QueryRow(ctx,
		`DELETE FROM captures WHERE id = $1 RETURNING job_id, file_path, file_size`, id,
	).Scan(&jobID, &filePath, &fileSize)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobs SET
			capture_count = capture_count - 1,
			storage_size = storage_size - $2,
			updated_at = NOW()
		WHERE id = $1
	`, jobID, fileSize)
	if err != nil {
		return "", err
	}

	return filePath, tx.Commit(ctx)
}
