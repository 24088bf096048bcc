// Package store is the Postgres persistence layer. It is the single
// source of truth for job state: user-initiated API writes go through
// row-locked transactions, and scheduler status writes are conditional on
// the status the tick observed, so the two serialize rather than clobber
// each other.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a compare-and-set write finds the row
// changed (or gone) since the caller observed it.
var ErrConflict = errors.New("concurrent modification")

// Store wraps a pgx connection pool with the application's queries.
type Store struct {
	db *pgxpool.Pool
}

// New creates a Store on top of an existing pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Init creates the schema if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			stream_type TEXT NOT NULL,
			start_datetime TIMESTAMPTZ NOT NULL,
			end_datetime TIMESTAMPTZ,
			interval_seconds INTEGER NOT NULL,
			framerate INTEGER NOT NULL DEFAULT 30,
			status TEXT NOT NULL DEFAULT 'active',
			capture_path TEXT NOT NULL,
			naming_pattern TEXT NOT NULL,
			capture_count BIGINT NOT NULL DEFAULT 0,
			storage_size BIGINT NOT NULL DEFAULT 0,
			warning_message TEXT,
			time_window_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			time_window_start TEXT,
			time_window_end TEXT,
			next_capture_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS captures (
			id BIGSERIAL PRIMARY KEY,
			job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			file_path TEXT NOT NULL,
			file_size BIGINT NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS videos (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			file_path TEXT NOT NULL,
			file_size BIGINT NOT NULL DEFAULT 0,
			resolution TEXT NOT NULL,
			framerate INTEGER NOT NULL,
			quality TEXT NOT NULL,
			start_time TIMESTAMPTZ,
			end_time TIMESTAMPTZ,
			total_frames INTEGER NOT NULL DEFAULT 0,
			duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'queued',
			progress DOUBLE PRECISION NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_captures_job_id ON captures(job_id, captured_at)`,
		`CREATE INDEX IF NOT EXISTS idx_videos_job_id ON videos(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
