// Package scheduler drives periodic image captures for all live jobs. A
// single recurring tick loads the candidate jobs from the store, walks
// each one through the status state machine, and fans capture attempts
// out to goroutines with at most one attempt in flight per job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kernelkaribou/timelapse-manager/models"
	"github.com/kernelkaribou/timelapse-manager/store"
)

var (
	capturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timelapse_captures_total",
		Help: "Total number of capture attempts",
	}, []string{"status"})

	captureDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timelapse_capture_duration_seconds",
		Help:    "Duration of capture attempts in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
)

// JobStore is the slice of the persistence layer the scheduler depends on.
// Implemented by *store.Store.
type JobStore interface {
	ListCandidates(ctx context.Context) ([]models.Job, error)
	SetJobStatus(ctx context.Context, id string, from, to models.JobStatus) error
	SetNextCapture(ctx context.Context, id string, next time.Time) error
	RecordCapture(ctx context.Context, jobID, filePath string, fileSize int64, capturedAt, nextDue time.Time) (int64, error)
	RecordFailure(ctx context.Context, jobID, warning string, nextDue time.Time) error
}

// Capturer grabs one frame from a stream URL into destPath.
type Capturer interface {
	Capture(ctx context.Context, url string, streamType models.StreamType, destPath string) error
}

// Thumbnailer produces a preview image for a stored capture. Optional.
type Thumbnailer interface {
	GenerateThumbnail(ctx context.Context, imagePath string) error
}

// PathResolver renders the destination path for one capture.
type PathResolver interface {
	CapturePath(job *models.Job, seq int64, capturedAt time.Time) string
}

// consecutive failures before the count is surfaced in the warning text
const failureCountThreshold = 3

// Scheduler is the recurring capture control loop.
type Scheduler struct {
	store     JobStore
	capturer  Capturer
	resolver  PathResolver
	thumbs    Thumbnailer
	tick      time.Duration
	timeout   time.Duration
	loc       *time.Location
	sem       chan struct{}
	notifier  func(jobID string)
	nowFunc   func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
	failures map[string]int
}

// Config carries scheduler tuning knobs.
type Config struct {
	TickInterval   time.Duration // how often candidates are re-evaluated
	CaptureTimeout time.Duration // hard deadline per capture attempt
	MaxConcurrent  int           // bound on simultaneous attempts across all jobs
	Location       *time.Location
}

// New creates a Scheduler. The thumbnailer may be nil.
func New(st JobStore, capturer Capturer, resolver PathResolver, thumbs Thumbnailer, cfg Config) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Second
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 30 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 16
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	s := &Scheduler{
		store:    st,
		capturer: capturer,
		resolver: resolver,
		thumbs:   thumbs,
		tick:     cfg.TickInterval,
		timeout:  cfg.CaptureTimeout,
		loc:      cfg.Location,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		inFlight: make(map[string]struct{}),
		failures: make(map[string]int),
	}
	s.nowFunc = func() time.Time { return time.Now().In(s.loc) }
	return s
}

// SetNotifier registers a callback invoked after any persisted job change.
func (s *Scheduler) SetNotifier(fn func(jobID string)) {
	s.notifier = fn
}

// Run executes ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("Capture scheduler started (tick %s, capture timeout %s)", s.tick, s.timeout)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Capture scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates every candidate job once. A store error for one job is
// logged and does not abort the remainder of the tick.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.nowFunc()

	jobs, err := s.store.ListCandidates(ctx)
	if err != nil {
		log.Printf("Scheduler: failed to list jobs: %v", err)
		return
	}

	for i := range jobs {
		s.evaluateJob(ctx, &jobs[i], now)
	}
}

func (s *Scheduler) evaluateJob(ctx context.Context, job *models.Job, now time.Time) {
	status, eligible := Transition(job, now)

	if status != job.Status {
		// Compare-and-set against the snapshot's status. A conflict means
		// the job was edited or deleted after the tick read it; the next
		// tick evaluates the fresh state.
		if err := s.store.SetJobStatus(ctx, job.ID, job.Status, status); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return
			}
			log.Printf("Scheduler: job %s: failed to set status %s: %v", job.ID, status, err)
			return
		}
		log.Printf("Scheduler: job %s (%s) %s -> %s", job.ID, job.Name, job.Status, status)
		job.Status = status
		s.notify(job.ID)
	}
	if !eligible {
		return
	}

	// Jobs created before the scheduler ever saw them have no due time
	// yet; anchor the grid at the job's start.
	if job.NextCaptureAt == nil {
		next := job.StartAt
		if err := s.store.SetNextCapture(ctx, job.ID, next); err != nil {
			log.Printf("Scheduler: job %s: failed to init next capture: %v", job.ID, err)
			return
		}
		job.NextCaptureAt = &next
	}

	if job.NextCaptureAt.After(now) {
		return
	}

	// One outstanding attempt per job. A due job whose previous attempt
	// has not returned is skipped this tick.
	if !s.acquire(job.ID) {
		return
	}

	jobCopy := *job
	go s.dispatch(ctx, &jobCopy)
}

func (s *Scheduler) acquire(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[jobID]; busy {
		return false
	}
	s.inFlight[jobID] = struct{}{}
	return true
}

func (s *Scheduler) release(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, jobID)
}

func (s *Scheduler) notify(jobID string) {
	if s.notifier != nil {
		s.notifier(jobID)
	}
}

// dispatch performs one capture attempt for a job. It owns the job's
// in-flight slot and must release it on every exit path.
func (s *Scheduler) dispatch(ctx context.Context, job *models.Job) {
	defer s.release(job.ID)

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return
	}

	start := time.Now()
	err := s.attempt(ctx, job)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		capturesTotal.WithLabelValues("failure").Inc()
		captureDuration.WithLabelValues("failure").Observe(elapsed)
		s.recordFailure(ctx, job, err)
		return
	}

	capturesTotal.WithLabelValues("success").Inc()
	captureDuration.WithLabelValues("success").Observe(elapsed)

	s.mu.Lock()
	delete(s.failures, job.ID)
	s.mu.Unlock()
	s.notify(job.ID)
}

// attempt grabs a frame, writes it atomically into place, and persists
// the capture row together with the job's counters and next due time.
func (s *Scheduler) attempt(ctx context.Context, job *models.Job) error {
	capturedAt := s.nowFunc()
	destPath := s.resolver.CapturePath(job, job.CaptureCount+1, capturedAt)

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create capture directory: %w", err)
	}

	// Grab into a temporary name and rename into place so a crash
	// mid-write can never leave a capture row pointing at a torn file.
	tmpPath := destPath + ".tmp"
	defer os.Remove(tmpPath)

	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.capturer.Capture(attemptCtx, job.URL, job.StreamType, tmpPath); err != nil {
		return err
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return fmt.Errorf("stat captured frame: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("captured frame is empty")
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("store captured frame: %w", err)
	}

	next := NextDue(*job.NextCaptureAt, job.Interval(), s.nowFunc())
	_, err = s.store.RecordCapture(ctx, job.ID, destPath, info.Size(), capturedAt, next)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Job was deleted while the attempt was in flight; drop the
			// orphaned file and move on.
			os.Remove(destPath)
			log.Printf("Scheduler: job %s disappeared mid-capture, discarding frame", job.ID)
			return nil
		}
		return fmt.Errorf("persist capture: %w", err)
	}

	if s.thumbs != nil {
		if terr := s.thumbs.GenerateThumbnail(ctx, destPath); terr != nil {
			log.Printf("Scheduler: job %s: thumbnail generation failed: %v", job.ID, terr)
		}
	}

	log.Printf("Scheduler: job %s (%s) captured %s (%d bytes)", job.ID, job.Name, filepath.Base(destPath), info.Size())
	return nil
}

// recordFailure notes a failed attempt on the job. The job's status is
// never changed by a capture failure; the warning message is the only
// operator-visible signal, and the due time still advances so the job
// retries at its next natural slot instead of hot-looping.
func (s *Scheduler) recordFailure(ctx context.Context, job *models.Job, cause error) {
	s.mu.Lock()
	s.failures[job.ID]++
	count := s.failures[job.ID]
	s.mu.Unlock()

	warning := cause.Error()
	if count >= failureCountThreshold {
		warning = fmt.Sprintf("%s (%d consecutive failures)", warning, count)
	}

	next := NextDue(*job.NextCaptureAt, job.Interval(), s.nowFunc())
	if err := s.store.RecordFailure(ctx, job.ID, warning, next); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		log.Printf("Scheduler: job %s: failed to record capture failure: %v", job.ID, err)
		return
	}

	log.Printf("Scheduler: job %s (%s) capture failed: %v", job.ID, job.Name, cause)
	s.notify(job.ID)
}
