// Package video assembles time-ordered capture sets into encoded videos.
// Builds run on their own goroutines, fully independent of the capture
// scheduler: a long encode never blocks a capture tick and vice versa.
package video

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kernelkaribou/timelapse-manager/models"
)

var (
	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timelapse_video_builds_total",
		Help: "Total number of video builds",
	}, []string{"status"})

	buildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "timelapse_video_build_duration_seconds",
		Help:    "Duration of video builds in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// JobStore is the job lookup the orchestrator needs.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
}

// CaptureStore resolves the ordered capture set for a build.
type CaptureStore interface {
	ListCaptures(ctx context.Context, jobID string, start, end *time.Time) ([]models.Capture, error)
}

// VideoStore persists build rows and their progress.
type VideoStore interface {
	CreateVideo(ctx context.Context, v *models.Video) error
	SetVideoProcessing(ctx context.Context, id string, totalFrames int) error
	SetVideoProgress(ctx context.Context, id string, progress float64) error
	CompleteVideo(ctx context.Context, id string, fileSize int64, totalFrames int, durationSeconds float64) error
	FailVideo(ctx context.Context, id, reason string) error
}

// PathResolver renders the output path for a build.
type PathResolver interface {
	VideoPath(job *models.Job, name string, createdAt time.Time) string
}

// FileSizer reports the byte size of a finished output file.
type FileSizer func(path string) (int64, error)

// BuildRequest describes one video build.
type BuildRequest struct {
	JobID      string     `json:"job_id"`
	Name       string     `json:"name"`
	Resolution string     `json:"resolution"`
	Framerate  int        `json:"framerate"`
	Quality    string     `json:"quality"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
}

// Orchestrator validates build requests, resolves capture sets, and runs
// encodes asynchronously while persisting live progress.
type Orchestrator struct {
	jobs     JobStore
	captures CaptureStore
	videos   VideoStore
	encoder  Encoder
	resolver PathResolver
	fileSize FileSizer
	notifier func(videoID string)

	// base context for encode goroutines, detached from any HTTP request
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewOrchestrator creates an Orchestrator. baseCtx bounds the lifetime of
// all encode goroutines; cancelling it aborts in-flight builds.
func NewOrchestrator(baseCtx context.Context, jobs JobStore, captures CaptureStore, videos VideoStore, encoder Encoder, resolver PathResolver, fileSize FileSizer) *Orchestrator {
	return &Orchestrator{
		jobs:     jobs,
		captures: captures,
		videos:   videos,
		encoder:  encoder,
		resolver: resolver,
		fileSize: fileSize,
		baseCtx:  baseCtx,
	}
}

// SetNotifier registers a callback invoked on build status or progress changes.
func (o *Orchestrator) SetNotifier(fn func(videoID string)) {
	o.notifier = fn
}

// StartBuild validates the request, creates the build row, and launches
// the encode. An empty resolved capture set fails the build immediately
// without invoking the encoder. Multiple builds, including several for the
// same job, may run concurrently and independently.
func (o *Orchestrator) StartBuild(ctx context.Context, req BuildRequest) (*models.Video, error) {
	job, err := o.jobs.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, fmt.Errorf("look up job: %w", err)
	}
	if req.StartTime != nil && req.EndTime != nil && !req.StartTime.Before(*req.EndTime) {
		return nil, fmt.Errorf("start_time must be before end_time")
	}

	now := time.Now()
	v := &models.Video{
		JobID:      job.ID,
		Name:       req.Name,
		FilePath:   o.resolver.VideoPath(job, req.Name, now),
		Resolution: req.Resolution,
		Framerate:  req.Framerate,
		Quality:    req.Quality,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	}
	if err := o.videos.CreateVideo(ctx, v); err != nil {
		return nil, fmt.Errorf("create build record: %w", err)
	}

	captures, err := o.captures.ListCaptures(ctx, job.ID, req.StartTime, req.EndTime)
	if err != nil {
		o.fail(ctx, v, fmt.Sprintf("resolve captures: %v", err))
		return v, nil
	}
	if len(captures) == 0 {
		o.fail(ctx, v, "no captures found in the requested range")
		return v, nil
	}

	frames := make([]string, len(captures))
	for i, c := range captures {
		frames[i] = c.FilePath
	}

	o.wg.Add(1)
	go o.run(v, frames)
	return v, nil
}

// Wait blocks until all in-flight builds have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(v *models.Video, frames []string) {
	defer o.wg.Done()
	ctx := o.baseCtx
	start := time.Now()

	if err := o.videos.SetVideoProcessing(ctx, v.ID, len(frames)); err != nil {
		log.Printf("Video %s: failed to mark processing: %v", v.ID, err)
		return
	}
	o.notify(v.ID)

	// progress callbacks are clamped monotonic before hitting the store
	var lastProgress float64
	onProgress := func(p float64) {
		if p <= lastProgress {
			return
		}
		lastProgress = p
		if err := o.videos.SetVideoProgress(ctx, v.ID, p); err != nil {
			log.Printf("Video %s: failed to persist progress: %v", v.ID, err)
		}
		o.notify(v.ID)
	}

	opts := EncodeOptions{Resolution: v.Resolution, Framerate: v.Framerate, Quality: v.Quality}
	if err := o.encoder.Encode(ctx, frames, opts, v.FilePath, onProgress); err != nil {
		o.fail(ctx, v, err.Error())
		return
	}

	size, err := o.fileSize(v.FilePath)
	if err != nil {
		o.fail(ctx, v, fmt.Sprintf("stat output: %v", err))
		return
	}

	duration := float64(len(frames)) / float64(v.Framerate)
	if err := o.videos.CompleteVideo(ctx, v.ID, size, len(frames), duration); err != nil {
		log.Printf("Video %s: failed to mark completed: %v", v.ID, err)
		return
	}

	buildsTotal.WithLabelValues("success").Inc()
	buildDuration.Observe(time.Since(start).Seconds())
	log.Printf("Video %s: build completed (%d frames, %.1fs, %d bytes)", v.ID, len(frames), duration, size)
	o.notify(v.ID)
}

func (o *Orchestrator) fail(ctx context.Context, v *models.Video, reason string) {
	buildsTotal.WithLabelValues("failure").Inc()
	if err := o.videos.FailVideo(ctx, v.ID, reason); err != nil {
		log.Printf("Video %s: failed to mark failed: %v", v.ID, err)
		return
	}
	log.Printf("Video %s: build failed: %s", v.ID, reason)
	o.notify(v.ID)
}

func (o *Orchestrator) notify(videoID string) {
	if o.notifier != nil {
		o.notifier(videoID)
	}
}
