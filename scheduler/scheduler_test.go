package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernelkaribou/timelapse-manager/models"
	"github.com/kernelkaribou/timelapse-manager/naming"
	"github.com/kernelkaribou/timelapse-manager/store"
)

// fakeJobStore is an in-memory JobStore mirroring the real store's
// semantics for the fields the scheduler touches.
type fakeJobStore struct {
	mu       sync.Mutex
	jobs     map[string]*models.Job
	captures []models.Capture
	gone     bool // simulate the job being deleted mid-attempt
}

func newFakeJobStore(jobs ...*models.Job) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[string]*models.Job)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeJobStore) ListCandidates(ctx context.Context) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Job
	for _, j := range s.jobs {
		if j.Status == models.StatusCompleted || j.Status == models.StatusDisabled {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

func (s *fakeJobStore) SetJobStatus(ctx context.Context, id string, from, to models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != from {
		return store.ErrConflict
	}
	j.Status = to
	if to == models.StatusCompleted {
		j.WarningMessage = nil
	}
	return nil
}

func (s *fakeJobStore) setStatus(id string, status models.JobStatus) {
	s.mu.Lock()
	s.jobs[id].Status = status
	s.mu.Unlock()
}

func (s *fakeJobStore) SetNextCapture(ctx context.Context, id string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	j.NextCaptureAt = &next
	return nil
}

func (s *fakeJobStore) RecordCapture(ctx context.Context, jobID, filePath string, fileSize int64, capturedAt, nextDue time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || s.gone {
		return 0, store.ErrNotFound
	}
	j.CaptureCount++
	j.StorageSize += fileSize
	j.WarningMessage = nil
	j.NextCaptureAt = &nextDue
	s.captures = append(s.captures, models.Capture{
		ID:         int64(len(s.captures) + 1),
		JobID:      jobID,
		FilePath:   filePath,
		FileSize:   fileSize,
		CapturedAt: capturedAt,
	})
	return int64(len(s.captures)), nil
}

func (s *fakeJobStore) RecordFailure(ctx context.Context, jobID, warning string, nextDue time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || s.gone {
		return store.ErrNotFound
	}
	j.WarningMessage = &warning
	j.NextCaptureAt = &nextDue
	return nil
}

func (s *fakeJobStore) job(id string) models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *fakeJobStore) captureList() []models.Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Capture(nil), s.captures...)
}

// fakeCapturer writes a fixed payload to the destination, optionally
// blocking or failing.
type fakeCapturer struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{}
	data  []byte
}

func (c *fakeCapturer) Capture(ctx context.Context, url string, streamType models.StreamType, destPath string) error {
	c.mu.Lock()
	c.calls++
	err := c.err
	block := c.block
	data := c.data
	c.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return fmt.Errorf("RTSP error: connection timeout")
		}
	}
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte("jpegdata")
	}
	return os.WriteFile(destPath, data, 0644)
}

func (c *fakeCapturer) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeCapturer) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// testClock lets tests advance the scheduler's idea of "now" manually.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestJob(t *testing.T, intervalSeconds int) *models.Job {
	start := testBase
	next := start
	return &models.Job{
		ID:              "job-1",
		Name:            "front door",
		URL:             "rtsp://cam.local/stream",
		StreamType:      models.StreamRTSP,
		Status:          models.StatusActive,
		StartAt:         start,
		IntervalSeconds: intervalSeconds,
		Framerate:       30,
		CapturePath:     t.TempDir(),
		NamingPattern:   naming.DefaultCapturePattern,
		NextCaptureAt:   &next,
	}
}

func newTestScheduler(st JobStore, capt Capturer, clock *testClock) *Scheduler {
	s := New(st, capt, &naming.Resolver{}, nil, Config{
		TickInterval:   5 * time.Second,
		CaptureTimeout: 2 * time.Second,
		MaxConcurrent:  4,
		Location:       time.UTC,
	})
	s.nowFunc = clock.Now
	return s
}

// waitIdle blocks until no capture attempt is in flight; all store writes
// for an attempt happen before its in-flight slot is released.
func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		n := len(s.inFlight)
		s.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("scheduler did not go idle")
}

func TestOneCapturePerIntervalUnderFastTicks(t *testing.T) {
	job := newTestJob(t, 60)
	st := newFakeJobStore(job)
	capt := &fakeCapturer{}
	clock := &testClock{now: testBase}
	s := newTestScheduler(st, capt, clock)
	ctx := context.Background()

	// ticks every 5s over two minutes: due slots at 0s, 60s, 120s only
	for i := 0; i <= 24; i++ {
		s.Tick(ctx)
		waitIdle(t, s)
		clock.Advance(5 * time.Second)
	}

	assert.Equal(t, 3, capt.callCount())
	assert.EqualValues(t, 3, st.job("job-1").CaptureCount)
}

func TestNoOverlappingAttemptsForOneJob(t *testing.T) {
	job := newTestJob(t, 10)
	st := newFakeJobStore(job)
	block := make(chan struct{})
	capt := &fakeCapturer{block: block}
	clock := &testClock{now: testBase}
	s := newTestScheduler(st, capt, clock)
	ctx := context.Background()

	s.Tick(ctx) // dispatches, attempt hangs
	deadline := time.Now().Add(time.Second)
	for capt.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, capt.callCount())

	// one full interval passes while the attempt is outstanding; the due
	// slot must be skipped, not doubled up
	clock.Advance(15 * time.Second)
	s.Tick(ctx)
	assert.Equal(t, 1, capt.callCount())

	close(block)
	waitIdle(t, s)
	assert.EqualValues(t, 1, st.job("job-1").CaptureCount)

	// after the attempt resolves the job keeps capturing at its next slot
	clock.Advance(10 * time.Second)
	s.Tick(ctx)
	waitIdle(t, s)
	assert.Equal(t, 2, capt.callCount())
}

func TestCaptureFailureSetsWarningAndKeepsStatus(t *testing.T) {
	job := newTestJob(t, 10)
	st := newFakeJobStore(job)
	capt := &fakeCapturer{err: errors.New("RTSP error: stream unreachable or invalid")}
	clock := &testClock{now: testBase}
	s := newTestScheduler(st, capt, clock)
	ctx := context.Background()

	s.Tick(ctx)
	waitIdle(t, s)

	got := st.job("job-1")
	assert.Equal(t, models.StatusActive, got.Status, "failure never changes status")
	require.NotNil(t, got.WarningMessage)
	assert.NotEmpty(t, *got.WarningMessage)
	assert.Empty(t, st.captureList(), "no capture row on failure")
	require.NotNil(t, got.NextCaptureAt)
	assert.True(t, got.NextCaptureAt.After(clock.Now()), "due time still advances")

	// a later success clears the warning
	capt.setErr(nil)
	clock.Advance(10 * time.Second)
	s.Tick(ctx)
	waitIdle(t, s)

	got = st.job("job-1")
	assert.Nil(t, got.WarningMessage)
	assert.EqualValues(t, 1, got.CaptureCount)
}

func TestConsecutiveFailuresSurfaceInWarning(t *testing.T) {
	job := newTestJob(t, 10)
	st := newFakeJobStore(job)
	capt := &fakeCapturer{err: errors.New("RTSP error: connection timeout")}
	clock := &testClock{now: testBase}
	s := newTestScheduler(st, capt, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.Tick(ctx)
		waitIdle(t, s)
		clock.Advance(10 * time.Second)
	}

	got := st.job("job-1")
	require.NotNil(t, got.WarningMessage)
	assert.Contains(t, *got.WarningMessage, "3 consecutive failures")
	assert.Equal(t, models.StatusActive, got.Status)
}

func TestEndReachedCompletesAndStopsDispatch(t *testing.T) {
	job := newTestJob(t, 10)
	end := testBase.Add(30 * time.Second)
	job.EndAt = &end
	st := newFakeJobStore(job)
	capt := &fakeCapturer{}
	clock := &testClock{now: testBase.Add(31 * time.Second)}
	s := newTestScheduler(st, capt, clock)
	ctx := context.Background()

	s.Tick(ctx)
	waitIdle(t, s)

	got := st.job("job-1")
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 0, capt.callCount(), "no capture even though due by interval math")

	// completed jobs drop out of candidate evaluation entirely
	clock.Advance(10 * time.Second)
	s.Tick(ctx)
	waitIdle(t, s)
	assert.Equal(t, 0, capt.callCount())
}

func TestScheduledJobWaitsForStart(t *testing.T) {
	job := newTestJob(t, 10)
	job.Status = models.StatusScheduled
	job.StartAt = testBase.Add(time.Hour)
	next := job.StartAt
	job.NextCaptureAt = &next
	st := newFakeJobStore(job)
	capt := &fakeCapturer{}
	clock := &testClock{now: testBase}
	s := newTestScheduler(st, capt, clock)
	ctx := context.Background()

	s.Tick(ctx)
	waitIdle(t, s)
	assert.Equal(t, models.StatusScheduled, st.job("job-1").Status)
	assert.Equal(t, 0, capt.callCount())

	clock.Advance(time.Hour)
	s.Tick(ctx)
	waitIdle(t, s)
	assert.Equal(t, models.StatusActive, st.job("job-1").Status)
	assert.Equal(t, 1, capt.callCount())
}

func TestWindowPutsJobToSleepAndWakesIt(t *testing.T) {
	job := newTestJob(t, 10)
	job.WindowEnabled = true
	job.WindowStart = "08:00"
	job.WindowEnd = "20:00"
	st := newFakeJobStore(job)
	capt := &fakeCapturer{}
	clock := &testClock{now: time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)}
	s := newTestScheduler(st, capt, clock)
	ctx := context.Background()

	s.Tick(ctx)
	waitIdle(t, s)
	assert.Equal(t, models.StatusSleeping, st.job("job-1").Status)
	assert.Equal(t, 0, capt.callCount())

	clock.Advance(11 * time.Hour) // 09:00 next day
	s.Tick(ctx)
	waitIdle(t, s)
	assert.Equal(t, models.StatusActive, st.job("job-1").Status)
	assert.Equal(t, 1, capt.callCount())
}

func TestStaleTickDoesNotOverwriteUserDisable(t *testing.T) {
	job := newTestJob(t, 10)
	job.WindowEnabled = true
	job.WindowStart = "08:00"
	job.WindowEnd = "20:00"
	st := newFakeJobStore(job)
	capt := &fakeCapturer{}
	clock := &testClock{now: time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)}
	s := newTestScheduler(st, capt, clock)

	// tick snapshot taken while the job is still active
	stale := st.job("job-1")

	// user disables the job before the tick's status write lands
	st.setStatus("job-1", models.StatusDisabled)

	s.evaluateJob(context.Background(), &stale, clock.Now())
	waitIdle(t, s)

	assert.Equal(t, models.StatusDisabled, st.job("job-1").Status,
		"stale sleeping write must lose to the user edit")
	assert.Equal(t, 0, capt.callCount())
}

func TestDisabledJobIsNeverEvaluated(t *testing.T) {
	job := newTestJob(t, 10)
	job.Status = models.StatusDisabled
	end := testBase.Add(-time.Hour)
	job.EndAt = &end
	st := newFakeJobStore(job)
	capt := &fakeCapturer{}
	clock := &testClock{now: testBase}
	s := newTestScheduler(st, capt, clock)

	s.Tick(context.Background())
	waitIdle(t, s)

	got := st.job("job-1")
	assert.Equal(t, models.StatusDisabled, got.Status, "even a passed end time leaves a disabled job alone")
	assert.Equal(t, 0, capt.callCount())
}

func TestJobDeletedMidAttemptIsANoOp(t *testing.T) {
	job := newTestJob(t, 10)
	dir := job.CapturePath
	st := newFakeJobStore(job)
	st.gone = true // store reports not-found when the result lands
	capt := &fakeCapturer{}
	clock := &testClock{now: testBase}
	s := newTestScheduler(st, capt, clock)
	ctx := context.Background()

	s.Tick(ctx)
	waitIdle(t, s)

	assert.Empty(t, st.captureList())
	// the orphaned frame was cleaned up
	matches, err := filepath.Glob(filepath.Join(dir, "*", "*", "*", "*", "*.jpg"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCapturedTimestampsStrictlyIncrease(t *testing.T) {
	job := newTestJob(t, 10)
	st := newFakeJobStore(job)
	capt := &fakeCapturer{}
	clock := &testClock{now: testBase}
	s := newTestScheduler(st, capt, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.Tick(ctx)
		waitIdle(t, s)
		clock.Advance(10 * time.Second)
	}

	captures := st.captureList()
	require.Len(t, captures, 5)
	for i := 1; i < len(captures); i++ {
		assert.True(t, captures[i].CapturedAt.After(captures[i-1].CapturedAt),
			"capture %d not after capture %d", i, i-1)
	}
}

func TestThreeTicksEndToEnd(t *testing.T) {
	payload := []byte("fake jpeg bytes")
	job := newTestJob(t, 10)
	st := newFakeJobStore(job)
	capt := &fakeCapturer{data: payload}
	clock := &testClock{now: testBase}
	s := newTestScheduler(st, capt, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.Tick(ctx)
		waitIdle(t, s)
		clock.Advance(10 * time.Second)
	}

	got := st.job("job-1")
	assert.EqualValues(t, 3, got.CaptureCount)
	assert.EqualValues(t, 3*len(payload), got.StorageSize)
	require.NotNil(t, got.NextCaptureAt)
	assert.Equal(t, testBase.Add(30*time.Second), *got.NextCaptureAt)
	assert.Nil(t, got.WarningMessage)
}
