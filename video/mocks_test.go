package video

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kernelkaribou/timelapse-manager/models"
)

type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

type MockCaptureStore struct {
	mock.Mock
}

func (m *MockCaptureStore) ListCaptures(ctx context.Context, jobID string, start, end *time.Time) ([]models.Capture, error) {
	args := m.Called(ctx, jobID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Capture), args.Error(1)
}

type MockVideoStore struct {
	mock.Mock
}

func (m *MockVideoStore) CreateVideo(ctx context.Context, v *models.Video) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *MockVideoStore) SetVideoProcessing(ctx context.Context, id string, totalFrames int) error {
	args := m.Called(ctx, id, totalFrames)
	return args.Error(0)
}

func (m *MockVideoStore) SetVideoProgress(ctx context.Context, id string, progress float64) error {
	args := m.Called(ctx, id, progress)
	return args.Error(0)
}

func (m *MockVideoStore) CompleteVideo(ctx context.Context, id string, fileSize int64, totalFrames int, durationSeconds float64) error {
	args := m.Called(ctx, id, fileSize, totalFrames, durationSeconds)
	return args.Error(0)
}

func (m *MockVideoStore) FailVideo(ctx context.Context, id, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

type MockEncoder struct {
	mock.Mock
}

func (m *MockEncoder) Encode(ctx context.Context, frames []string, opts EncodeOptions, outputPath string, onProgress func(float64)) error {
	args := m.Called(ctx, frames, opts, outputPath, onProgress)
	return args.Error(0)
}

type MockPathResolver struct {
	mock.Mock
}

func (m *MockPathResolver) VideoPath(job *models.Job, name string, createdAt time.Time) string {
	args := m.Called(job, name, createdAt)
	return args.String(0)
}
