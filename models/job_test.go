package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamTypeForURL(t *testing.T) {
	st, err := StreamTypeForURL("rtsp://cam.local/stream")
	require.NoError(t, err)
	assert.Equal(t, StreamRTSP, st)

	st, err = StreamTypeForURL("http://cam.local/snapshot.jpg")
	require.NoError(t, err)
	assert.Equal(t, StreamHTTP, st)

	st, err = StreamTypeForURL("https://cam.local/snapshot.jpg")
	require.NoError(t, err)
	assert.Equal(t, StreamHTTP, st)

	_, err = StreamTypeForURL("ftp://cam.local/frame.jpg")
	assert.Error(t, err)
}

func TestJobEnded(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	open := &Job{}
	assert.False(t, open.Ended(now))

	end := now.Add(time.Hour)
	future := &Job{EndAt: &end}
	assert.False(t, future.Ended(now))

	// boundary counts as ended
	exact := &Job{EndAt: &now}
	assert.True(t, exact.Ended(now))

	past := now.Add(-time.Hour)
	done := &Job{EndAt: &past}
	assert.True(t, done.Ended(now))
}

func TestTerminalStatus(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	for _, s := range []JobStatus{StatusScheduled, StatusActive, StatusSleeping, StatusDisabled} {
		assert.False(t, s.Terminal(), "status %s", s)
	}
}
