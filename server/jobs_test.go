package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernelkaribou/timelapse-manager/models"
)

func TestMergedWindowKeepsExistingBounds(t *testing.T) {
	job := &models.Job{WindowEnabled: true, WindowStart: "08:00", WindowEnd: "20:00"}

	// editing one bound must validate against the job's other bound
	newEnd := "21:30"
	start, end := mergedWindow(job, &updateJobRequest{WindowEnd: &newEnd})
	assert.Equal(t, "08:00", start)
	assert.Equal(t, "21:30", end)
	require.NoError(t, validateWindow(start, end))

	newStart := "07:15"
	start, end = mergedWindow(job, &updateJobRequest{WindowStart: &newStart})
	assert.Equal(t, "07:15", start)
	assert.Equal(t, "20:00", end)
	require.NoError(t, validateWindow(start, end))

	start, end = mergedWindow(job, &updateJobRequest{WindowStart: &newStart, WindowEnd: &newEnd})
	assert.Equal(t, "07:15", start)
	assert.Equal(t, "21:30", end)
}

func TestValidateWindow(t *testing.T) {
	assert.NoError(t, validateWindow("08:00", "20:00"))
	assert.NoError(t, validateWindow("22:00", "02:00"))
	assert.Error(t, validateWindow("", "20:00"))
	assert.Error(t, validateWindow("08:00", ""))
	assert.Error(t, validateWindow("08:00", "25:00"))
}
