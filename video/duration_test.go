package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45.5s", FormatDuration(45.5))
	assert.Equal(t, "0.0s", FormatDuration(0))
	assert.Equal(t, "2m 5s", FormatDuration(125))
	assert.Equal(t, "1h 4m 30s", FormatDuration(3870))
}

func TestEstimateDuration(t *testing.T) {
	est := EstimateDuration(3600)
	assert.EqualValues(t, 3600, est.Captures)
	require.Len(t, est.Calculations, 4)

	byFPS := make(map[int]DurationCalculation)
	for _, c := range est.Calculations {
		byFPS[c.FPS] = c
	}
	assert.Equal(t, 120.0, byFPS[30].DurationSeconds)
	assert.Equal(t, "2m 0s", byFPS[30].DurationFormatted)
	assert.Equal(t, 60.0, byFPS[60].DurationSeconds)
	assert.Equal(t, 240.0, byFPS[15].DurationSeconds)
	assert.Equal(t, 150.0, byFPS[24].DurationSeconds)
}
