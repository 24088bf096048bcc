package video

import (
	"bufio"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanCRLinesSplitsCarriageReturns(t *testing.T) {
	input := "frame=    1 fps=0.0 q=28.0\rframe=    2 fps=30 q=28.0\r\n[out] done\n"
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(scanCRLines)

	var lines []string
	for scanner.Scan() {
		if scanner.Text() != "" {
			lines = append(lines, scanner.Text())
		}
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{
		"frame=    1 fps=0.0 q=28.0",
		"frame=    2 fps=30 q=28.0",
		"[out] done",
	}, lines)

	frame, ok := parseFrameCount(lines[1])
	require.True(t, ok)
	assert.Equal(t, 2, frame)
}

func TestParseFrameCount(t *testing.T) {
	tests := []struct {
		line  string
		frame int
		ok    bool
	}{
		{"frame=  123 fps= 30 q=28.0 size=     512kB time=00:00:04.10", 123, true},
		{"frame=1", 1, true},
		{"frame= 4500 fps=120", 4500, true},
		{"size=     512kB time=00:00:04.10 bitrate=1022.9kbits/s", 0, false},
		{"frame=abc fps=0", 0, false},
		{"", 0, false},
		{"[libx264 @ 0x55] frame I:3    Avg QP:20.1", 0, false},
	}

	for _, tt := range tests {
		frame, ok := parseFrameCount(tt.line)
		assert.Equal(t, tt.ok, ok, "line %q", tt.line)
		if tt.ok {
			assert.Equal(t, tt.frame, frame, "line %q", tt.line)
		}
	}
}

func TestWriteConcatList(t *testing.T) {
	frames := []string{
		"/captures/cam/2025/06/01/12/cam_capture000001_20250601_120000.jpg",
		"/captures/cam/2025/06/01/12/cam_capture000002_20250601_120100.jpg",
	}

	path, err := writeConcatList(frames, 30)
	require.NoError(t, err)
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	for _, frame := range frames {
		assert.Contains(t, content, "file '"+frame+"'")
	}
	assert.Equal(t, 2, strings.Count(content, "duration 0.033333"))
}

func TestWriteConcatListEscapesQuotes(t *testing.T) {
	path, err := writeConcatList([]string{"/captures/bob's cam/frame.jpg"}, 24)
	require.NoError(t, err)
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `file '/captures/bob'\''s cam/frame.jpg'`)
}
