package video

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// EncodeOptions are the user-requested encode parameters.
type EncodeOptions struct {
	Resolution string // "WxH", e.g. "1920x1080"
	Framerate  int
	Quality    string // low | medium | high | lossless
}

// Encoder assembles an ordered list of image files into a video at
// outputPath, reporting progress as a 0.0-1.0 fraction.
type Encoder interface {
	Encode(ctx context.Context, frames []string, opts EncodeOptions, outputPath string, progress func(float64)) error
}

// quality names to x264 CRF values; lower is better
var qualityCRF = map[string]string{
	"low":      "28",
	"medium":   "23",
	"high":     "18",
	"lossless": "0",
}

// FFmpegEncoder encodes via ffmpeg's concat demuxer with libx264 output.
type FFmpegEncoder struct {
	BinPath string
}

// NewFFmpegEncoder returns an encoder using the ffmpeg binary on PATH.
func NewFFmpegEncoder() *FFmpegEncoder {
	return &FFmpegEncoder{BinPath: "ffmpeg"}
}

// Encode runs ffmpeg over a generated concat list, parsing frame counters
// from stderr for progress. A failed or cancelled encode leaves no output
// file behind.
func (e *FFmpegEncoder) Encode(ctx context.Context, frames []string, opts EncodeOptions, outputPath string, progress func(float64)) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to encode")
	}

	listFile, err := writeConcatList(frames, opts.Framerate)
	if err != nil {
		return err
	}
	defer os.Remove(listFile)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	crf, ok := qualityCRF[opts.Quality]
	if !ok {
		crf = qualityCRF["medium"]
	}

	cmd := exec.CommandContext(ctx, e.BinPath,
		"-loglevel", "info",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-vf", "scale="+strings.Replace(opts.Resolution, "x", ":", 1),
		"-r", strconv.Itoa(opts.Framerate),
		"-c:v", "libx264",
		"-crf", crf,
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-y", outputPath,
	)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	// ffmpeg reports "frame= 123" on stderr as it encodes, rewriting the
	// stats line in place with carriage returns
	total := float64(len(frames))
	var lastLine string
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanCRLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			lastLine = line
		}
		if frame, ok := parseFrameCount(line); ok && progress != nil {
			progress(min(float64(frame)/total, 1.0))
		}
	}

	if err := cmd.Wait(); err != nil {
		os.Remove(outputPath)
		if ctx.Err() != nil {
			return fmt.Errorf("encode cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg: %v: %s", err, lastLine)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	if progress != nil {
		progress(1.0)
	}
	return nil
}

// writeConcatList renders the ffmpeg concat demuxer input: one file entry
// per frame, each shown for one frame duration.
func writeConcatList(frames []string, framerate int) (string, error) {
	f, err := os.CreateTemp("", "timelapse_frames_*.txt")
	if err != nil {
		return "", fmt.Errorf("create concat list: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	frameDuration := 1.0 / float64(framerate)
	for _, frame := range frames {
		fmt.Fprintf(w, "file '%s'\n", strings.ReplaceAll(frame, "'", `'\''`))
		fmt.Fprintf(w, "duration %f\n", frameDuration)
	}
	if err := w.Flush(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// scanCRLines splits on \r as well as \n so progress updates surface as
// ffmpeg emits them instead of waiting for a real newline.
func scanCRLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func parseFrameCount(line string) (int, bool) {
	idx := strings.Index(line, "frame=")
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(line[idx+len("frame="):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return n, true
}
