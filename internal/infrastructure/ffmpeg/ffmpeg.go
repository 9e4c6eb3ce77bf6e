package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Converter wraps ffmpeg/ffprobe calls.
type Converter struct {
	FFmpegPath  string
	FFprobePath string
}

// NewConverter creates an ffmpeg adapter using binaries found on PATH.
func NewConverter() *Converter {
	return &Converter{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"}
}

// Remux copies the streams of a remote playlist into an MP4 container without re-encoding.
// onProgress receives percentages derived from the probed source duration; when the
// duration cannot be probed no progress is reported.
func (c *Converter) Remux(ctx context.Context, sourceURL, outputPath string, onProgress func(percent float64)) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}

	duration, _ := c.probeDuration(ctx, sourceURL)
	totalUs := int64(duration * 1e6)

	cmd := exec.CommandContext(ctx, c.FFmpegPath, remuxArgs(sourceURL, outputPath)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s failed to start: %w", c.FFmpegPath, err)
	}

	report := onProgress
	if totalUs <= 0 {
		report = nil
	}
	scanProgress(stdout, totalUs, report)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, lastLines(stderr.String(), 5))
	}
	return nil
}

func remuxArgs(sourceURL, outputPath string) []string {
	return []string{
		"-y",
		"-nostdin",
		"-i", sourceURL,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-progress", "pipe:1",
		"-nostats",
		outputPath,
	}
}

// scanProgress reads ffmpeg -progress key=value output. ffmpeg reports both
// out_time_us and out_time_ms in microseconds.
func scanProgress(r io.Reader, totalUs int64, onProgress func(float64)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if key != "out_time_us" && key != "out_time_ms" {
			continue
		}
		if onProgress == nil || totalUs <= 0 {
			continue
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			continue
		}
		onProgress(float64(us) / float64(totalUs) * 100)
	}
	// Keep the pipe drained so ffmpeg never blocks on a full stdout.
	_, _ = io.Copy(io.Discard, r)
}

func (c *Converter) probeDuration(ctx context.Context, sourceURL string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=nokey=1:noprint_wrappers=1",
		sourceURL,
	}
	cmd := exec.CommandContext(ctx, c.FFprobePath, args...)
	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	return parseDuration(string(out))
}

func parseDuration(raw string) (float64, error) {
	value := strings.TrimSpace(raw)
	if value == "" || value == "N/A" {
		return 0, fmt.Errorf("duration missing")
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("duration not positive: %s", value)
	}
	return parsed, nil
}

func lastLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
