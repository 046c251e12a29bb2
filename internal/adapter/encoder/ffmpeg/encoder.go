package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/estroop3-gif/second-watch-network-sub004/internal/domain"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/port"
)

// Encoder shells out to ffmpeg for H.264/AAC MP4 renditions.
type Encoder struct {
	binary string
	log    *logrus.Logger
}

func NewEncoder(binary string, log *logrus.Logger) *Encoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Encoder{binary: binary, log: log}
}

func encodeArgs(inputPath, outputPath string, r domain.Rendition) []string {
	return []string{
		"-i", inputPath,
		"-c:v", "libx264",
		"-preset", "medium",
		"-b:v", r.VideoBitrate,
		"-vf", fmt.Sprintf("scale=-2:%d", r.Height),
		"-c:a", "aac",
		"-b:a", r.AudioBitrate,
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		"-y", outputPath,
	}
}

func thumbnailArgs(inputPath, outputPath string, atSeconds float64) []string {
	return []string{
		"-ss", fmt.Sprintf("%.3f", atSeconds),
		"-i", inputPath,
		"-vframes", "1",
		"-f", "image2",
		"-y", outputPath,
	}
}

func (e *Encoder) Encode(ctx context.Context, inputPath, outputPath string, rendition domain.Rendition, durationSeconds float64, onProgress func(percent int)) error {
	args := encodeArgs(inputPath, outputPath, rendition)
	cmd := exec.CommandContext(ctx, e.binary, args...)

	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	// ffmpeg's -progress stream is key=value lines. out_time carries the
	// encoded position; out_time_ms is misnamed microseconds, so it is
	// ignored on purpose.
	scanner := bufio.NewScanner(stdout)
	lastPercent := -1
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), "=")
		if !found || key != "out_time" {
			continue
		}
		seconds := parseOutTime(value)
		if seconds < 0 || durationSeconds <= 0 || onProgress == nil {
			continue
		}
		percent := int(seconds / durationSeconds * 100)
		if percent > 100 {
			percent = 100
		}
		if percent != lastPercent {
			lastPercent = percent
			onProgress(percent)
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", rendition.Quality, err, stderr.String())
	}
	return nil
}

func (e *Encoder) Thumbnail(ctx context.Context, inputPath, outputPath string, atSeconds float64) error {
	if atSeconds < 0 {
		atSeconds = 0
	}
	cmd := exec.CommandContext(ctx, e.binary, thumbnailArgs(inputPath, outputPath, atSeconds)...)

	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg thumbnail: %w: %s", err, stderr.String())
	}
	return nil
}

// parseOutTime evaluates ffmpeg's HH:MM:SS.micro progress clock. Returns a
// negative value for the "N/A" it emits before the first frame.
func parseOutTime(v string) float64 {
	var h, m int
	var s float64
	if _, err := fmt.Sscanf(v, "%d:%d:%f", &h, &m, &s); err != nil {
		return -1
	}
	return float64(h*3600+m*60) + s
}

// tailBuffer keeps the last max bytes written. Encoder stderr on a long job
// runs to megabytes; only the tail explains a failure.
type tailBuffer struct {
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}

var _ port.Encoder = (*Encoder)(nil)
