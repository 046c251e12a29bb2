package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"github.com/estroop3-gif/second-watch-network-sub004/internal/domain"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/port"
)

// Prober shells out to ffprobe for stream and container metadata.
type Prober struct {
	binary string
}

func NewProber(binary string) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{binary: binary}
}

func probeArgs(inputPath string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}
}

func (p *Prober) Probe(ctx context.Context, inputPath string) (*domain.ProbeResult, error) {
	cmd := exec.CommandContext(ctx, p.binary, probeArgs(inputPath)...)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("ffprobe: %w: %s", err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	result, err := decodeProbe(output)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func decodeProbe(output []byte) (*domain.ProbeResult, error) {
	var result domain.ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if result.VideoStream() == nil {
		return nil, domain.ErrNoVideoStream
	}
	return &result, nil
}

var _ port.Prober = (*Prober)(nil)
