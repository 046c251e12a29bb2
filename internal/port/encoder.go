package port

import (
	"context"

	"github.com/estroop3-gif/second-watch-network-sub004/internal/domain"
)

// Prober inspects a local media file.
type Prober interface {
	Probe(ctx context.Context, inputPath string) (*domain.ProbeResult, error)
}

// Encoder produces one rendition from a local source file.
type Encoder interface {
	// Encode writes the rendition to outputPath. durationSeconds is the
	// probed source duration; zero disables percentage reporting.
	// onProgress, when non-nil, receives whole percentages in [0,100];
	// calls may be sparse and must not be relied on for completion.
	Encode(ctx context.Context, inputPath, outputPath string, rendition domain.Rendition, durationSeconds float64, onProgress func(percent int)) error

	// Thumbnail extracts a single frame at the given offset as a JPEG.
	Thumbnail(ctx context.Context, inputPath, outputPath string, atSeconds float64) error
}
