package domain

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrAssetNotFound = errors.New("asset not found")
	ErrNoVideoStream = errors.New("source has no video stream")
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageDownload  Stage = "download"
	StageProbe     Stage = "probe"
	StageEncode    Stage = "encode"
	StageUpload    Stage = "upload"
	StageThumbnail Stage = "thumbnail"
)

// StageError ties a failure to the pipeline stage that produced it and, for
// per-rendition stages, the quality label it cost. Download and probe
// failures sink the whole job; encode and upload failures cost only their
// rendition; thumbnail failures cost nothing.
type StageError struct {
	Stage   Stage
	Quality string
	Err     error
}

func NewStageError(stage Stage, quality string, err error) *StageError {
	return &StageError{Stage: stage, Quality: quality, Err: err}
}

func (e *StageError) Error() string {
	if e.Quality != "" {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.Quality, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Fatal reports whether the error must fail the job outright. Everything
// after probe is judged per rendition instead.
func (e *StageError) Fatal() bool {
	return e.Stage == StageDownload || e.Stage == StageProbe
}

// maxErrorMessage bounds what lands in the jobs table; encoder stderr can
// run to megabytes.
const maxErrorMessage = 500

// TruncateError clips a message for persistence, marking the cut.
func TruncateError(msg string) string {
	if len(msg) <= maxErrorMessage {
		return msg
	}
	return msg[:maxErrorMessage] + "..."
}
