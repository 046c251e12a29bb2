package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/estroop3-gif/second-watch-network-sub004/internal/domain"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/infrastructure/logger"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/port"
)

// TranscodeWorker turns one claimed job into renditions. Every runner mode
// funnels into Process; the job must already be in processing when it is
// handed over.
type TranscodeWorker struct {
	jobs    port.JobStore
	assets  port.AssetStore
	blobs   port.BlobStore
	prober  port.Prober
	encoder port.Encoder
	workDir string
	log     *logrus.Logger
}

func NewTranscodeWorker(
	jobs port.JobStore,
	assets port.AssetStore,
	blobs port.BlobStore,
	prober port.Prober,
	encoder port.Encoder,
	workDir string,
	log *logrus.Logger,
) *TranscodeWorker {
	return &TranscodeWorker{
		jobs:    jobs,
		assets:  assets,
		blobs:   blobs,
		prober:  prober,
		encoder: encoder,
		workDir: workDir,
		log:     log,
	}
}

// Process runs the pipeline: download, probe, thumbnail, encode each ladder
// rung, publish. Download and probe failures fail the job; a failed rung
// costs only itself; the job fails outright only when no rung survives.
// Returns the error that decided a failed job, nil for a completed one.
func (w *TranscodeWorker) Process(ctx context.Context, job *domain.Job) error {
	log := w.log.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"asset_id":   job.AssetID,
		"source_key": logger.Sanitize(job.SourceKey),
	})

	scratch, err := os.MkdirTemp(w.workDir, "transcode-"+job.ID.String()+"-")
	if err != nil {
		return w.fail(ctx, job, log, fmt.Errorf("create scratch dir: %w", err))
	}
	defer os.RemoveAll(scratch)

	sourcePath := filepath.Join(scratch, "source"+path.Ext(job.SourceKey))
	if err := w.blobs.Download(ctx, job.SourceKey, sourcePath); err != nil {
		return w.fail(ctx, job, log, domain.NewStageError(domain.StageDownload, "", err))
	}

	probe, err := w.prober.Probe(ctx, sourcePath)
	if err != nil {
		return w.fail(ctx, job, log, domain.NewStageError(domain.StageProbe, "", err))
	}

	width, height := probe.Dimensions()
	duration := probe.DurationSeconds()
	log.WithFields(logrus.Fields{"width": width, "height": height, "duration": duration}).
		Info("source probed")

	ladder, unknown := domain.LadderFor(job, height)
	if len(unknown) > 0 {
		log.WithField("labels", unknown).Warn("ignoring unknown quality labels")
	}

	results := make(map[string]string)
	thumbKey := w.makeThumbnail(ctx, job, log, scratch, sourcePath, duration)

	var renditionErrs []error
	for i, rendition := range ladder {
		if err := w.processRendition(ctx, job, log, scratch, sourcePath, rendition, duration, results); err != nil {
			if ctx.Err() != nil {
				// Shutdown mid-job: leave the row in processing for the
				// operator rather than guessing a terminal state.
				return ctx.Err()
			}
			renditionErrs = append(renditionErrs, err)
			log.WithField("quality", rendition.Quality).WithError(err).Error("rendition failed")
		}

		pct := (i + 1) * 100 / len(ladder)
		if err := w.jobs.UpdateProgress(ctx, job.ID, pct); err != nil {
			log.WithError(err).Debug("progress update dropped")
		}
	}

	if len(results) == 0 {
		os.RemoveAll(scratch)
		msg := fmt.Sprintf("all %d renditions failed: %s", len(ladder), joinErrors(renditionErrs))
		return w.fail(ctx, job, log, errors.New(msg))
	}

	if thumbKey != "" {
		results["thumbnail"] = thumbKey
	}

	// Scratch goes before the terminal write so a crash between the two
	// never leaves a completed job holding disk.
	os.RemoveAll(scratch)

	if err := w.jobs.Complete(ctx, job.ID, results); err != nil {
		return fmt.Errorf("record completion for job %s: %w", job.ID, err)
	}

	if err := w.assets.MergeRenditions(ctx, job.AssetID, results); err != nil {
		return fmt.Errorf("job %s completed but asset merge failed: %w", job.ID, err)
	}

	log.WithFields(logrus.Fields{
		"renditions": len(results),
		"skipped":    len(renditionErrs),
	}).Info("job completed")
	return nil
}

// processRendition encodes one rung and uploads it, recording the blob key
// in results on success. The local file is removed as soon as the upload
// settles so scratch usage stays near one rendition.
func (w *TranscodeWorker) processRendition(
	ctx context.Context,
	job *domain.Job,
	log *logrus.Entry,
	scratch, sourcePath string,
	rendition domain.Rendition,
	duration float64,
	results map[string]string,
) error {
	outputPath := filepath.Join(scratch, rendition.Quality+".mp4")
	defer os.Remove(outputPath)

	onProgress := func(percent int) {
		log.WithFields(logrus.Fields{"quality": rendition.Quality, "percent": percent}).
			Debug("encoding")
	}
	if err := w.encoder.Encode(ctx, sourcePath, outputPath, rendition, duration, onProgress); err != nil {
		return domain.NewStageError(domain.StageEncode, rendition.Quality, err)
	}

	key := domain.RenditionKey(job.SourceKey, rendition.Quality)
	if err := w.blobs.Upload(ctx, outputPath, key, "video/mp4"); err != nil {
		return domain.NewStageError(domain.StageUpload, rendition.Quality, err)
	}

	results[rendition.Quality] = key
	return nil
}

// makeThumbnail extracts and uploads the poster frame. Nothing here can
// fail the job; a missing thumbnail is a cosmetic defect.
func (w *TranscodeWorker) makeThumbnail(
	ctx context.Context,
	job *domain.Job,
	log *logrus.Entry,
	scratch, sourcePath string,
	duration float64,
) string {
	atSeconds := 1.0
	if duration > 0 {
		atSeconds = duration / 2
	}

	thumbPath := filepath.Join(scratch, "thumb.jpg")
	if err := w.encoder.Thumbnail(ctx, sourcePath, thumbPath, atSeconds); err != nil {
		log.WithError(domain.NewStageError(domain.StageThumbnail, "", err)).Warn("thumbnail skipped")
		return ""
	}

	key := domain.ThumbnailKey(job.SourceKey)
	if err := w.blobs.Upload(ctx, thumbPath, key, "image/jpeg"); err != nil {
		log.WithError(domain.NewStageError(domain.StageThumbnail, "", err)).Warn("thumbnail upload skipped")
		return ""
	}
	return key
}

func (w *TranscodeWorker) fail(ctx context.Context, job *domain.Job, log *logrus.Entry, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.WithError(cause).Error("job failed")
	if err := w.jobs.Fail(ctx, job.ID, cause.Error()); err != nil {
		log.WithError(err).Error("could not record job failure")
	}
	return cause
}

func joinErrors(errs []error) string {
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}
