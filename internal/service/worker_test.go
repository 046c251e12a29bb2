package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estroop3-gif/second-watch-network-sub004/internal/domain"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/infrastructure/logger"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/port"
)

// memJobStore is an in-memory reference implementation of the queue
// contract: status-guarded finishes, monotonic progress, oldest-first
// claims.
type memJobStore struct {
	mu            sync.Mutex
	rows          map[uuid.UUID]*domain.Job
	order         []uuid.UUID
	progressCalls []int
	completeErr   error
}

func newMemJobStore() *memJobStore {
	return &memJobStore{rows: make(map[uuid.UUID]*domain.Job)}
}

func (s *memJobStore) Enqueue(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.rows[job.ID] = &copied
	s.order = append(s.order, job.ID)
	return nil
}

func (s *memJobStore) ClaimNext(_ context.Context) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		row := s.rows[id]
		if row.Status == domain.JobStatusPending {
			row.Status = domain.JobStatusProcessing
			row.StartedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
			claimed := *row
			return &claimed, nil
		}
	}
	return nil, nil
}

func (s *memJobStore) Claim(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Status != domain.JobStatusPending {
		return nil, domain.ErrJobNotFound
	}
	row.Status = domain.JobStatusProcessing
	row.StartedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	claimed := *row
	return &claimed, nil
}

func (s *memJobStore) Get(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *row
	return &copied, nil
}

func (s *memJobStore) UpdateProgress(_ context.Context, id uuid.UUID, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Status != domain.JobStatusProcessing {
		return nil
	}
	s.progressCalls = append(s.progressCalls, progress)
	if progress > row.Progress {
		row.Progress = progress
	}
	return nil
}

func (s *memJobStore) Complete(_ context.Context, id uuid.UUID, renditions map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return s.completeErr
	}
	row, ok := s.rows[id]
	if !ok || row.Status != domain.JobStatusProcessing {
		return nil
	}
	row.Status = domain.JobStatusCompleted
	row.Renditions = renditions
	row.Progress = 100
	row.CompletedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	return nil
}

func (s *memJobStore) Fail(_ context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Status != domain.JobStatusProcessing {
		return nil
	}
	row.Status = domain.JobStatusFailed
	row.ErrorMessage = domain.TruncateError(errMsg)
	row.CompletedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	return nil
}

func (s *memJobStore) Requeue(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Status == domain.JobStatusPending {
		return domain.ErrJobNotFound
	}
	row.Status = domain.JobStatusPending
	row.Progress = 0
	row.ErrorMessage = ""
	row.Renditions = nil
	row.StartedAt = sql.NullTime{}
	row.CompletedAt = sql.NullTime{}
	return nil
}

func (s *memJobStore) Counts(_ context.Context) (map[domain.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.JobStatus]int)
	for _, row := range s.rows {
		counts[row.Status]++
	}
	return counts, nil
}

type fakeAssetStore struct {
	mu       sync.Mutex
	merged   map[uuid.UUID]map[string]string
	mergeErr error
}

func newFakeAssetStore() *fakeAssetStore {
	return &fakeAssetStore{merged: make(map[uuid.UUID]map[string]string)}
}

func (s *fakeAssetStore) MergeRenditions(_ context.Context, assetID uuid.UUID, renditions map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mergeErr != nil {
		return s.mergeErr
	}
	existing := s.merged[assetID]
	if existing == nil {
		existing = make(map[string]string)
		s.merged[assetID] = existing
	}
	for quality, key := range renditions {
		existing[quality] = key
	}
	return nil
}

func (s *fakeAssetStore) Renditions(_ context.Context, assetID uuid.UUID) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	renditions, ok := s.merged[assetID]
	if !ok {
		return nil, domain.ErrAssetNotFound
	}
	return renditions, nil
}

type fakeBlobStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	types       map[string]string
	downloadErr error
	uploadErr   map[string]error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects:   make(map[string][]byte),
		types:     make(map[string]string),
		uploadErr: make(map[string]error),
	}
}

func (s *fakeBlobStore) Download(_ context.Context, key, destPath string) error {
	if s.downloadErr != nil {
		return s.downloadErr
	}
	return os.WriteFile(destPath, []byte("raw source"), 0o644)
}

func (s *fakeBlobStore) Upload(_ context.Context, localPath, key, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.uploadErr[key]; err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("upload source missing: %w", err)
	}
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *fakeBlobStore) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blobs.test/" + key + "?signed", nil
}

func (s *fakeBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

type fakeProber struct {
	height   int
	duration float64
	err      error
}

func (p *fakeProber) Probe(_ context.Context, _ string) (*domain.ProbeResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &domain.ProbeResult{
		Format: domain.ProbeFormat{Duration: fmt.Sprintf("%f", p.duration)},
		Streams: []domain.ProbeStream{
			{CodecType: "video", Width: p.height * 16 / 9, Height: p.height},
		},
	}, nil
}

type fakeEncoder struct {
	mu      sync.Mutex
	encoded []string
	failFor map[string]error
	thumbErr error
}

func newFakeEncoder() *fakeEncoder {
	return &fakeEncoder{failFor: make(map[string]error)}
}

func (e *fakeEncoder) Encode(_ context.Context, _, outputPath string, rendition domain.Rendition, _ float64, onProgress func(int)) error {
	e.mu.Lock()
	e.encoded = append(e.encoded, rendition.Quality)
	e.mu.Unlock()

	if err := e.failFor[rendition.Quality]; err != nil {
		return err
	}
	if onProgress != nil {
		onProgress(50)
		onProgress(100)
	}
	return os.WriteFile(outputPath, []byte("encoded "+rendition.Quality), 0o644)
}

func (e *fakeEncoder) Thumbnail(_ context.Context, _, outputPath string, _ float64) error {
	if e.thumbErr != nil {
		return e.thumbErr
	}
	return os.WriteFile(outputPath, []byte("jpeg"), 0o644)
}

var (
	_ port.JobStore   = (*memJobStore)(nil)
	_ port.AssetStore = (*fakeAssetStore)(nil)
	_ port.BlobStore  = (*fakeBlobStore)(nil)
	_ port.Prober     = (*fakeProber)(nil)
	_ port.Encoder    = (*fakeEncoder)(nil)
)

type workerFixture struct {
	jobs    *memJobStore
	assets  *fakeAssetStore
	blobs   *fakeBlobStore
	prober  *fakeProber
	encoder *fakeEncoder
	workDir string
	worker  *TranscodeWorker
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	f := &workerFixture{
		jobs:    newMemJobStore(),
		assets:  newFakeAssetStore(),
		blobs:   newFakeBlobStore(),
		prober:  &fakeProber{height: 1080, duration: 120},
		encoder: newFakeEncoder(),
		workDir: t.TempDir(),
	}
	f.worker = NewTranscodeWorker(
		f.jobs, f.assets, f.blobs, f.prober, f.encoder,
		f.workDir, logger.New("error", "text"),
	)
	return f
}

func (f *workerFixture) claimedJob(t *testing.T, qualities []string) *domain.Job {
	t.Helper()
	job := domain.NewJob(uuid.New(), "masters/ep01.mov", qualities)
	require.NoError(t, f.jobs.Enqueue(context.Background(), job))
	claimed, err := f.jobs.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	return claimed
}

func (f *workerFixture) assertScratchClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch space must be removed")
}

func TestProcessAutoLadder(t *testing.T) {
	f := newWorkerFixture(t)
	job := f.claimedJob(t, nil)

	require.NoError(t, f.worker.Process(context.Background(), job))

	stored, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.Equal(t, map[string]string{
		"1080p":     "masters/ep01_1080p.mp4",
		"720p":      "masters/ep01_720p.mp4",
		"480p":      "masters/ep01_480p.mp4",
		"thumbnail": "masters/ep01_thumb.jpg",
	}, stored.Renditions)

	assert.Equal(t, []string{"1080p", "720p", "480p"}, f.encoder.encoded,
		"ladder should run tallest first")
	assert.Equal(t, stored.Renditions, f.assets.merged[job.AssetID],
		"asset catalog should carry the same rendition map")
	assert.Equal(t, "video/mp4", f.blobs.types["masters/ep01_720p.mp4"])
	assert.Equal(t, "image/jpeg", f.blobs.types["masters/ep01_thumb.jpg"])
	assert.Equal(t, []int{33, 66, 100}, f.jobs.progressCalls)
	f.assertScratchClean(t)
}

func TestProcessPartialFailureStillCompletes(t *testing.T) {
	f := newWorkerFixture(t)
	f.encoder.failFor["720p"] = errors.New("exit status 1")
	job := f.claimedJob(t, nil)

	require.NoError(t, f.worker.Process(context.Background(), job),
		"one dead rung must not fail the job")

	stored, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.NotContains(t, stored.Renditions, "720p")
	assert.Contains(t, stored.Renditions, "1080p")
	assert.Contains(t, stored.Renditions, "480p")
	f.assertScratchClean(t)
}

func TestProcessAllRenditionsFailing(t *testing.T) {
	f := newWorkerFixture(t)
	for _, q := range []string{"1080p", "720p", "480p"} {
		f.encoder.failFor[q] = errors.New("exit status 1")
	}
	job := f.claimedJob(t, nil)

	err := f.worker.Process(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 renditions failed")

	stored, getErr := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "renditions failed")
	assert.Empty(t, f.assets.merged, "a failed job must not touch the catalog")
	f.assertScratchClean(t)
}

func TestProcessDownloadFailureIsFatal(t *testing.T) {
	f := newWorkerFixture(t)
	f.blobs.downloadErr = errors.New("object not found")
	job := f.claimedJob(t, nil)

	err := f.worker.Process(context.Background(), job)
	require.Error(t, err)

	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.StageDownload, stageErr.Stage)
	assert.True(t, stageErr.Fatal())

	stored, getErr := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Empty(t, f.encoder.encoded, "nothing should encode without a source")
	f.assertScratchClean(t)
}

func TestProcessProbeFailureIsFatal(t *testing.T) {
	f := newWorkerFixture(t)
	f.prober.err = domain.ErrNoVideoStream
	job := f.claimedJob(t, nil)

	err := f.worker.Process(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoVideoStream)

	stored, getErr := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "probe")
	assert.Empty(t, f.encoder.encoded)
	f.assertScratchClean(t)
}

func TestProcessThumbnailFailureIsHarmless(t *testing.T) {
	f := newWorkerFixture(t)
	f.encoder.thumbErr = errors.New("cannot seek")
	job := f.claimedJob(t, nil)

	require.NoError(t, f.worker.Process(context.Background(), job))

	stored, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.NotContains(t, stored.Renditions, "thumbnail")
	assert.Contains(t, stored.Renditions, "1080p")
}

func TestProcessUploadFailureCostsOnlyItsRendition(t *testing.T) {
	f := newWorkerFixture(t)
	f.blobs.uploadErr["masters/ep01_480p.mp4"] = errors.New("connection reset")
	job := f.claimedJob(t, nil)

	require.NoError(t, f.worker.Process(context.Background(), job))

	stored, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.NotContains(t, stored.Renditions, "480p")
	assert.Contains(t, stored.Renditions, "1080p")
	assert.Contains(t, stored.Renditions, "720p")
}

func TestProcessExplicitQualitiesMayUpscale(t *testing.T) {
	f := newWorkerFixture(t)
	f.prober.height = 480
	job := f.claimedJob(t, []string{"720p"})

	require.NoError(t, f.worker.Process(context.Background(), job))

	assert.Equal(t, []string{"720p"}, f.encoder.encoded,
		"named qualities ignore the source cap")
}

func TestProcessLowSourceGetsLowestRung(t *testing.T) {
	f := newWorkerFixture(t)
	f.prober.height = 240
	job := f.claimedJob(t, nil)

	require.NoError(t, f.worker.Process(context.Background(), job))
	assert.Equal(t, []string{"480p"}, f.encoder.encoded)
}

func TestProcessCompleteErrorSkipsMerge(t *testing.T) {
	f := newWorkerFixture(t)
	f.jobs.completeErr = errors.New("database gone")
	job := f.claimedJob(t, nil)

	err := f.worker.Process(context.Background(), job)
	require.Error(t, err)
	assert.Empty(t, f.assets.merged,
		"the catalog must not hear about renditions before the queue records them")
}

func TestProcessMergeErrorAfterCompletion(t *testing.T) {
	f := newWorkerFixture(t)
	f.assets.mergeErr = errors.New("catalog offline")
	job := f.claimedJob(t, nil)

	err := f.worker.Process(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asset merge failed")

	stored, getErr := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status,
		"the queue row keeps its completed state")
}

func TestProcessReprocessingOverwritesSameKeys(t *testing.T) {
	f := newWorkerFixture(t)

	first := f.claimedJob(t, []string{"720p"})
	require.NoError(t, f.worker.Process(context.Background(), first))

	second := domain.NewJob(first.AssetID, "masters/ep01.mov", []string{"720p"})
	require.NoError(t, f.jobs.Enqueue(context.Background(), second))
	claimed, err := f.jobs.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.worker.Process(context.Background(), claimed))

	count := 0
	for key := range f.blobs.objects {
		if key == "masters/ep01_720p.mp4" {
			count++
		}
	}
	assert.Equal(t, 1, count, "reprocessing must not orphan old output")
	assert.Len(t, f.assets.merged[first.AssetID], 2)
}
