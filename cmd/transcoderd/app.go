package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/estroop3-gif/second-watch-network-sub004/config"
	fsblob "github.com/estroop3-gif/second-watch-network-sub004/internal/adapter/blobstore/fs"
	s3blob "github.com/estroop3-gif/second-watch-network-sub004/internal/adapter/blobstore/s3"
	ffmpegenc "github.com/estroop3-gif/second-watch-network-sub004/internal/adapter/encoder/ffmpeg"
	pgstore "github.com/estroop3-gif/second-watch-network-sub004/internal/adapter/storage/postgres"
	sqlitestore "github.com/estroop3-gif/second-watch-network-sub004/internal/adapter/storage/sqlite"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/infrastructure/logger"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/port"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/service"
)

// app wires the worker from configuration: one store, one blob backend,
// the ffmpeg adapters, and the runner on top.
type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	jobs   port.JobStore
	assets port.AssetStore
	blobs  port.BlobStore
	worker *service.TranscodeWorker
	runner *service.Runner

	closeStore func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	a := &app{cfg: cfg, log: log}

	switch cfg.StoreDriver {
	case "postgres":
		store, err := pgstore.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.jobs = pgstore.NewJobStore(store)
		a.assets = pgstore.NewAssetStore(store)
		a.closeStore = store.Close
	case "sqlite":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		store, err := sqlitestore.NewStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.jobs = sqlitestore.NewJobStore(store)
		a.assets = sqlitestore.NewAssetStore(store)
		a.closeStore = func() { _ = store.Close() }
	}

	switch cfg.BlobDriver {
	case "s3":
		blobs, err := s3blob.New(ctx, s3blob.Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open s3 blob store: %w", err)
		}
		a.blobs = blobs
	case "fs":
		blobs, err := fsblob.New(cfg.BlobDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open fs blob store: %w", err)
		}
		a.blobs = blobs
	}

	a.worker = service.NewTranscodeWorker(
		a.jobs, a.assets, a.blobs,
		ffmpegenc.NewProber(cfg.FFprobePath),
		ffmpegenc.NewEncoder(cfg.FFmpegPath, log),
		cfg.WorkDir, log,
	)
	a.runner = service.NewRunner(a.jobs, a.worker, cfg.PollInterval, log)
	return a, nil
}

func (a *app) Close() {
	if a.closeStore != nil {
		a.closeStore()
	}
}
