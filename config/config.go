package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port int

	// StoreDriver selects the job/asset store: "postgres" or "sqlite".
	StoreDriver string
	DatabaseURL string
	DataDir     string

	// BlobDriver selects object storage: "s3" or "fs".
	BlobDriver string
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	// S3AccessKey and S3SecretKey override the default credential chain;
	// both empty means instance/profile credentials.
	S3AccessKey string
	S3SecretKey string
	BlobDir     string

	WorkDir      string
	PollInterval time.Duration
	FFmpegPath   string
	FFprobePath  string

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "8090"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	pollSeconds, err := strconv.Atoi(getEnv("POLL_INTERVAL_SECONDS", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL_SECONDS: %w", err)
	}
	if pollSeconds < 1 {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS must be at least 1")
	}

	cfg := &Config{
		Port:         port,
		StoreDriver:  getEnv("STORE_DRIVER", "postgres"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DataDir:      getEnv("DATA_DIR", "/data"),
		BlobDriver:   getEnv("BLOB_DRIVER", "s3"),
		S3Bucket:     os.Getenv("S3_BUCKET"),
		S3Region:     getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:   os.Getenv("S3_ENDPOINT"),
		S3AccessKey:  os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:  os.Getenv("S3_SECRET_KEY"),
		BlobDir:      getEnv("BLOB_DIR", "/data/blobs"),
		WorkDir:      getEnv("WORK_DIR", os.TempDir()),
		PollInterval: time.Duration(pollSeconds) * time.Second,
		FFmpegPath:   getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:  getEnv("FFPROBE_PATH", "ffprobe"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
	}

	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required with STORE_DRIVER=postgres")
		}
	case "sqlite":
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.BlobDriver {
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required with BLOB_DRIVER=s3")
		}
	case "fs":
	default:
		return nil, fmt.Errorf("unknown BLOB_DRIVER %q", cfg.BlobDriver)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
