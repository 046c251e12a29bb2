package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/estroop3-gif/second-watch-network-sub004/internal/port"
)

// Store keeps blobs under a root directory, one file per key. It backs
// development and single-host deployments where running object storage is
// not worth it.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) path(key string) (string, error) {
	if key == "" || !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *Store) Download(ctx context.Context, key, destPath string) error {
	src, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	return copyFile(src, destPath)
}

func (s *Store) Upload(ctx context.Context, localPath, key, contentType string) error {
	dest, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	// Write through a temp name so readers never see a half-copied blob.
	tmp := dest + ".tmp"
	if err := copyFile(localPath, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

// PresignedURL returns a file URL. There is nothing to sign on a local
// filesystem, so the expiry is ignored.
func (s *Store) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// Delete removes the blob. Deleting a missing key succeeds, matching object
// storage semantics.
func (s *Store) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return err
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("copy to %s: %w", dest, err)
	}
	return out.Close()
}

var _ port.BlobStore = (*Store)(nil)
