package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects as files under a root directory. Its integrity
// tag is the file's MD5 digest, matching single-part S3 ETags.
type LocalStore struct {
	root   string
	logger *slog.Logger
}

// NewLocalStore returns a store rooted at dir, creating it if needed.
func NewLocalStore(dir string, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &LocalStore{root: dir, logger: logger}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// Exists reports whether key is present.
func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Fetch copies key to localPath.
func (s *LocalStore) Fetch(_ context.Context, key, localPath string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := copyFile(p, localPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &MissingArtifactError{Key: key}
		}
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	s.logger.Debug("fetched object", "key", key, "path", localPath)
	return nil
}

// Put copies localPath to key.
func (s *LocalStore) Put(_ context.Context, localPath, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := copyFile(localPath, p); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.Debug("stored object", "key", key, "path", localPath)
	return nil
}

// IntegrityTag returns the MD5 digest of key.
func (s *LocalStore) IntegrityTag(ctx context.Context, key string) (string, bool, error) {
	ok, err := s.Exists(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	p, err := s.path(key)
	if err != nil {
		return "", false, err
	}
	sum, err := FileMD5(p)
	if err != nil {
		return "", false, err
	}
	return sum, true, nil
}

// copyFile writes src to dst through a temporary file and rename, so dst is
// either the old or the new content.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeAtomic(dst, in)
}

func writeAtomic(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
