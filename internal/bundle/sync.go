package bundle

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/raphaelgruber/escalate-go/internal/storage"
)

// Key returns the object key of a bundle file.
func Key(file string) string {
	return storage.ModelPrefix + file
}

// Upload puts a saved bundle from dir into the store. Components go first
// and the manifest last, so a reader that finds the manifest finds a
// complete bundle.
func Upload(ctx context.Context, s storage.Store, dir string) error {
	m, err := ReadManifest(dir)
	if err != nil {
		return err
	}
	for _, file := range m.Files() {
		if err := s.Put(ctx, filepath.Join(dir, file), Key(file)); err != nil {
			return fmt.Errorf("upload bundle: %w", err)
		}
	}
	if err := s.Put(ctx, filepath.Join(dir, FileManifest), Key(FileManifest)); err != nil {
		return fmt.Errorf("upload bundle: %w", err)
	}
	return nil
}

// Download fetches the manifest and the components it lists into dir and
// loads the result.
func Download(ctx context.Context, s storage.Store, dir string) (*Bundle, error) {
	if err := s.Fetch(ctx, Key(FileManifest), filepath.Join(dir, FileManifest)); err != nil {
		return nil, fmt.Errorf("download bundle: %w", err)
	}
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	for _, file := range m.Files() {
		if err := s.Fetch(ctx, Key(file), filepath.Join(dir, file)); err != nil {
			return nil, fmt.Errorf("download bundle: %w", err)
		}
	}
	return Load(dir)
}
