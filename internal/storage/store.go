// Package storage is the object store the pipeline stages exchange
// artifacts through. Calls are synchronous and never retried here; retry
// policy belongs to the caller.
package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// Well-known object keys.
const (
	KeyTasks      = "data/tasks.csv"
	KeySchedules  = "data/schedules.csv"
	KeyUsers      = "data/users.csv"
	KeyRules      = "data/rules.csv"
	KeyTrain      = "data/train/train.csv"
	KeyValidation = "data/validation/validation.csv"
	KeyCategories = "data/categories.json"
	ModelPrefix   = "model/"
)

// RawKeys lists the raw table keys in upload order.
var RawKeys = []string{KeyTasks, KeySchedules, KeyRules, KeyUsers}

// ErrArtifactMissing indicates an expected object is absent from the store.
var ErrArtifactMissing = errors.New("upstream artifact missing")

// MissingArtifactError names the absent object. It matches
// ErrArtifactMissing with errors.Is.
type MissingArtifactError struct {
	Key string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("%s: %s", ErrArtifactMissing, e.Key)
}

func (e *MissingArtifactError) Unwrap() error {
	return ErrArtifactMissing
}

// Store is a flat key/object store.
type Store interface {
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Fetch downloads key to localPath, creating parent directories.
	// A missing key yields a *MissingArtifactError.
	Fetch(ctx context.Context, key, localPath string) error
	// Put uploads localPath to key, replacing any existing object.
	Put(ctx context.Context, localPath, key string) error
	// IntegrityTag returns the stored object's content tag (an MD5 hex
	// digest for single-part objects). ok is false when key is absent.
	IntegrityTag(ctx context.Context, key string) (tag string, ok bool, err error)
}

// FileMD5 returns the hex MD5 digest of the file at path.
func FileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// UploadIfChanged uploads localPath to key unless the stored object's
// integrity tag already matches the local checksum. It reports whether an
// upload happened.
func UploadIfChanged(ctx context.Context, s Store, localPath, key string) (bool, error) {
	sum, err := FileMD5(localPath)
	if err != nil {
		return false, err
	}
	tag, ok, err := s.IntegrityTag(ctx, key)
	if err != nil {
		return false, fmt.Errorf("integrity tag %s: %w", key, err)
	}
	if ok && tag == sum {
		return false, nil
	}
	if err := s.Put(ctx, localPath, key); err != nil {
		return false, err
	}
	return true, nil
}
