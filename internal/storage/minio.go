package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig configures a MinIOStore.
type MinIOConfig struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinIOStore keeps objects in a bucket on a MinIO server through the
// native MinIO client.
type MinIOStore struct {
	client *minio.Client
	bucket string
	region string
	logger *slog.Logger
}

// NewMinIOStore connects to the configured server. No request is made until
// the first call.
func NewMinIOStore(cfg MinIOConfig, logger *slog.Logger) (*MinIOStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	if endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("minio bucket is required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket, region: cfg.Region, logger: logger}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("created bucket", "bucket", s.bucket)
	return nil
}

func minioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}

func (s *MinIOStore) stat(ctx context.Context, key string) (minio.ObjectInfo, bool, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minioNotFound(err) {
			return minio.ObjectInfo{}, false, nil
		}
		return minio.ObjectInfo{}, false, fmt.Errorf("stat %s: %w", key, err)
	}
	return info, true, nil
}

// Exists reports whether key is present.
func (s *MinIOStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.stat(ctx, key)
	return ok, err
}

// IntegrityTag returns the object's ETag without quotes.
func (s *MinIOStore) IntegrityTag(ctx context.Context, key string) (string, bool, error) {
	info, ok, err := s.stat(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	return strings.Trim(info.ETag, `"`), true, nil
}

// Fetch downloads key to localPath.
func (s *MinIOStore) Fetch(ctx context.Context, key, localPath string) error {
	if _, ok, err := s.stat(ctx, key); err != nil {
		return err
	} else if !ok {
		return &MissingArtifactError{Key: key}
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	defer obj.Close()

	if err := writeAtomic(localPath, obj); err != nil {
		if minioNotFound(err) {
			return &MissingArtifactError{Key: key}
		}
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	s.logger.Debug("fetched object", "bucket", s.bucket, "key", key, "path", localPath)
	return nil
}

// Put uploads localPath to key.
func (s *MinIOStore) Put(ctx context.Context, localPath, key string) error {
	info, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.Debug("stored object", "bucket", s.bucket, "key", key, "size", info.Size)
	return nil
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".csv"):
		return "text/csv"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".yaml"):
		return "application/yaml"
	}
	return "application/octet-stream"
}
