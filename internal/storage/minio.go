package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/magadiflo/usersvc/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioBackend keeps seed manifests in a MinIO or other S3-compatible bucket.
type MinioBackend struct {
	api    *minio.Client
	bucket string
}

// NewMinioBackend builds the SDK client. minio.New does not dial, so a bad
// endpoint only shows up on the first request.
func NewMinioBackend(cfg config.MinioConfig) (*MinioBackend, error) {
	switch {
	case strings.TrimSpace(cfg.Endpoint) == "":
		return nil, errors.New("minio endpoint is required")
	case strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "":
		return nil, errors.New("minio access key and secret key are required")
	case strings.TrimSpace(cfg.Bucket) == "":
		return nil, errors.New("minio bucket is required")
	}

	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioBackend{api: api, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the manifest bucket unless it is already there.
func (b *MinioBackend) EnsureBucket(ctx context.Context) error {
	err := b.api.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{})
	if err == nil {
		return nil
	}
	if exists, existsErr := b.api.BucketExists(ctx, b.bucket); existsErr == nil && exists {
		return nil
	}
	return fmt.Errorf("create bucket %s: %w", b.bucket, err)
}

func (b *MinioBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if _, err := b.api.PutObject(ctx, b.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("put %s/%s: %w", b.bucket, key, err)
	}
	return nil
}

// Get returns the object body. GetObject is lazy, so Stat forces the request
// and turns a missing manifest into ErrObjectNotFound.
func (b *MinioBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := b.api.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", b.bucket, key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%s/%s: %w", b.bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("get %s/%s: %w", b.bucket, key, err)
	}
	return obj, nil
}

func (b *MinioBackend) Bucket() string { return b.bucket }

// Close is a no-op; the MinIO client holds no resources to release.
func (b *MinioBackend) Close() error { return nil }
