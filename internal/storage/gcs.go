package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/magadiflo/usersvc/config"
	"google.golang.org/api/option"
)

// GCSBackend keeps seed manifests in a Google Cloud Storage bucket.
type GCSBackend struct {
	client    *storage.Client
	handle    *storage.BucketHandle
	bucket    string
	projectID string
}

// NewGCSBackend opens a client with the credentials file from cfg, or with
// application default credentials when none is set.
func NewGCSBackend(ctx context.Context, cfg config.GCSConfig) (*GCSBackend, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSBackend{
		client:    client,
		handle:    client.Bucket(bucket),
		bucket:    bucket,
		projectID: strings.TrimSpace(cfg.ProjectID),
	}, nil
}

// EnsureBucket creates the bucket when missing, which needs GCS_PROJECT_ID.
func (b *GCSBackend) EnsureBucket(ctx context.Context) error {
	_, err := b.handle.Attrs(ctx)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, storage.ErrBucketNotExist):
		return fmt.Errorf("bucket %s: %w", b.bucket, err)
	case b.projectID == "":
		return fmt.Errorf("bucket %s does not exist and no project id is set to create it", b.bucket)
	}
	return b.handle.Create(ctx, b.projectID, nil)
}

// Put writes the object in a single request; manifests are small.
func (b *GCSBackend) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	w := b.handle.Object(key).NewWriter(ctx)
	w.ChunkSize = 0
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("put %s/%s: %w", b.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("put %s/%s: %w", b.bucket, key, err)
	}
	return nil
}

func (b *GCSBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := b.handle.Object(key).NewReader(ctx)
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		return nil, fmt.Errorf("%s/%s: %w", b.bucket, key, ErrObjectNotFound)
	case err != nil:
		return nil, fmt.Errorf("get %s/%s: %w", b.bucket, key, err)
	}
	return rc, nil
}

func (b *GCSBackend) Bucket() string { return b.bucket }

func (b *GCSBackend) Close() error { return b.client.Close() }
