package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Mirrored images never change once written, so downstream caches may hold
// them for a year.
const immutableCacheControl = "public, max-age=31536000"

// MinioConfig holds connection settings for an S3-compatible object store.
type MinioConfig struct {
	// Endpoint is the server URL (e.g. "localhost:9000")
	Endpoint string

	// Bucket is the bucket holding the images/ namespace
	Bucket string

	AccessKey string
	SecretKey string

	// UseSSL enables HTTPS connections
	UseSSL bool
}

func (c *MinioConfig) validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("access key and secret key are required")
	}
	return nil
}

// MinioObjectStore backs the object store with MinIO or any S3-compatible
// service. Used in deployments where mirrored images are served from a CDN
// bucket instead of local disk.
type MinioObjectStore struct {
	client *minio.Client
	bucket string
}

// NewMinioObjectStore validates the configuration and builds the client.
func NewMinioObjectStore(cfg MinioConfig) (*MinioObjectStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid minio config: %w", err)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioObjectStore{client: client, bucket: cfg.Bucket}, nil
}

// Put stores the blob with its content type and an immutable cache lifetime.
func (s *MinioObjectStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: immutableCacheControl,
	})
	return err
}

// Get returns the blob and its content type.
func (s *MinioObjectStore) Get(ctx context.Context, path string) ([]byte, string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", translateMinioErr(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", translateMinioErr(err)
	}

	info, err := obj.Stat()
	if err != nil {
		return nil, "", translateMinioErr(err)
	}
	return data, info.ContentType, nil
}

// Exists reports whether an object is already stored at path.
func (s *MinioObjectStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the object. Deleting a missing object is a no-op.
func (s *MinioObjectStore) Delete(ctx context.Context, path string) error {
	return s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{})
}

func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func translateMinioErr(err error) error {
	if isMinioNotFound(err) {
		return ErrNotFound
	}
	return err
}
