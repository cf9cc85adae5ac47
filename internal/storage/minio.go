package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore is the blob store behind SourceStorage.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) (int64, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
	URL(ctx context.Context, key string) (string, error)
}

// PutOptions are applied to an object on upload.
type PutOptions struct {
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

// MinIOStorage is a thin wrapper around the minio client used by services.
type MinIOStorage struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewMinIOStorage creates a new MinIO storage client and ensures the bucket exists.
func NewMinIOStorage(cfg *MinIOConfig) (*MinIOStorage, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &MinIOStorage{client: mc, bucket: cfg.Bucket, expiry: cfg.urlExpiry()}
	// ensure bucket exists (idempotent)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// ignore "already exists" style errors
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// Put uploads r under key and returns the stored size.
func (s *MinIOStorage) Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) (int64, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// Get returns a ReadCloser for the stored object.
func (s *MinIOStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// perform a stat to ensure object exists
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

func (s *MinIOStorage) Remove(ctx context.Context, key string) error {
	// RemoveObject succeeds on missing keys; stat first so a bad path is reported
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return err
	}
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// URL returns a presigned GET URL.
func (s *MinIOStorage) URL(ctx context.Context, key string) (string, error) {
	reqParams := make(url.Values)
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, reqParams)
	if err != nil {
		return "", err
	}
	return presigned.String(), nil
}
