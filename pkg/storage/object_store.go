package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/noah-isme/admissions-api/pkg/config"
)

// ErrObjectNotFound is returned when the storage key has no backing object.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore issues short-lived credentials against an S3-compatible bucket.
type ObjectStore struct {
	client         *minio.Client
	bucket         string
	uploadURLTTL   time.Duration
	downloadURLTTL time.Duration
}

// ObjectInfo is the subset of object metadata the workflow cares about.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// NewObjectStore connects to the bucket, creating it when absent.
func NewObjectStore(ctx context.Context, cfg config.StorageConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	uploadTTL := cfg.UploadURLTTL
	if uploadTTL <= 0 {
		uploadTTL = 60 * time.Second
	}
	downloadTTL := cfg.DownloadURLTTL
	if downloadTTL <= 0 {
		downloadTTL = 5 * time.Minute
	}

	return &ObjectStore{
		client:         client,
		bucket:         cfg.Bucket,
		uploadURLTTL:   uploadTTL,
		downloadURLTTL: downloadTTL,
	}, nil
}

// PresignUpload returns a PUT URL valid for the configured upload TTL.
func (s *ObjectStore) PresignUpload(ctx context.Context, key string) (string, time.Time, error) {
	expiresAt := time.Now().Add(s.uploadURLTTL)
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.uploadURLTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign upload %s: %w", key, err)
	}
	return u.String(), expiresAt, nil
}

// PresignDownload returns a GET URL that suggests the original filename to the browser.
func (s *ObjectStore) PresignDownload(ctx context.Context, key, filename string) (string, time.Time, error) {
	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	expiresAt := time.Now().Add(s.downloadURLTTL)
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.downloadURLTTL, params)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign download %s: %w", key, err)
	}
	return u.String(), expiresAt, nil
}

// Stat confirms the object exists. Missing keys yield ErrObjectNotFound.
func (s *ObjectStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	return &ObjectInfo{Key: info.Key, Size: info.Size, ContentType: info.ContentType}, nil
}

// Delete removes the object. Deleting a missing key is not an error.
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}
