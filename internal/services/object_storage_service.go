package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/photosync/photosync/internal/config"
	"github.com/photosync/photosync/internal/observability"
)

// ObjectStorageService stores photos in a MinIO/S3 bucket
type ObjectStorageService struct {
	client *minio.Client
	bucket string
	policy uploadPolicy
}

// NewObjectStorageService connects to MinIO and creates the bucket if needed
func NewObjectStorageService(ctx context.Context, cfg config.MinIO, allowedExtensions []string, maxFileSizeMB int64) (*ObjectStorageService, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		observability.Infof("Created bucket %s", cfg.Bucket)
	}

	return &ObjectStorageService{
		client: client,
		bucket: cfg.Bucket,
		policy: newUploadPolicy(allowedExtensions, maxFileSizeMB),
	}, nil
}

// objectKey files an upload under its Year/Month prefix.
// The random component keeps same-named uploads apart.
func objectKey(sanitizedFilename string, dateTaken time.Time) string {
	return fmt.Sprintf("%s/%s_%s", datePrefix(dateTaken), uuid.New().String()[:8], sanitizedFilename)
}

func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Store uploads a file to the bucket and returns its object key
func (s *ObjectStorageService) Store(ctx context.Context, r io.Reader, originalFilename string, dateTaken time.Time, fileSize int64) (string, error) {
	sanitizedFilename, err := s.policy.check(originalFilename, fileSize)
	if err != nil {
		return "", err
	}

	key := objectKey(sanitizedFilename, dateTaken)
	_, err = s.client.PutObject(ctx, s.bucket, key, r, fileSize, minio.PutObjectOptions{
		ContentType: contentTypeFor(sanitizedFilename),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return key, nil
}

// Put uploads data under an exact key
func (s *ObjectStorageService) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// Open returns a reader over a stored object
func (s *ObjectStorageService) Open(ctx context.Context, storedPath string) (io.ReadCloser, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, storedPath, minio.StatObjectOptions{}); err != nil {
		return nil, err
	}
	return s.client.GetObject(ctx, s.bucket, storedPath, minio.GetObjectOptions{})
}

// Delete removes an object from the bucket
func (s *ObjectStorageService) Delete(ctx context.Context, storedPath string) error {
	return s.client.RemoveObject(ctx, s.bucket, storedPath, minio.RemoveObjectOptions{})
}

// Exists reports whether an object is present
func (s *ObjectStorageService) Exists(ctx context.Context, storedPath string) bool {
	_, err := s.client.StatObject(ctx, s.bucket, storedPath, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code != "NoSuchKey" {
			observability.Warnf("Failed to stat object %s: %v", storedPath, err)
		}
		return false
	}
	return true
}
