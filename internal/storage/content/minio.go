package content

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const mtimeMetaKey = "Mtime"

// MinioConfig holds connection parameters for an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
}

// MinioStore keeps content in a MinIO or S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioStore wraps an existing client.
func NewMinioStore(client *minio.Client, bucket, rootPrefix string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket, prefix: rootPrefix}
}

// DialMinio builds a client from cfg and creates the bucket if it is missing.
func DialMinio(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
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
	return NewMinioStore(client, cfg.Bucket, cfg.Prefix), nil
}

func (s *MinioStore) objectKey(key string) string {
	return path.Join(s.prefix, key)
}

// Location returns the s3:// URL of key.
func (s *MinioStore) Location(key string) string {
	return "s3://" + s.bucket + "/" + s.objectKey(key)
}

// PutIfAbsent uploads data under key unless an object is already there.
// The source modification time travels as user metadata.
func (s *MinioStore) PutIfAbsent(ctx context.Context, key string, data []byte, modTime time.Time) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	objKey := s.objectKey(key)
	loc := s.Location(key)

	if _, err := s.client.StatObject(ctx, s.bucket, objKey, minio.StatObjectOptions{}); err == nil {
		return loc, ErrExists
	} else if !isNotFound(err) {
		return "", fmt.Errorf("stat %s: %w", objKey, err)
	}

	opts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	if !modTime.IsZero() {
		opts.UserMetadata = map[string]string{mtimeMetaKey: modTime.UTC().Format(time.RFC3339Nano)}
	}
	if _, err := s.client.PutObject(ctx, s.bucket, objKey, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return "", fmt.Errorf("put %s: %w", objKey, err)
	}
	return loc, nil
}

// Delete removes key. A missing key is not an error.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	objKey := s.objectKey(key)
	if err := s.client.RemoveObject(ctx, s.bucket, objKey, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove %s: %w", objKey, err)
	}
	return nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// HealthCheck verifies that the bucket is reachable.
func (s *MinioStore) HealthCheck(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}
