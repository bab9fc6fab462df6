// Package s3storage is a blobstore.Medium backed by MinIO or any S3 compatible
// object store. Objects are already encrypted when they arrive here.
package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kiabasekou/ged-project/internal/blobstore"
	"github.com/kiabasekou/ged-project/internal/config"
)

const sealedContentType = "application/octet-stream"

// Storage wraps MinIO/S3 interactions for encrypted document payloads.
type Storage struct {
	client *minio.Client
	bucket string
	prefix string
	region string
}

var _ blobstore.Medium = (*Storage)(nil)

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client: client,
		bucket: cfg.S3Bucket,
		prefix: cfg.S3Prefix,
		region: cfg.S3Region,
	}, nil
}

// EnsureBucket makes sure the payload bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

func (s *Storage) objectName(key string) string {
	return s.prefix + key
}

// Put uploads a sealed payload. S3 PUTs are atomic per object.
func (s *Storage) Put(ctx context.Context, key string, data []byte) error {
	opts := minio.PutObjectOptions{ContentType: sealedContentType}
	_, err := s.client.PutObject(ctx, s.bucket, s.objectName(key), bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Get fetches a sealed payload. A missing key maps to blobstore.ErrObjectNotFound.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError("get object", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError("read object", err)
	}
	return buf, nil
}

// Delete removes a payload. S3 deletes of missing keys already succeed.
func (s *Storage) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.objectName(key), minio.RemoveObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// Walk lists every object under the configured prefix.
func (s *Storage) Walk(ctx context.Context, fn func(blobstore.ObjectInfo) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true})
	for obj := range objects {
		if obj.Err != nil {
			return fmt.Errorf("list objects: %w", obj.Err)
		}
		key := obj.Key[len(s.prefix):]
		if !blobstore.ValidLocator(key) {
			continue
		}
		if err := fn(blobstore.ObjectInfo{Key: key, Size: obj.Size, ModTime: obj.LastModified}); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func mapError(op string, err error) error {
	if isNoSuchKey(err) {
		return blobstore.ErrObjectNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
