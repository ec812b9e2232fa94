// Package objectstore archives generated artefacts in S3 compatible storage.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config describes the minio endpoint.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Enabled reports whether an endpoint was configured.
func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Store puts objects into a single bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// New connects to minio and makes sure the bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if !cfg.Enabled() {
		return nil, errors.New("platform/objectstore: endpoint and bucket required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("platform/objectstore: client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("platform/objectstore: bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("platform/objectstore: make bucket: %w", err)
		}
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads data under name.
func (s *Store) Put(ctx context.Context, name, contentType string, data []byte) error {
	if s == nil || s.client == nil {
		return errors.New("platform/objectstore: store not initialised")
	}
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("platform/objectstore: put %s: %w", name, err)
	}
	return nil
}
