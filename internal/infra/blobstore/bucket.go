// Package blobstore implements the ingest.ObjectStore contract (C1) against
// a durable S3-compatible bucket and a local scratch directory.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yanqian/meridian/internal/domain/ingest"
)

// Bucket stores objects in an S3-compatible object store.
type Bucket struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewBucket constructs the durable object-storage adapter.
func NewBucket(endpoint, accessKey, secretKey, bucket, region string, useSSL bool, logger *slog.Logger) (*Bucket, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(sanitizeEndpoint(endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       useSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}
	return &Bucket{client: client, bucket: bucket, logger: logger.With("component", "blobstore.bucket")}, nil
}

func (b *Bucket) ensureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err == nil && exists {
		return nil
	}
	err = b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return err
	}
	return nil
}

// Put uploads data to the bucket under key.
func (b *Bucket) Put(ctx context.Context, key string, data []byte, mimeType string) (ingest.StoredObject, error) {
	if err := b.ensureBucket(ctx); err != nil {
		return ingest.StoredObject{}, err
	}
	info, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:      mimeType,
		DisableMultipart: len(data) < 5*1024*1024,
	})
	if err != nil {
		return ingest.StoredObject{}, err
	}
	return ingest.StoredObject{
		Key:      key,
		URL:      fmt.Sprintf("s3://%s/%s", b.bucket, key),
		Size:     info.Size,
		MimeType: mimeType,
	}, nil
}

// Get reads an object's full contents.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	if _, statErr := obj.Stat(); statErr != nil {
		return nil, statErr
	}
	return io.ReadAll(obj)
}

// Delete removes an object.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	return b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{})
}

// List returns every object key under prefix.
func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

var _ ingest.ObjectStore = (*Bucket)(nil)

func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if idx := strings.Index(raw, "/"); idx >= 0 {
		raw = raw[:idx]
	}
	return raw
}
