// Package s3 provides an S3-backed implementation of cas.BlobStore.
//
// Blobs are stored one object per content key, so the bucket is directly
// inspectable and can be shared by any number of stateless engine instances.
// Content addressing makes concurrent writers safe: two puts of the same
// content target the same object with identical bytes, so last-write-wins
// is indistinguishable from first-write-wins.
//
// Supports S3-compatible storage (MinIO, Cubbit DS3, etc.) via custom
// endpoint configuration on the injected client.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/depotfs/pkg/cas"
)

// BlobStore implements cas.BlobStore using Amazon S3 or S3-compatible storage.
//
// Object Key Design:
//   - One object per blob, keyed "sha256/<hex digest>" under the optional
//     key prefix. The slash form keeps buckets browsable in consoles that
//     render "/" as folders.
//   - The declared content type is stored as the object's Content-Type.
//   - Caller metadata is stored as S3 object metadata (x-amz-meta-*).
//
// DAG nodes are not stored here. S3 round-trips are too slow for the
// traversal-heavy node workload; pair this store with the memory or badger
// DagStore.
type BlobStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// BlobStoreConfig contains configuration for the S3 blob store.
type BlobStoreConfig struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "depotfs/" results in keys like "depotfs/sha256/abc..."
	KeyPrefix string
}

// NewBlobStore creates a new S3-based blob store.
//
// The bucket must already exist; this function verifies access with a
// HeadBucket call and does not create it.
func NewBlobStore(ctx context.Context, cfg BlobStoreConfig) (*BlobStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &BlobStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// objectKey returns the full S3 object key for a content key.
func (s *BlobStore) objectKey(key cas.Key) string {
	return s.keyPrefix + "sha256/" + key.Digest()
}

// Exists checks whether content with the given key is stored.
func (s *BlobStore) Exists(ctx context.Context, key cas.Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, &cas.StoreError{
			Code:    cas.ErrIOError,
			Message: fmt.Sprintf("failed to check object existence: %v", err),
			Key:     key,
		}
	}

	return true, nil
}

// Get retrieves a blob by key.
func (s *BlobStore) Get(ctx context.Context, key cas.Key) (*cas.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, &cas.StoreError{
				Code:    cas.ErrNotFound,
				Message: "blob not found",
				Key:     key,
			}
		}
		return nil, &cas.StoreError{
			Code:    cas.ErrIOError,
			Message: fmt.Sprintf("failed to get object from S3: %v", err),
			Key:     key,
		}
	}
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, &cas.StoreError{
			Code:    cas.ErrIOError,
			Message: fmt.Sprintf("failed to read object body: %v", err),
			Key:     key,
		}
	}

	blob := &cas.Blob{
		Key:     key,
		Content: content,
		Size:    uint64(len(content)),
	}
	if result.ContentType != nil {
		blob.ContentType = *result.ContentType
	}
	if len(result.Metadata) > 0 {
		blob.Metadata = result.Metadata
	}
	if result.LastModified != nil {
		blob.CreatedAt = *result.LastModified
	} else {
		blob.CreatedAt = time.Now()
	}

	return blob, nil
}

// Put stores content under its computed key.
func (s *BlobStore) Put(ctx context.Context, content []byte, contentType string, metadata map[string]string) (*cas.PutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.store(ctx, cas.ComputeKey(content), content, contentType, metadata)
}

// PutWithKey stores content after verifying the caller-declared key.
func (s *BlobStore) PutWithKey(ctx context.Context, expected cas.Key, content []byte, contentType string, metadata map[string]string) (*cas.PutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := cas.VerifyKey(expected, content); err != nil {
		return nil, err
	}

	return s.store(ctx, expected, content, contentType, metadata)
}

// store uploads the object unless it already exists. The existence check
// saves re-uploading identical bytes; a racing duplicate upload is harmless
// because both writers carry the same content.
func (s *BlobStore) store(ctx context.Context, key cas.Key, content []byte, contentType string, metadata map[string]string) (*cas.PutResult, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if exists {
		return &cas.PutResult{
			Key:   key,
			Size:  uint64(len(content)),
			IsNew: false,
		}, nil
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(content),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if len(metadata) > 0 {
		input.Metadata = metadata
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, &cas.StoreError{
			Code:    cas.ErrIOError,
			Message: fmt.Sprintf("failed to write object to S3: %v", err),
			Key:     key,
		}
	}

	return &cas.PutResult{
		Key:   key,
		Size:  uint64(len(content)),
		IsNew: true,
	}, nil
}
