// Package memory provides in-memory implementations of the cas interfaces.
//
// These stores are suitable for testing, development, and ephemeral
// deployments. All data is lost on restart. For persistence use the badger
// or s3 backends, which implement the same interfaces.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/depotfs/pkg/cas"
)

// blobData is the stored representation of a blob. Content is kept as an
// immutable slice; readers receive copies so callers can never alias the
// store's buffers.
type blobData struct {
	content     []byte
	contentType string
	metadata    map[string]string
	createdAt   time.Time
}

// BlobStore implements cas.BlobStore using in-memory storage.
//
// Thread Safety:
// All operations are protected by a single read-write mutex. Concurrent
// readers never block each other; concurrent puts of identical content
// converge on one stored copy with at most one caller observing IsNew=true.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[cas.Key]*blobData
	now   func() time.Time
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		blobs: make(map[cas.Key]*blobData),
		now:   time.Now,
	}
}

// Exists checks whether content with the given key is stored.
func (store *BlobStore) Exists(ctx context.Context, key cas.Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	_, exists := store.blobs[key]
	return exists, nil
}

// Get retrieves a blob by key.
func (store *BlobStore) Get(ctx context.Context, key cas.Key) (*cas.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	data, exists := store.blobs[key]
	if !exists {
		return nil, &cas.StoreError{
			Code:    cas.ErrNotFound,
			Message: "blob not found",
			Key:     key,
		}
	}

	// Copy content and metadata so callers cannot mutate stored state.
	content := make([]byte, len(data.content))
	copy(content, data.content)

	var metadata map[string]string
	if data.metadata != nil {
		metadata = make(map[string]string, len(data.metadata))
		for k, v := range data.metadata {
			metadata[k] = v
		}
	}

	return &cas.Blob{
		Key:         key,
		Content:     content,
		ContentType: data.contentType,
		Metadata:    metadata,
		Size:        uint64(len(data.content)),
		CreatedAt:   data.createdAt,
	}, nil
}

// Put stores content under its computed key.
func (store *BlobStore) Put(ctx context.Context, content []byte, contentType string, metadata map[string]string) (*cas.PutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return store.store(cas.ComputeKey(content), content, contentType, metadata)
}

// PutWithKey stores content after verifying the caller-declared key.
func (store *BlobStore) PutWithKey(ctx context.Context, expected cas.Key, content []byte, contentType string, metadata map[string]string) (*cas.PutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := cas.VerifyKey(expected, content); err != nil {
		return nil, err
	}

	return store.store(expected, content, contentType, metadata)
}

// store inserts the blob if absent. The key has already been computed or
// verified by the caller.
func (store *BlobStore) store(key cas.Key, content []byte, contentType string, metadata map[string]string) (*cas.PutResult, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, exists := store.blobs[key]; exists {
		return &cas.PutResult{
			Key:   key,
			Size:  uint64(len(content)),
			IsNew: false,
		}, nil
	}

	stored := make([]byte, len(content))
	copy(stored, content)

	var metaCopy map[string]string
	if metadata != nil {
		metaCopy = make(map[string]string, len(metadata))
		for k, v := range metadata {
			metaCopy[k] = v
		}
	}

	store.blobs[key] = &blobData{
		content:     stored,
		contentType: contentType,
		metadata:    metaCopy,
		createdAt:   store.now(),
	}

	return &cas.PutResult{
		Key:   key,
		Size:  uint64(len(content)),
		IsNew: true,
	}, nil
}

// Len returns the number of stored blobs. Used by tests and statistics.
func (store *BlobStore) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.blobs)
}
