package cas

import (
	"context"
	"time"
)

// ============================================================================
// BlobStore Interface
// ============================================================================

// Blob is a stored content item together with its descriptive metadata.
type Blob struct {
	// Key is the content-addressed key ("sha256:<hex>")
	Key Key

	// Content is the raw blob bytes
	Content []byte

	// ContentType is the declared MIME type (may be empty)
	ContentType string

	// Metadata carries optional caller-supplied attributes
	Metadata map[string]string

	// Size is the content length in bytes
	Size uint64

	// CreatedAt is when the blob was first stored
	CreatedAt time.Time
}

// PutResult reports the outcome of a successful put.
type PutResult struct {
	// Key is the content-addressed key of the stored blob
	Key Key

	// Size is the content length in bytes
	Size uint64

	// IsNew is false when identical content was already present. The put is
	// still a success in that case; the bytes are simply not re-stored.
	IsNew bool
}

// BlobStore provides content-addressed byte storage.
//
// Every blob is keyed by the SHA-256 hash of its content, so the store is
// write-once by construction: a key either doesn't exist or maps to exactly
// the bytes that hash to it. Implementations must verify this invariant on
// every write path rather than trusting callers.
//
// Multi-tenancy is NOT a blob store concern. Blobs are shared across realms;
// which realm may see a key is tracked by the ownership ledger, and blob
// lifetime is governed by the union of ownership rows (garbage collection,
// elsewhere). Deleting an ownership row never deletes a blob.
//
// Error Contract:
//   - Get on an absent key returns *StoreError with ErrNotFound.
//   - PutWithKey with a non-matching key returns *StoreError with
//     ErrHashMismatch carrying Expected and Actual; the blob is NOT stored.
//   - Both are normal results. Only backend failures (disk, network) are
//     surfaced as other errors.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
// Concurrent puts of identical content must converge on a single stored
// copy, with at most one caller observing IsNew=true.
type BlobStore interface {
	// Exists checks whether content with the given key is stored.
	//
	// Returns false (not an error) for absent keys; errors are reserved for
	// backend failures and context cancellation.
	Exists(ctx context.Context, key Key) (bool, error)

	// Get retrieves a blob by key.
	//
	// Returns *StoreError with ErrNotFound if the key is absent.
	Get(ctx context.Context, key Key) (*Blob, error)

	// Put stores content and returns its computed key.
	//
	// The operation is idempotent: storing identical content twice returns
	// the same key with IsNew=false on the second call, and the bytes are
	// never written twice.
	Put(ctx context.Context, content []byte, contentType string, metadata map[string]string) (*PutResult, error)

	// PutWithKey stores content that the caller has already keyed.
	//
	// The key is always recomputed from the content and compared against
	// expected before acceptance. On mismatch the blob is not stored and a
	// *StoreError with ErrHashMismatch (carrying both keys) is returned.
	// Used by upload paths where the remote party declares the key up front.
	PutWithKey(ctx context.Context, expected Key, content []byte, contentType string, metadata map[string]string) (*PutResult, error)
}
