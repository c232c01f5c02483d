// Package ownership tracks per-realm claims on CAS keys.
//
// Blobs are shared storage: the same content key can be claimed by many
// realms independently, and a realm deleting its claim never touches the
// blob itself. The ledger answers "which keys does this realm hold" for
// listing and quota purposes, and "which realms hold this key" in aggregate
// for garbage-collection accounting.
package ownership

import (
	"context"
	"time"

	"github.com/marmos91/depotfs/pkg/cas"
)

// Record is one realm's claim on a CAS key.
type Record struct {
	// Realm is the tenant namespace holding the claim
	Realm string

	// Key is the claimed CAS key
	Key cas.Key

	// CreatedBy identifies the credential that registered the claim
	CreatedBy string

	// ContentType is the declared MIME type of the claimed content
	ContentType string

	// Size is the content size in bytes, denormalized here so realm usage
	// can be totalled without touching the blob store
	Size uint64

	// CreatedAt is when the claim was registered
	CreatedAt time.Time
}

// Attributes carries the caller-supplied fields of a new claim.
type Attributes struct {
	CreatedBy   string
	ContentType string
	Size        uint64
}

// CheckResult partitions a batch of keys by claim existence.
type CheckResult struct {
	// Found holds the keys the realm has claimed
	Found []cas.Key

	// Missing holds the keys the realm has not claimed
	Missing []cas.Key
}

// ListOptions controls cursor pagination for ListNodes.
type ListOptions struct {
	// Limit is the maximum number of records to return. Zero means no limit.
	Limit int

	// StartKey resumes listing after the record with this key, as returned
	// in a previous page's NextKey. Empty starts from the beginning.
	StartKey cas.Key
}

// Page is one page of a realm's claims.
//
// Records are ordered by CreatedAt descending (newest claims first), with
// key order as a tiebreak so pagination is deterministic under equal
// timestamps.
type Page struct {
	// Records holds the page contents
	Records []*Record

	// NextKey is the cursor for the following page. It is only set when the
	// page was full AND more records remain; an absent NextKey means the
	// listing is complete.
	NextKey cas.Key

	// Total is the realm's total claim count, independent of pagination
	Total int
}

// Usage summarizes a realm's aggregate claims.
type Usage struct {
	// Count is the number of claims held by the realm
	Count int

	// TotalSize is the sum of claimed content sizes in bytes. Shared blobs
	// are counted once per claiming realm, which is the correct basis for
	// per-tenant quota accounting.
	TotalSize uint64
}

// Ledger stores ownership claims.
//
// Error Contract:
//   - GetOwnership on an absent (realm, key) pair returns *cas.StoreError
//     with ErrNotFound.
//   - DeleteOwnership on an absent pair returns the same; deletion of an
//     existing claim is a tenant-scoped unlink, never a blob delete.
//   - AddOwnership is idempotent per (realm, key): re-adding returns the
//     existing record unchanged.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type Ledger interface {
	// HasOwnership checks whether the realm has claimed the key.
	HasOwnership(ctx context.Context, realm string, key cas.Key) (bool, error)

	// GetOwnership retrieves the realm's claim on the key.
	GetOwnership(ctx context.Context, realm string, key cas.Key) (*Record, error)

	// CheckOwnership partitions keys into claimed and unclaimed for the
	// realm. Used before allowing a DAG node to reference children: every
	// child must already be claimed by the writing realm.
	CheckOwnership(ctx context.Context, realm string, keys []cas.Key) (*CheckResult, error)

	// AddOwnership registers the realm's claim on the key.
	AddOwnership(ctx context.Context, realm string, key cas.Key, attrs Attributes) (*Record, error)

	// ListNodes returns one page of the realm's claims, newest first.
	ListNodes(ctx context.Context, realm string, opts ListOptions) (*Page, error)

	// DeleteOwnership removes the realm's claim on the key.
	DeleteOwnership(ctx context.Context, realm string, key cas.Key) error

	// GetUsage returns the realm's aggregate claim count and size.
	GetUsage(ctx context.Context, realm string) (*Usage, error)

	// ListAllKeys returns every distinct CAS key claimed by any realm.
	// This is the reference set for garbage-collection accounting: a blob
	// whose key appears here is live regardless of which realm claimed it.
	ListAllKeys(ctx context.Context) ([]cas.Key, error)
}
