// Package depot manages named, versioned pointers to DAG roots (depots)
// and an append-only commit registry tagging arbitrary roots with
// provenance metadata.
//
// A depot behaves like a branch: its root moves and its version counts up
// by exactly one per move, leaving an immutable history row behind. A
// commit is an immutable tag on a root, keyed by (realm, root), with no
// ordering relationship to depots or other commits.
package depot

import (
	"context"
	"time"

	"github.com/marmos91/depotfs/pkg/cas"
)

// MainDepotName is the reserved name of a realm's default depot,
// bootstrapped by EnsureMainDepot.
const MainDepotName = "main"

// Depot is a named, mutable pointer to a DAG root.
type Depot struct {
	// Realm is the owning tenant namespace
	Realm string

	// ID is the depot id ("dpt_" prefixed)
	ID string

	// Name is the depot name, unique per realm
	Name string

	// Root is the current DAG root the depot points at
	Root cas.Key

	// Version counts root updates, starting at 1 on creation and
	// incrementing by exactly 1 per update
	Version uint64

	// Description is optional free text
	Description string

	// CreatedAt is when the depot was created
	CreatedAt time.Time

	// UpdatedAt is when the root last moved
	UpdatedAt time.Time
}

// HistoryRecord is one immutable row of a depot's update history. Rows are
// total-ordered by Version; creation (version 1) has no row.
type HistoryRecord struct {
	// Realm is the owning tenant namespace
	Realm string

	// DepotID is the depot the row belongs to
	DepotID string

	// Version is the depot version this update produced
	Version uint64

	// Root is the root the depot pointed at from this version on
	Root cas.Key

	// Message is optional free text describing the update
	Message string

	// CreatedAt is when the update happened
	CreatedAt time.Time
}

// Commit tags a DAG root with provenance metadata. Commits are keyed by
// (realm, root): a root is committed at most once per realm.
type Commit struct {
	// Realm is the owning tenant namespace
	Realm string

	// Root is the tagged DAG root
	Root cas.Key

	// Title is optional display text, the only mutable field
	Title string

	// CreatedBy identifies the credential that created the commit
	CreatedBy string

	// CreatedAt is when the commit was created
	CreatedAt time.Time
}

// HistoryPage is one page of a depot's history, newest version first.
type HistoryPage struct {
	// Records holds the page contents
	Records []*HistoryRecord

	// NextVersion is the cursor for the following page: the version of the
	// last returned row. Zero when the listing is complete; only set when
	// the page was full AND more rows remain.
	NextVersion uint64

	// Total is the depot's total history row count
	Total int
}

// HistoryOptions controls cursor pagination for ListHistory.
type HistoryOptions struct {
	// Limit is the maximum number of rows to return. Zero means no limit.
	Limit int

	// StartVersion resumes listing strictly below this version, as returned
	// in a previous page's NextVersion. Zero starts from the newest row.
	StartVersion uint64
}

// CommitPage is one page of a realm's commits, newest first with root order
// as a tiebreak.
type CommitPage struct {
	// Records holds the page contents
	Records []*Commit

	// NextKey is the cursor for the following page: the root of the last
	// returned commit. Only set when the page was full AND more remain.
	NextKey cas.Key

	// Total is the realm's total commit count
	Total int
}

// CommitListOptions controls cursor pagination for ListCommits.
type CommitListOptions struct {
	// Limit is the maximum number of commits to return. Zero means no limit.
	Limit int

	// StartKey resumes listing after the commit with this root. Empty
	// starts from the beginning.
	StartKey cas.Key
}

// Store persists depots, their history, and commits.
//
// Error Contract:
//   - Lookups of absent depots/commits return *cas.StoreError with
//     ErrNotFound.
//   - CreateDepot with a (realm, name) already in use, and CreateCommit
//     with a (realm, root) already tagged, return ErrAlreadyExists.
//
// Thread Safety:
// Implementations must be safe for concurrent use. AdvanceRoot must be
// atomic per depot: the version bump and history append happen together,
// and two racing advances on the same depot produce versions N+1 and N+2
// with two history rows, never a shared version.
type Store interface {
	// CreateDepot stores a new depot. The caller supplies a fully formed
	// record (id, version 1, timestamps set).
	CreateDepot(ctx context.Context, depot *Depot) error

	// GetDepot retrieves a depot by id.
	GetDepot(ctx context.Context, realm string, depotID string) (*Depot, error)

	// GetDepotByName retrieves a depot by its per-realm unique name.
	GetDepotByName(ctx context.Context, realm string, name string) (*Depot, error)

	// ListDepots returns all of a realm's depots, ordered by name.
	ListDepots(ctx context.Context, realm string) ([]*Depot, error)

	// AdvanceRoot atomically points the depot at newRoot, bumps the
	// version by exactly 1, stamps UpdatedAt with now, and appends the
	// matching history row.
	AdvanceRoot(ctx context.Context, realm string, depotID string, newRoot cas.Key, message string, now time.Time) (*Depot, *HistoryRecord, error)

	// ListHistory returns one page of the depot's history, newest version
	// first.
	ListHistory(ctx context.Context, realm string, depotID string, opts HistoryOptions) (*HistoryPage, error)

	// GetHistory retrieves a single history row by version.
	GetHistory(ctx context.Context, realm string, depotID string, version uint64) (*HistoryRecord, error)

	// CreateCommit stores a new commit.
	CreateCommit(ctx context.Context, commit *Commit) error

	// GetCommit retrieves a commit by its (realm, root) key.
	GetCommit(ctx context.Context, realm string, root cas.Key) (*Commit, error)

	// ListCommits returns one page of the realm's commits, newest first.
	ListCommits(ctx context.Context, realm string, opts CommitListOptions) (*CommitPage, error)

	// UpdateCommitTitle replaces the commit's title.
	UpdateCommitTitle(ctx context.Context, realm string, root cas.Key, title string) (*Commit, error)

	// DeleteCommit removes a commit.
	DeleteCommit(ctx context.Context, realm string, root cas.Key) error
}
