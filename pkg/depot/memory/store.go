// Package memory provides an in-memory implementation of depot.Store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/depotfs/pkg/cas"
	"github.com/marmos91/depotfs/pkg/depot"
)

// Store implements depot.Store using in-memory storage.
//
// Thread Safety:
// A single mutex protects all maps. AdvanceRoot's read-modify-write runs
// entirely under the write lock, which gives the per-depot atomicity the
// contract requires.
type Store struct {
	mu sync.RWMutex

	// depots maps realm → depot id → depot
	depots map[string]map[string]*depot.Depot

	// names maps realm → depot name → depot id
	names map[string]map[string]string

	// history maps realm → depot id → rows in version order
	history map[string]map[string][]*depot.HistoryRecord

	// commits maps realm → root → commit
	commits map[string]map[cas.Key]*depot.Commit
}

// NewStore creates a new in-memory depot store.
func NewStore() *Store {
	return &Store{
		depots:  make(map[string]map[string]*depot.Depot),
		names:   make(map[string]map[string]string),
		history: make(map[string]map[string][]*depot.HistoryRecord),
		commits: make(map[string]map[cas.Key]*depot.Commit),
	}
}

// CreateDepot stores a new depot, enforcing per-realm name uniqueness.
func (store *Store) CreateDepot(ctx context.Context, d *depot.Depot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	realmNames, exists := store.names[d.Realm]
	if !exists {
		realmNames = make(map[string]string)
		store.names[d.Realm] = realmNames
	}
	if _, taken := realmNames[d.Name]; taken {
		return &cas.StoreError{
			Code:    cas.ErrAlreadyExists,
			Message: "depot name already in use: " + d.Name,
		}
	}

	realmDepots, exists := store.depots[d.Realm]
	if !exists {
		realmDepots = make(map[string]*depot.Depot)
		store.depots[d.Realm] = realmDepots
	}

	clone := *d
	realmDepots[d.ID] = &clone
	realmNames[d.Name] = d.ID
	return nil
}

// GetDepot retrieves a depot by id.
func (store *Store) GetDepot(ctx context.Context, realm string, depotID string) (*depot.Depot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	d, exists := store.depots[realm][depotID]
	if !exists {
		return nil, depotNotFound(depotID)
	}
	clone := *d
	return &clone, nil
}

// GetDepotByName retrieves a depot by its per-realm unique name.
func (store *Store) GetDepotByName(ctx context.Context, realm string, name string) (*depot.Depot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	id, exists := store.names[realm][name]
	if !exists {
		return nil, depotNotFound(name)
	}
	clone := *store.depots[realm][id]
	return &clone, nil
}

// ListDepots returns all of a realm's depots, ordered by name.
func (store *Store) ListDepots(ctx context.Context, realm string) ([]*depot.Depot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	depots := make([]*depot.Depot, 0, len(store.depots[realm]))
	for _, d := range store.depots[realm] {
		clone := *d
		depots = append(depots, &clone)
	}
	sort.Slice(depots, func(i, j int) bool {
		return depots[i].Name < depots[j].Name
	})
	return depots, nil
}

// AdvanceRoot atomically bumps the version and appends the history row.
func (store *Store) AdvanceRoot(ctx context.Context, realm string, depotID string, newRoot cas.Key, message string, now time.Time) (*depot.Depot, *depot.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	d, exists := store.depots[realm][depotID]
	if !exists {
		return nil, nil, depotNotFound(depotID)
	}

	d.Root = newRoot
	d.Version++
	d.UpdatedAt = now

	row := &depot.HistoryRecord{
		Realm:     realm,
		DepotID:   depotID,
		Version:   d.Version,
		Root:      newRoot,
		Message:   message,
		CreatedAt: now,
	}

	realmHistory, exists := store.history[realm]
	if !exists {
		realmHistory = make(map[string][]*depot.HistoryRecord)
		store.history[realm] = realmHistory
	}
	realmHistory[depotID] = append(realmHistory[depotID], row)

	depotClone := *d
	rowClone := *row
	return &depotClone, &rowClone, nil
}

// ListHistory returns one page of the depot's history, newest version
// first.
func (store *Store) ListHistory(ctx context.Context, realm string, depotID string, opts depot.HistoryOptions) (*depot.HistoryPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	if _, exists := store.depots[realm][depotID]; !exists {
		return nil, depotNotFound(depotID)
	}

	return depot.BuildHistoryPage(store.history[realm][depotID], opts), nil
}

// GetHistory retrieves a single history row by version.
func (store *Store) GetHistory(ctx context.Context, realm string, depotID string, version uint64) (*depot.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	for _, row := range store.history[realm][depotID] {
		if row.Version == version {
			clone := *row
			return &clone, nil
		}
	}
	return nil, &cas.StoreError{
		Code:    cas.ErrNotFound,
		Message: "history record not found",
	}
}

// CreateCommit stores a new commit, enforcing (realm, root) uniqueness.
func (store *Store) CreateCommit(ctx context.Context, commit *depot.Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	realmCommits, exists := store.commits[commit.Realm]
	if !exists {
		realmCommits = make(map[cas.Key]*depot.Commit)
		store.commits[commit.Realm] = realmCommits
	}
	if _, taken := realmCommits[commit.Root]; taken {
		return &cas.StoreError{
			Code:    cas.ErrAlreadyExists,
			Message: "commit already exists for root",
			Key:     commit.Root,
		}
	}

	clone := *commit
	realmCommits[commit.Root] = &clone
	return nil
}

// GetCommit retrieves a commit by its (realm, root) key.
func (store *Store) GetCommit(ctx context.Context, realm string, root cas.Key) (*depot.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	commit, exists := store.commits[realm][root]
	if !exists {
		return nil, commitNotFound(root)
	}
	clone := *commit
	return &clone, nil
}

// ListCommits returns one page of the realm's commits, newest first.
func (store *Store) ListCommits(ctx context.Context, realm string, opts depot.CommitListOptions) (*depot.CommitPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	sorted := make([]*depot.Commit, 0, len(store.commits[realm]))
	for _, commit := range store.commits[realm] {
		sorted = append(sorted, commit)
	}
	depot.SortCommitsNewestFirst(sorted)

	return depot.BuildCommitPage(sorted, opts)
}

// UpdateCommitTitle replaces the commit's title.
func (store *Store) UpdateCommitTitle(ctx context.Context, realm string, root cas.Key, title string) (*depot.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	commit, exists := store.commits[realm][root]
	if !exists {
		return nil, commitNotFound(root)
	}

	commit.Title = title
	clone := *commit
	return &clone, nil
}

// DeleteCommit removes a commit.
func (store *Store) DeleteCommit(ctx context.Context, realm string, root cas.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if _, exists := store.commits[realm][root]; !exists {
		return commitNotFound(root)
	}
	delete(store.commits[realm], root)
	return nil
}

func depotNotFound(idOrName string) error {
	return &cas.StoreError{
		Code:    cas.ErrNotFound,
		Message: "depot not found: " + idOrName,
	}
}

func commitNotFound(root cas.Key) error {
	return &cas.StoreError{
		Code:    cas.ErrNotFound,
		Message: "commit not found",
		Key:     root,
	}
}
