// Package badger provides a BadgerDB-backed implementation of depot.Store.
//
// Storage Model:
//
// Data Type      Prefix   Key Format                           Value Type
// =========================================================================
// Depot          "d:"     d:<realm>:<depot id>                 depotRecord (JSON)
// Name Index     "dn:"    dn:<realm>:<name>                    depot id (bytes)
// History Row    "h:"     h:<realm>:<depot id>:<version>       historyRecord (JSON)
// Commit         "c:"     c:<realm>:<root>                     commitRecord (JSON)
//
// History versions are zero-padded to 20 digits so lexicographic key order
// equals numeric version order and a prefix scan yields rows in sequence.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/depotfs/pkg/cas"
	"github.com/marmos91/depotfs/pkg/depot"
)

const (
	prefixDepot     = "d:"
	prefixDepotName = "dn:"
	prefixHistory   = "h:"
	prefixCommit    = "c:"
)

func keyDepot(realm string, depotID string) []byte {
	return []byte(prefixDepot + realm + ":" + depotID)
}

func keyDepotName(realm string, name string) []byte {
	return []byte(prefixDepotName + realm + ":" + name)
}

func keyHistory(realm string, depotID string, version uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%020d", prefixHistory, realm, depotID, version))
}

func keyHistoryPrefix(realm string, depotID string) []byte {
	return []byte(prefixHistory + realm + ":" + depotID + ":")
}

func keyCommit(realm string, root cas.Key) []byte {
	return []byte(prefixCommit + realm + ":" + string(root))
}

func keyCommitPrefix(realm string) []byte {
	return []byte(prefixCommit + realm + ":")
}

// depotRecord is the stored representation of a depot.
type depotRecord struct {
	Realm       string    `json:"realm"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Root        cas.Key   `json:"root"`
	Version     uint64    `json:"version"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// historyRecord is the stored representation of a history row.
type historyRecord struct {
	Version   uint64    `json:"version"`
	Root      cas.Key   `json:"root"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// commitRecord is the stored representation of a commit.
type commitRecord struct {
	Title     string    `json:"title,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store implements depot.Store using BadgerDB.
//
// Thread Safety:
// Mutations run under a store-level mutex on top of badger transactions,
// making AdvanceRoot's version bump plus history append atomic per depot.
type Store struct {
	mu sync.Mutex
	db *badger.DB
}

// StoreConfig contains configuration for the BadgerDB depot store.
type StoreConfig struct {
	// DBPath is the directory where BadgerDB will store its files
	DBPath string `mapstructure:"db_path" validate:"required"`
}

// NewStore opens (or creates) a BadgerDB depot store at the configured
// path. Callers own the store and must Close it.
func NewStore(ctx context.Context, config StoreConfig) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(config.DBPath)
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-open database.
func NewStoreWithDB(db *badger.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database.
func (store *Store) Close() error {
	return store.db.Close()
}

// CreateDepot stores a new depot, enforcing per-realm name uniqueness via
// the name index.
func (store *Store) CreateDepot(ctx context.Context, d *depot.Depot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	err := store.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(keyDepotName(d.Realm, d.Name))
		if err == nil {
			return &cas.StoreError{
				Code:    cas.ErrAlreadyExists,
				Message: "depot name already in use: " + d.Name,
			}
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		encoded, err := json.Marshal(depotToRecord(d))
		if err != nil {
			return fmt.Errorf("failed to encode depot record: %w", err)
		}
		if err := txn.Set(keyDepot(d.Realm, d.ID), encoded); err != nil {
			return err
		}
		return txn.Set(keyDepotName(d.Realm, d.Name), []byte(d.ID))
	})
	return translate(err, "failed to create depot")
}

// GetDepot retrieves a depot by id.
func (store *Store) GetDepot(ctx context.Context, realm string, depotID string) (*depot.Depot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var d *depot.Depot
	err := store.db.View(func(txn *badger.Txn) error {
		found, err := readDepot(txn, realm, depotID)
		if err != nil {
			return err
		}
		d = found
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, depotNotFound(depotID)
	}
	if err != nil {
		return nil, translate(err, "failed to read depot")
	}
	return d, nil
}

// GetDepotByName retrieves a depot via the name index.
func (store *Store) GetDepotByName(ctx context.Context, realm string, name string) (*depot.Depot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var d *depot.Depot
	err := store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyDepotName(realm, name))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		found, err := readDepot(txn, realm, string(id))
		if err != nil {
			return err
		}
		d = found
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, depotNotFound(name)
	}
	if err != nil {
		return nil, translate(err, "failed to read depot")
	}
	return d, nil
}

// ListDepots returns all of a realm's depots, ordered by name. The name
// index prefix scan yields names in order, so no sort is needed.
func (store *Store) ListDepots(ctx context.Context, realm string) ([]*depot.Depot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	depots := make([]*depot.Depot, 0)
	err := store.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(prefixDepotName + realm + ":")

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			d, err := readDepot(txn, realm, string(id))
			if err != nil {
				return err
			}
			depots = append(depots, d)
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to list depots")
	}
	return depots, nil
}

// AdvanceRoot atomically bumps the version and appends the history row.
func (store *Store) AdvanceRoot(ctx context.Context, realm string, depotID string, newRoot cas.Key, message string, now time.Time) (*depot.Depot, *depot.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	var updated *depot.Depot
	var row *depot.HistoryRecord

	err := store.db.Update(func(txn *badger.Txn) error {
		d, err := readDepot(txn, realm, depotID)
		if err != nil {
			return err
		}

		d.Root = newRoot
		d.Version++
		d.UpdatedAt = now

		encoded, err := json.Marshal(depotToRecord(d))
		if err != nil {
			return fmt.Errorf("failed to encode depot record: %w", err)
		}
		if err := txn.Set(keyDepot(realm, depotID), encoded); err != nil {
			return err
		}

		row = &depot.HistoryRecord{
			Realm:     realm,
			DepotID:   depotID,
			Version:   d.Version,
			Root:      newRoot,
			Message:   message,
			CreatedAt: now,
		}
		rowEncoded, err := json.Marshal(&historyRecord{
			Version:   row.Version,
			Root:      row.Root,
			Message:   row.Message,
			CreatedAt: row.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to encode history record: %w", err)
		}
		if err := txn.Set(keyHistory(realm, depotID, d.Version), rowEncoded); err != nil {
			return err
		}

		updated = d
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, depotNotFound(depotID)
	}
	if err != nil {
		return nil, nil, translate(err, "failed to advance depot root")
	}
	return updated, row, nil
}

// ListHistory returns one page of the depot's history, newest version
// first.
func (store *Store) ListHistory(ctx context.Context, realm string, depotID string, opts depot.HistoryOptions) (*depot.HistoryPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []*depot.HistoryRecord
	err := store.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyDepot(realm, depotID)); err != nil {
			return err
		}

		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = keyHistoryPrefix(realm, depotID)

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		// Padded keys iterate in ascending version order.
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(func(val []byte) error {
				var record historyRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return fmt.Errorf("failed to decode history record: %w", err)
				}
				rows = append(rows, &depot.HistoryRecord{
					Realm:     realm,
					DepotID:   depotID,
					Version:   record.Version,
					Root:      record.Root,
					Message:   record.Message,
					CreatedAt: record.CreatedAt,
				})
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, depotNotFound(depotID)
	}
	if err != nil {
		return nil, translate(err, "failed to list depot history")
	}

	return depot.BuildHistoryPage(rows, opts), nil
}

// GetHistory retrieves a single history row by version.
func (store *Store) GetHistory(ctx context.Context, realm string, depotID string, version uint64) (*depot.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var row *depot.HistoryRecord
	err := store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyHistory(realm, depotID, version))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var record historyRecord
			if err := json.Unmarshal(val, &record); err != nil {
				return fmt.Errorf("failed to decode history record: %w", err)
			}
			row = &depot.HistoryRecord{
				Realm:     realm,
				DepotID:   depotID,
				Version:   record.Version,
				Root:      record.Root,
				Message:   record.Message,
				CreatedAt: record.CreatedAt,
			}
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &cas.StoreError{
			Code:    cas.ErrNotFound,
			Message: "history record not found",
		}
	}
	if err != nil {
		return nil, translate(err, "failed to read history record")
	}
	return row, nil
}

// CreateCommit stores a new commit, enforcing (realm, root) uniqueness.
func (store *Store) CreateCommit(ctx context.Context, commit *depot.Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	err := store.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(keyCommit(commit.Realm, commit.Root))
		if err == nil {
			return &cas.StoreError{
				Code:    cas.ErrAlreadyExists,
				Message: "commit already exists for root",
				Key:     commit.Root,
			}
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		encoded, err := json.Marshal(&commitRecord{
			Title:     commit.Title,
			CreatedBy: commit.CreatedBy,
			CreatedAt: commit.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to encode commit record: %w", err)
		}
		return txn.Set(keyCommit(commit.Realm, commit.Root), encoded)
	})
	return translate(err, "failed to create commit")
}

// GetCommit retrieves a commit by its (realm, root) key.
func (store *Store) GetCommit(ctx context.Context, realm string, root cas.Key) (*depot.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var commit *depot.Commit
	err := store.db.View(func(txn *badger.Txn) error {
		found, err := readCommit(txn, realm, root)
		if err != nil {
			return err
		}
		commit = found
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, commitNotFound(root)
	}
	if err != nil {
		return nil, translate(err, "failed to read commit")
	}
	return commit, nil
}

// ListCommits returns one page of the realm's commits, newest first.
func (store *Store) ListCommits(ctx context.Context, realm string, opts depot.CommitListOptions) (*depot.CommitPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	commits := make([]*depot.Commit, 0)
	err := store.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = keyCommitPrefix(realm)

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			root, ok := rootFromCommitKey(realm, it.Item().Key())
			if !ok {
				continue
			}
			if err := it.Item().Value(func(val []byte) error {
				var record commitRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return fmt.Errorf("failed to decode commit record: %w", err)
				}
				commits = append(commits, &depot.Commit{
					Realm:     realm,
					Root:      root,
					Title:     record.Title,
					CreatedBy: record.CreatedBy,
					CreatedAt: record.CreatedAt,
				})
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to list commits")
	}

	depot.SortCommitsNewestFirst(commits)
	return depot.BuildCommitPage(commits, opts)
}

// UpdateCommitTitle replaces the commit's title.
func (store *Store) UpdateCommitTitle(ctx context.Context, realm string, root cas.Key, title string) (*depot.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	var commit *depot.Commit
	err := store.db.Update(func(txn *badger.Txn) error {
		found, err := readCommit(txn, realm, root)
		if err != nil {
			return err
		}
		found.Title = title

		encoded, err := json.Marshal(&commitRecord{
			Title:     found.Title,
			CreatedBy: found.CreatedBy,
			CreatedAt: found.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to encode commit record: %w", err)
		}
		if err := txn.Set(keyCommit(realm, root), encoded); err != nil {
			return err
		}
		commit = found
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, commitNotFound(root)
	}
	if err != nil {
		return nil, translate(err, "failed to update commit")
	}
	return commit, nil
}

// DeleteCommit removes a commit.
func (store *Store) DeleteCommit(ctx context.Context, realm string, root cas.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	err := store.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyCommit(realm, root)); err != nil {
			return err
		}
		return txn.Delete(keyCommit(realm, root))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return commitNotFound(root)
	}
	return translate(err, "failed to delete commit")
}

func readDepot(txn *badger.Txn, realm string, depotID string) (*depot.Depot, error) {
	item, err := txn.Get(keyDepot(realm, depotID))
	if err != nil {
		return nil, err
	}

	var d *depot.Depot
	err = item.Value(func(val []byte) error {
		var record depotRecord
		if err := json.Unmarshal(val, &record); err != nil {
			return fmt.Errorf("failed to decode depot record: %w", err)
		}
		d = &depot.Depot{
			Realm:       record.Realm,
			ID:          record.ID,
			Name:        record.Name,
			Root:        record.Root,
			Version:     record.Version,
			Description: record.Description,
			CreatedAt:   record.CreatedAt,
			UpdatedAt:   record.UpdatedAt,
		}
		return nil
	})
	return d, err
}

func readCommit(txn *badger.Txn, realm string, root cas.Key) (*depot.Commit, error) {
	item, err := txn.Get(keyCommit(realm, root))
	if err != nil {
		return nil, err
	}

	var commit *depot.Commit
	err = item.Value(func(val []byte) error {
		var record commitRecord
		if err := json.Unmarshal(val, &record); err != nil {
			return fmt.Errorf("failed to decode commit record: %w", err)
		}
		commit = &depot.Commit{
			Realm:     realm,
			Root:      root,
			Title:     record.Title,
			CreatedBy: record.CreatedBy,
			CreatedAt: record.CreatedAt,
		}
		return nil
	})
	return commit, err
}

// rootFromCommitKey recovers the CAS root from "c:<realm>:<root>".
func rootFromCommitKey(realm string, dbKey []byte) (cas.Key, bool) {
	prefix := prefixCommit + realm + ":"
	if len(dbKey) <= len(prefix) {
		return "", false
	}
	root := cas.Key(dbKey[len(prefix):])
	return root, root.Valid()
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

func depotToRecord(d *depot.Depot) *depotRecord {
	return &depotRecord{
		Realm:       d.Realm,
		ID:          d.ID,
		Name:        d.Name,
		Root:        d.Root,
		Version:     d.Version,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// translate keeps typed domain errors intact and wraps everything else as
// an IO error.
func translate(err error, message string) error {
	if err == nil {
		return nil
	}
	var storeErr *cas.StoreError
	if errors.As(err, &storeErr) {
		return storeErr
	}
	return &cas.StoreError{
		Code:    cas.ErrIOError,
		Message: fmt.Sprintf("%s: %v", message, err),
	}
}
