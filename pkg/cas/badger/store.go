// Package badger provides a BadgerDB-backed implementation of the cas
// interfaces.
//
// The store persists blobs and DAG nodes in a single embedded key-value
// database. It is suitable for:
//   - Production single-node deployments requiring persistence
//   - Systems where content must survive restarts and crashes
//   - Multi-GB content storage without an external object store
//
// Storage Model:
// BadgerDB is a flat key-value store, so record types are organized into
// namespaces with short key prefixes (see keys.go for the schema). Blob
// content is stored raw; descriptive records are JSON for debuggability.
package badger

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Store implements cas.BlobStore and cas.DagStore using BadgerDB.
//
// Thread Safety:
// BadgerDB transactions provide isolation, so the store needs no additional
// locking. Concurrent puts of identical content are resolved by the
// write-if-absent transaction: the loser observes the existing record and
// reports IsNew=false.
type Store struct {
	// db is the BadgerDB database handle (thread-safe, uses internal MVCC)
	db *badger.DB

	now func() time.Time
}

// StoreConfig contains configuration for creating a BadgerDB CAS store.
type StoreConfig struct {
	// DBPath is the directory where BadgerDB will store its files
	DBPath string `mapstructure:"db_path" validate:"required"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 256)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 128)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`
}

// NewStore opens (or creates) a BadgerDB CAS store at the configured path.
//
// The returned store is immediately ready for use and safe for concurrent
// access from multiple goroutines. Callers own the store and must Close it.
func NewStore(ctx context.Context, config StoreConfig) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(config.DBPath)
	opts = opts.WithLoggingLevel(badger.WARNING)
	// Blob content is already high-entropy (hashes and user data), so
	// compression buys little.
	opts = opts.WithCompression(options.None)

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 256
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 128
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &Store{
		db:  db,
		now: time.Now,
	}, nil
}

// Close closes the underlying database. The store must not be used after
// Close returns.
func (store *Store) Close() error {
	return store.db.Close()
}
