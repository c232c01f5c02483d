// Package badger provides a BadgerDB-backed implementation of
// ownership.Ledger.
//
// Storage Model:
// One entry per claim under the key "own:<realm>:<cas key>". Realm names
// ("usr_<id>") cannot contain ':' and CAS keys sit at the end of the
// database key, so the format is unambiguous and realm listings are a
// single prefix scan.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/depotfs/pkg/cas"
	"github.com/marmos91/depotfs/pkg/ownership"
)

const prefixOwnership = "own:"

func keyOwnership(realm string, key cas.Key) []byte {
	return []byte(prefixOwnership + realm + ":" + string(key))
}

func keyRealmPrefix(realm string) []byte {
	return []byte(prefixOwnership + realm + ":")
}

// ownershipRecord is the stored representation of a claim. Realm and key are
// encoded in the database key and not repeated in the value.
type ownershipRecord struct {
	CreatedBy   string    `json:"created_by,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Size        uint64    `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ledger implements ownership.Ledger using BadgerDB.
type Ledger struct {
	db  *badger.DB
	now func() time.Time
}

// LedgerConfig contains configuration for the BadgerDB ownership ledger.
type LedgerConfig struct {
	// DBPath is the directory where BadgerDB will store its files
	DBPath string `mapstructure:"db_path" validate:"required"`
}

// NewLedger opens (or creates) a BadgerDB ownership ledger at the
// configured path. Callers own the ledger and must Close it.
func NewLedger(ctx context.Context, config LedgerConfig) (*Ledger, error) {
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

	return &Ledger{db: db, now: time.Now}, nil
}

// NewLedgerWithDB wraps an already-open database, allowing the ledger to
// share a database with other badger-backed stores.
func NewLedgerWithDB(db *badger.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Close closes the underlying database.
func (ledger *Ledger) Close() error {
	return ledger.db.Close()
}

// HasOwnership checks whether the realm has claimed the key.
func (ledger *Ledger) HasOwnership(ctx context.Context, realm string, key cas.Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var exists bool
	err := ledger.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(keyOwnership(realm, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, ioError("failed to check ownership", key, err)
	}

	return exists, nil
}

// GetOwnership retrieves the realm's claim on the key.
func (ledger *Ledger) GetOwnership(ctx context.Context, realm string, key cas.Key) (*ownership.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record *ownership.Record
	err := ledger.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyOwnership(realm, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := decodeRecord(val)
			if err != nil {
				return err
			}
			record = toDomain(realm, key, decoded)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, ioError("failed to read ownership record", key, err)
	}

	return record, nil
}

// CheckOwnership partitions keys into claimed and unclaimed for the realm.
func (ledger *Ledger) CheckOwnership(ctx context.Context, realm string, keys []cas.Key) (*ownership.CheckResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &ownership.CheckResult{
		Found:   make([]cas.Key, 0, len(keys)),
		Missing: make([]cas.Key, 0),
	}
	err := ledger.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			_, err := txn.Get(keyOwnership(realm, key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				result.Missing = append(result.Missing, key)
				continue
			}
			if err != nil {
				return err
			}
			result.Found = append(result.Found, key)
		}
		return nil
	})
	if err != nil {
		return nil, ioError("failed to check ownership batch", "", err)
	}

	return result, nil
}

// AddOwnership registers the realm's claim on the key. Re-adding an existing
// claim returns the stored record unchanged.
func (ledger *Ledger) AddOwnership(ctx context.Context, realm string, key cas.Key, attrs ownership.Attributes) (*ownership.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if realm == "" {
		return nil, &cas.StoreError{
			Code:    cas.ErrInvalidArgument,
			Message: "realm must not be empty",
			Key:     key,
		}
	}
	if !key.Valid() {
		return nil, &cas.StoreError{
			Code:    cas.ErrInvalidArgument,
			Message: "malformed ownership key",
			Key:     key,
		}
	}

	var record *ownership.Record
	err := ledger.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyOwnership(realm, key))
		if err == nil {
			return item.Value(func(val []byte) error {
				decoded, err := decodeRecord(val)
				if err != nil {
					return err
				}
				record = toDomain(realm, key, decoded)
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		stored := &ownershipRecord{
			CreatedBy:   attrs.CreatedBy,
			ContentType: attrs.ContentType,
			Size:        attrs.Size,
			CreatedAt:   ledger.now(),
		}
		encoded, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to encode ownership record: %w", err)
		}
		if err := txn.Set(keyOwnership(realm, key), encoded); err != nil {
			return err
		}

		record = toDomain(realm, key, stored)
		return nil
	})
	if err != nil {
		return nil, ioError("failed to store ownership record", key, err)
	}

	return record, nil
}

// ListNodes returns one page of the realm's claims, newest first.
//
// The prefix scan loads the realm's claims and sorts them in memory; the
// createdAt-descending contract cannot be served by badger's lexicographic
// iteration order directly.
func (ledger *Ledger) ListNodes(ctx context.Context, realm string, opts ownership.ListOptions) (*ownership.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := ledger.scanRealm(ctx, realm)
	if err != nil {
		return nil, err
	}
	ownership.SortNewestFirst(records)

	return ownership.BuildPage(records, opts)
}

// DeleteOwnership removes the realm's claim on the key.
func (ledger *Ledger) DeleteOwnership(ctx context.Context, realm string, key cas.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := ledger.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyOwnership(realm, key)); err != nil {
			return err
		}
		return txn.Delete(keyOwnership(realm, key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound(key)
	}
	if err != nil {
		return ioError("failed to delete ownership record", key, err)
	}

	return nil
}

// GetUsage returns the realm's aggregate claim count and size.
func (ledger *Ledger) GetUsage(ctx context.Context, realm string) (*ownership.Usage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := ledger.scanRealm(ctx, realm)
	if err != nil {
		return nil, err
	}

	usage := &ownership.Usage{}
	for _, record := range records {
		usage.Count++
		usage.TotalSize += record.Size
	}
	return usage, nil
}

// ListAllKeys returns every distinct CAS key claimed by any realm.
func (ledger *Ledger) ListAllKeys(ctx context.Context) ([]cas.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[cas.Key]struct{})
	keys := make([]cas.Key, 0)

	err := ledger.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = []byte(prefixOwnership)

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			_, key, ok := splitDatabaseKey(it.Item().Key())
			if !ok {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, ioError("failed to list ownership keys", "", err)
	}

	return keys, nil
}

// scanRealm loads all of a realm's claims via prefix iteration.
func (ledger *Ledger) scanRealm(ctx context.Context, realm string) ([]*ownership.Record, error) {
	records := make([]*ownership.Record, 0)

	err := ledger.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = keyRealmPrefix(realm)

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			_, key, ok := splitDatabaseKey(it.Item().Key())
			if !ok {
				continue
			}
			if err := it.Item().Value(func(val []byte) error {
				decoded, err := decodeRecord(val)
				if err != nil {
					return err
				}
				records = append(records, toDomain(realm, key, decoded))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, ioError("failed to scan ownership records", "", err)
	}

	return records, nil
}

// splitDatabaseKey recovers (realm, cas key) from "own:<realm>:<cas key>".
// The CAS key always starts at the final "sha256:" occurrence.
func splitDatabaseKey(dbKey []byte) (string, cas.Key, bool) {
	rest, found := strings.CutPrefix(string(dbKey), prefixOwnership)
	if !found {
		return "", "", false
	}
	idx := strings.LastIndex(rest, ":"+cas.KeyPrefix)
	if idx < 0 {
		return "", "", false
	}
	realm := rest[:idx]
	key := cas.Key(rest[idx+1:])
	if realm == "" || !key.Valid() {
		return "", "", false
	}
	return realm, key, true
}

func decodeRecord(val []byte) (*ownershipRecord, error) {
	var record ownershipRecord
	if err := json.Unmarshal(val, &record); err != nil {
		return nil, fmt.Errorf("failed to decode ownership record: %w", err)
	}
	return &record, nil
}

func toDomain(realm string, key cas.Key, stored *ownershipRecord) *ownership.Record {
	return &ownership.Record{
		Realm:       realm,
		Key:         key,
		CreatedBy:   stored.CreatedBy,
		ContentType: stored.ContentType,
		Size:        stored.Size,
		CreatedAt:   stored.CreatedAt,
	}
}

func notFound(key cas.Key) error {
	return &cas.StoreError{
		Code:    cas.ErrNotFound,
		Message: "ownership record not found",
		Key:     key,
	}
}

func ioError(message string, key cas.Key, err error) error {
	return &cas.StoreError{
		Code:    cas.ErrIOError,
		Message: fmt.Sprintf("%s: %v", message, err),
		Key:     key,
	}
}
