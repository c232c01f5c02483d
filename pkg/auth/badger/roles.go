// Package badger provides a BadgerDB-backed implementation of
// auth.RoleStore.
//
// Storage Model:
//
// Data Type      Prefix   Key Format        Value Type
// ======================================================
// Role Record    "r:"     r:<user id>       roleRecord (JSON)
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/depotfs/pkg/auth"
	"github.com/marmos91/depotfs/pkg/cas"
)

const prefixRole = "r:"

func keyRole(userID string) []byte {
	return []byte(prefixRole + userID)
}

// roleRecord is the stored representation of a role assignment.
type roleRecord struct {
	Role      auth.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleStore implements auth.RoleStore using BadgerDB.
type RoleStore struct {
	db *badger.DB
}

// RoleStoreConfig contains configuration for the BadgerDB role store.
type RoleStoreConfig struct {
	// DBPath is the directory where BadgerDB will store its files
	DBPath string `mapstructure:"db_path" validate:"required"`
}

// NewRoleStore opens (or creates) a BadgerDB role store at the configured
// path. Callers own the store and must Close it.
func NewRoleStore(ctx context.Context, config RoleStoreConfig) (*RoleStore, error) {
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

	return &RoleStore{db: db}, nil
}

// NewRoleStoreWithDB wraps an already-open database.
func NewRoleStoreWithDB(db *badger.DB) *RoleStore {
	return &RoleStore{db: db}
}

// Close closes the underlying database.
func (store *RoleStore) Close() error {
	return store.db.Close()
}

// GetRole retrieves a user's role record.
func (store *RoleStore) GetRole(ctx context.Context, userID string) (*auth.RoleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record *auth.RoleRecord
	err := store.db.View(func(txn *badger.Txn) error {
		found, err := readRole(txn, userID)
		if err != nil {
			return err
		}
		record = found
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, roleNotFound(userID)
	}
	if err != nil {
		return nil, ioError("failed to read role record", err)
	}
	return record, nil
}

// SetRole assigns a role, creating the record if absent.
func (store *RoleStore) SetRole(ctx context.Context, userID string, role auth.Role, now time.Time) (*auth.RoleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record *auth.RoleRecord
	err := store.db.Update(func(txn *badger.Txn) error {
		existing, err := readRole(txn, userID)
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		record = &auth.RoleRecord{
			UserID:    userID,
			Role:      role,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if existing != nil {
			record.CreatedAt = existing.CreatedAt
		}

		encoded, err := json.Marshal(&roleRecord{
			Role:      record.Role,
			CreatedAt: record.CreatedAt,
			UpdatedAt: record.UpdatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to encode role record: %w", err)
		}
		return txn.Set(keyRole(userID), encoded)
	})
	if err != nil {
		return nil, ioError("failed to write role record", err)
	}
	return record, nil
}

// ListRoles returns all role records, ordered by user id. The prefix scan
// yields keys in order already.
func (store *RoleStore) ListRoles(ctx context.Context) ([]*auth.RoleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]*auth.RoleRecord, 0)
	err := store.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(prefixRole)

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			userID := string(it.Item().Key()[len(prefixRole):])
			if err := it.Item().Value(func(val []byte) error {
				record, err := decodeRole(userID, val)
				if err != nil {
					return err
				}
				records = append(records, record)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, ioError("failed to list role records", err)
	}
	return records, nil
}

// DeleteRole removes a user's role record.
func (store *RoleStore) DeleteRole(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := store.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyRole(userID)); err != nil {
			return err
		}
		return txn.Delete(keyRole(userID))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return roleNotFound(userID)
	}
	if err != nil {
		return ioError("failed to delete role record", err)
	}
	return nil
}

func readRole(txn *badger.Txn, userID string) (*auth.RoleRecord, error) {
	item, err := txn.Get(keyRole(userID))
	if err != nil {
		return nil, err
	}

	var record *auth.RoleRecord
	err = item.Value(func(val []byte) error {
		decoded, err := decodeRole(userID, val)
		if err != nil {
			return err
		}
		record = decoded
		return nil
	})
	return record, err
}

func decodeRole(userID string, val []byte) (*auth.RoleRecord, error) {
	var record roleRecord
	if err := json.Unmarshal(val, &record); err != nil {
		return nil, fmt.Errorf("failed to decode role record: %w", err)
	}
	return &auth.RoleRecord{
		UserID:    userID,
		Role:      record.Role,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}, nil
}

func roleNotFound(userID string) error {
	return &cas.StoreError{
		Code:    cas.ErrNotFound,
		Message: "no role record for user: " + userID,
	}
}

func ioError(message string, err error) error {
	return &cas.StoreError{
		Code:    cas.ErrIOError,
		Message: fmt.Sprintf("%s: %v", message, err),
	}
}
