// Package badger provides a BadgerDB-backed implementation of
// authority.TokenStore.
//
// Storage Model:
// One JSON record per credential under "t:<token id>". Token ids carry
// their own type prefixes ("tok_", "agt_", "tkt_"), so a single namespace
// suffices.
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

	"github.com/marmos91/depotfs/pkg/authority"
	"github.com/marmos91/depotfs/pkg/cas"
)

const prefixToken = "t:"

func keyToken(id string) []byte {
	return []byte(prefixToken + id)
}

// tokenRecord is the stored representation of a credential.
type tokenRecord struct {
	ID           string                  `json:"id"`
	Type         authority.TokenType     `json:"type"`
	UserID       string                  `json:"user_id,omitempty"`
	RefreshToken string                  `json:"refresh_token,omitempty"`
	Realm        string                  `json:"realm,omitempty"`
	IssuerID     string                  `json:"issuer_id,omitempty"`
	Scope        []cas.Key               `json:"scope,omitempty"`
	Commit       *commitConfigRecord     `json:"commit,omitempty"`
	Config       authority.TicketConfig  `json:"config,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
	ExpiresAt    time.Time               `json:"expires_at"`
	IsRevoked    bool                    `json:"is_revoked,omitempty"`
	Output       *cas.Key                `json:"output,omitempty"`
	Written      bool                    `json:"written,omitempty"`
}

type commitConfigRecord struct {
	Quota  *uint64  `json:"quota,omitempty"`
	Accept []string `json:"accept,omitempty"`
}

func toRecord(token *authority.Token) *tokenRecord {
	record := &tokenRecord{
		ID:           token.ID,
		Type:         token.Type,
		UserID:       token.UserID,
		RefreshToken: token.RefreshToken,
		Realm:        token.Realm,
		IssuerID:     token.IssuerID,
		Scope:        token.Scope,
		Config:       token.Config,
		CreatedAt:    token.CreatedAt,
		ExpiresAt:    token.ExpiresAt,
		IsRevoked:    token.IsRevoked,
		Output:       token.Output,
		Written:      token.Written,
	}
	if token.Commit != nil {
		record.Commit = &commitConfigRecord{
			Quota:  token.Commit.Quota,
			Accept: token.Commit.Accept,
		}
	}
	return record
}

func toDomain(record *tokenRecord) *authority.Token {
	token := &authority.Token{
		ID:           record.ID,
		Type:         record.Type,
		UserID:       record.UserID,
		RefreshToken: record.RefreshToken,
		Realm:        record.Realm,
		IssuerID:     record.IssuerID,
		Scope:        record.Scope,
		Config:       record.Config,
		CreatedAt:    record.CreatedAt,
		ExpiresAt:    record.ExpiresAt,
		IsRevoked:    record.IsRevoked,
		Output:       record.Output,
		Written:      record.Written,
	}
	if record.Commit != nil {
		token.Commit = &authority.CommitConfig{
			Quota:  record.Commit.Quota,
			Accept: record.Commit.Accept,
		}
	}
	return token
}

// TokenStore implements authority.TokenStore using BadgerDB.
//
// Thread Safety:
// Mutations are serialized by a store-level mutex on top of badger's
// transactions. The coarse lock keeps MutateToken's read-modify-write
// atomic without dealing with badger transaction conflict retries.
type TokenStore struct {
	mu sync.Mutex
	db *badger.DB
}

// TokenStoreConfig contains configuration for the BadgerDB token store.
type TokenStoreConfig struct {
	// DBPath is the directory where BadgerDB will store its files
	DBPath string `mapstructure:"db_path" validate:"required"`
}

// NewTokenStore opens (or creates) a BadgerDB token store at the configured
// path. Callers own the store and must Close it.
func NewTokenStore(ctx context.Context, config TokenStoreConfig) (*TokenStore, error) {
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

	return &TokenStore{db: db}, nil
}

// NewTokenStoreWithDB wraps an already-open database.
func NewTokenStoreWithDB(db *badger.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Close closes the underlying database.
func (store *TokenStore) Close() error {
	return store.db.Close()
}

// GetToken retrieves a token by id.
func (store *TokenStore) GetToken(ctx context.Context, id string) (*authority.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var token *authority.Token
	err := store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyToken(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var record tokenRecord
			if err := json.Unmarshal(val, &record); err != nil {
				return fmt.Errorf("failed to decode token record: %w", err)
			}
			token = toDomain(&record)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, tokenNotFound(id)
	}
	if err != nil {
		return nil, ioError("failed to read token", err)
	}

	return token, nil
}

// PutToken stores a token, overwriting any previous record.
func (store *TokenStore) PutToken(ctx context.Context, token *authority.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token.ID == "" {
		return &cas.StoreError{
			Code:    cas.ErrInvalidArgument,
			Message: "token id must not be empty",
		}
	}

	encoded, err := json.Marshal(toRecord(token))
	if err != nil {
		return ioError("failed to encode token record", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	err = store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyToken(token.ID), encoded)
	})
	if err != nil {
		return ioError("failed to store token", err)
	}
	return nil
}

// DeleteToken removes a token by id.
func (store *TokenStore) DeleteToken(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	err := store.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyToken(id)); err != nil {
			return err
		}
		return txn.Delete(keyToken(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return tokenNotFound(id)
	}
	if err != nil {
		return ioError("failed to delete token", err)
	}
	return nil
}

// MutateToken atomically applies fn to the stored token.
func (store *TokenStore) MutateToken(ctx context.Context, id string, fn func(*authority.Token) error) (*authority.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	var updated *authority.Token
	err := store.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyToken(id))
		if err != nil {
			return err
		}

		var record tokenRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return fmt.Errorf("failed to decode token record: %w", err)
		}

		token := toDomain(&record)
		if err := fn(token); err != nil {
			return err
		}

		encoded, err := json.Marshal(toRecord(token))
		if err != nil {
			return fmt.Errorf("failed to encode token record: %w", err)
		}
		if err := txn.Set(keyToken(id), encoded); err != nil {
			return err
		}

		updated = token
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, tokenNotFound(id)
	}
	if err != nil {
		// fn's domain errors pass through untranslated.
		var storeErr *cas.StoreError
		if errors.As(err, &storeErr) {
			return nil, storeErr
		}
		return nil, ioError("failed to mutate token", err)
	}

	return updated, nil
}

func tokenNotFound(id string) error {
	return &cas.StoreError{
		Code:    cas.ErrNotFound,
		Message: "token not found: " + id,
	}
}

func ioError(message string, err error) error {
	return &cas.StoreError{
		Code:    cas.ErrIOError,
		Message: fmt.Sprintf("%s: %v", message, err),
	}
}
