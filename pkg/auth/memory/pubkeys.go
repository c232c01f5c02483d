package memory

import (
	"context"
	"sync"

	"github.com/marmos91/depotfs/pkg/auth"
	"github.com/marmos91/depotfs/pkg/cas"
)

// PubKeyStore implements auth.PubKeyStore using an in-memory map keyed by
// the encoded public key.
type PubKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*auth.AuthorizedKey
}

// NewPubKeyStore creates a new in-memory pubkey store.
func NewPubKeyStore() *PubKeyStore {
	return &PubKeyStore{
		keys: make(map[string]*auth.AuthorizedKey),
	}
}

// GetKey retrieves a registered key by its encoded form.
func (store *PubKeyStore) GetKey(ctx context.Context, publicKey string) (*auth.AuthorizedKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	key, exists := store.keys[publicKey]
	if !exists {
		return nil, &cas.StoreError{
			Code:    cas.ErrNotFound,
			Message: "signing key not registered",
		}
	}
	clone := *key
	return &clone, nil
}

// PutKey registers or replaces a key.
func (store *PubKeyStore) PutKey(ctx context.Context, key *auth.AuthorizedKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key.PublicKey == "" || key.UserID == "" {
		return &cas.StoreError{
			Code:    cas.ErrInvalidArgument,
			Message: "authorized key requires key material and a user id",
		}
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	clone := *key
	store.keys[key.PublicKey] = &clone
	return nil
}

// DeleteKey removes a registered key.
func (store *PubKeyStore) DeleteKey(ctx context.Context, publicKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if _, exists := store.keys[publicKey]; !exists {
		return &cas.StoreError{
			Code:    cas.ErrNotFound,
			Message: "signing key not registered",
		}
	}
	delete(store.keys, publicKey)
	return nil
}
