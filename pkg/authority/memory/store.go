// Package memory provides an in-memory implementation of
// authority.TokenStore.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/depotfs/pkg/authority"
	"github.com/marmos91/depotfs/pkg/cas"
)

// TokenStore implements authority.TokenStore using in-memory storage.
//
// Thread Safety:
// A single mutex serializes all mutations, which gives MutateToken its
// required per-token atomicity for free.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*authority.Token
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]*authority.Token),
	}
}

// GetToken retrieves a token by id.
func (store *TokenStore) GetToken(ctx context.Context, id string) (*authority.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	token, exists := store.tokens[id]
	if !exists {
		return nil, tokenNotFound(id)
	}
	return token.Clone(), nil
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

	store.mu.Lock()
	defer store.mu.Unlock()

	store.tokens[token.ID] = token.Clone()
	return nil
}

// DeleteToken removes a token by id.
func (store *TokenStore) DeleteToken(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if _, exists := store.tokens[id]; !exists {
		return tokenNotFound(id)
	}
	delete(store.tokens, id)
	return nil
}

// MutateToken atomically applies fn to the stored token.
func (store *TokenStore) MutateToken(ctx context.Context, id string, fn func(*authority.Token) error) (*authority.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	token, exists := store.tokens[id]
	if !exists {
		return nil, tokenNotFound(id)
	}

	// fn operates on a copy; the stored record only changes on success.
	updated := token.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}

	store.tokens[id] = updated
	return updated.Clone(), nil
}

func tokenNotFound(id string) error {
	return &cas.StoreError{
		Code:    cas.ErrNotFound,
		Message: "token not found: " + id,
	}
}
