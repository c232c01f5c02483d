// Package memory provides in-memory implementations of auth.RoleStore and
// auth.PubKeyStore.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/depotfs/pkg/auth"
	"github.com/marmos91/depotfs/pkg/cas"
)

// RoleStore implements auth.RoleStore using an in-memory map.
//
// Thread Safety:
// All operations are protected by a RWMutex. SetRole is a single critical
// section, so racing bootstraps of one user converge on one record.
type RoleStore struct {
	mu    sync.RWMutex
	roles map[string]*auth.RoleRecord
}

// NewRoleStore creates a new in-memory role store.
func NewRoleStore() *RoleStore {
	return &RoleStore{
		roles: make(map[string]*auth.RoleRecord),
	}
}

// GetRole retrieves a user's role record.
func (store *RoleStore) GetRole(ctx context.Context, userID string) (*auth.RoleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	record, exists := store.roles[userID]
	if !exists {
		return nil, roleNotFound(userID)
	}
	clone := *record
	return &clone, nil
}

// SetRole assigns a role, creating the record if absent.
func (store *RoleStore) SetRole(ctx context.Context, userID string, role auth.Role, now time.Time) (*auth.RoleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	record, exists := store.roles[userID]
	if !exists {
		record = &auth.RoleRecord{
			UserID:    userID,
			CreatedAt: now,
		}
		store.roles[userID] = record
	}
	record.Role = role
	record.UpdatedAt = now

	clone := *record
	return &clone, nil
}

// ListRoles returns all role records, ordered by user id.
func (store *RoleStore) ListRoles(ctx context.Context) ([]*auth.RoleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	records := make([]*auth.RoleRecord, 0, len(store.roles))
	for _, record := range store.roles {
		clone := *record
		records = append(records, &clone)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UserID < records[j].UserID
	})
	return records, nil
}

// DeleteRole removes a user's role record.
func (store *RoleStore) DeleteRole(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if _, exists := store.roles[userID]; !exists {
		return roleNotFound(userID)
	}
	delete(store.roles, userID)
	return nil
}

func roleNotFound(userID string) error {
	return &cas.StoreError{
		Code:    cas.ErrNotFound,
		Message: "no role record for user: " + userID,
	}
}
