package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/depotfs/pkg/cas"
)

// DagStore implements cas.DagStore using in-memory storage.
type DagStore struct {
	mu    sync.RWMutex
	nodes map[cas.Key]*cas.Node
	now   func() time.Time
}

// NewDagStore creates a new in-memory DAG store.
func NewDagStore() *DagStore {
	return &DagStore{
		nodes: make(map[cas.Key]*cas.Node),
		now:   time.Now,
	}
}

// GetNode retrieves a node by key.
func (store *DagStore) GetNode(ctx context.Context, key cas.Key) (*cas.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	node, exists := store.nodes[key]
	if !exists {
		return nil, &cas.StoreError{
			Code:    cas.ErrNotFound,
			Message: "node not found",
			Key:     key,
		}
	}

	return copyNode(node), nil
}

// PutNode stores a node under the given key. Re-putting an existing key
// returns the stored node unchanged.
func (store *DagStore) PutNode(ctx context.Context, key cas.Key, children []cas.Key, kind cas.NodeKind, size uint64) (*cas.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !key.Valid() {
		return nil, &cas.StoreError{
			Code:    cas.ErrInvalidArgument,
			Message: "malformed node key",
			Key:     key,
		}
	}
	if !kind.ValidKind() {
		return nil, &cas.StoreError{
			Code:    cas.ErrInvalidArgument,
			Message: "unknown node kind: " + string(kind),
			Key:     key,
		}
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if existing, exists := store.nodes[key]; exists {
		return copyNode(existing), nil
	}

	node := &cas.Node{
		Key:       key,
		Children:  append([]cas.Key(nil), children...),
		Kind:      kind,
		Size:      size,
		CreatedAt: store.now(),
	}
	store.nodes[key] = node

	return copyNode(node), nil
}

// Len returns the number of stored nodes. Used by tests and statistics.
func (store *DagStore) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.nodes)
}

func copyNode(node *cas.Node) *cas.Node {
	clone := *node
	clone.Children = append([]cas.Key(nil), node.Children...)
	return &clone
}
