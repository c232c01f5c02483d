package cas

import (
	"context"
	"time"
)

// ============================================================================
// DagStore Interface
// ============================================================================

// NodeKind discriminates the three DAG node shapes.
type NodeKind string

const (
	// NodeKindDict is a directory-like node; children are its ordered members.
	NodeKindDict NodeKind = "dict"

	// NodeKindFile is a content leaf referencing blob data.
	NodeKindFile NodeKind = "file"

	// NodeKindSuccessor is a continuation segment for content that exceeds a
	// single node's capacity (large-file chunking).
	NodeKindSuccessor NodeKind = "successor"
)

// ValidKind reports whether k is one of the three known node kinds.
func (k NodeKind) ValidKind() bool {
	switch k {
	case NodeKindDict, NodeKindFile, NodeKindSuccessor:
		return true
	default:
		return false
	}
}

// Node is a DAG node addressed by its own content hash.
//
// A node's key is a pure function of its encoded kind and children, so
// identical subgraphs collapse to identical keys regardless of who wrote
// them (structural sharing).
type Node struct {
	// Key is the node's content-addressed key
	Key Key

	// Children is the ordered list of child keys. Order is significant and
	// participates in the node's identity.
	Children []Key

	// Kind is the node shape (dict, file, successor)
	Kind NodeKind

	// Size is the aggregate content size this node accounts for
	Size uint64

	// CreatedAt is when the node was first stored
	CreatedAt time.Time
}

// DagStore stores graph nodes and serves the reachability traversal that
// scope checks and reference accounting are built on.
//
// Children may reference keys that have not been written yet: writers are
// free to publish a parent before its subtree lands, and readers must treat
// a dangling child as a leaf rather than an error.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type DagStore interface {
	// GetNode retrieves a node by key.
	//
	// Returns *StoreError with ErrNotFound if the key is absent.
	GetNode(ctx context.Context, key Key) (*Node, error)

	// PutNode stores a node under the caller-supplied key.
	//
	// The key must be well-formed and the kind must be one of the known
	// kinds; violations return *StoreError with ErrInvalidArgument.
	// Re-putting an existing key is a no-op returning the stored node
	// (content addressing makes the payload necessarily identical).
	PutNode(ctx context.Context, key Key, children []Key, kind NodeKind, size uint64) (*Node, error)
}

// CollectKeys returns the complete reachability closure from root: root
// itself plus every key reachable through Children links, each exactly once.
//
// The traversal tracks visited keys, so it terminates on any finite graph
// even if a malformed store contains a cycle (well-formed content-addressed
// graphs cannot cycle, but keys referencing not-yet-written nodes are
// routine and a defensive visited set costs nothing). Keys whose nodes are
// absent from the store are included in the result and treated as leaves.
//
// This closure is the primitive behind ticket scope containment and is the
// hook point for reference-counted garbage collection.
func CollectKeys(ctx context.Context, store DagStore, root Key) ([]Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	visited := make(map[Key]struct{})
	collected := make([]Key, 0, 8)
	stack := []Key{root}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[key]; seen {
			continue
		}
		visited[key] = struct{}{}
		collected = append(collected, key)

		node, err := store.GetNode(ctx, key)
		if err != nil {
			if IsNotFound(err) {
				// Dangling reference: the subtree hasn't been written.
				continue
			}
			return nil, err
		}

		// Push in reverse so children are visited in declaration order.
		for i := len(node.Children) - 1; i >= 0; i-- {
			child := node.Children[i]
			if _, seen := visited[child]; !seen {
				stack = append(stack, child)
			}
		}
	}

	return collected, nil
}
