package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/depotfs/pkg/cas"
)

// GetNode retrieves a node by key.
func (store *Store) GetNode(ctx context.Context, key cas.Key) (*cas.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var node *cas.Node
	err := store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyNode(key))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			record, err := decodeNodeRecord(val)
			if err != nil {
				return err
			}
			node = &cas.Node{
				Key:       key,
				Children:  record.Children,
				Kind:      record.Kind,
				Size:      record.Size,
				CreatedAt: record.CreatedAt,
			}
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &cas.StoreError{
			Code:    cas.ErrNotFound,
			Message: "node not found",
			Key:     key,
		}
	}
	if err != nil {
		return nil, &cas.StoreError{
			Code:    cas.ErrIOError,
			Message: fmt.Sprintf("failed to read node: %v", err),
			Key:     key,
		}
	}

	return node, nil
}

// PutNode stores a node under the given key. Re-putting an existing key
// returns the stored node unchanged.
func (store *Store) PutNode(ctx context.Context, key cas.Key, children []cas.Key, kind cas.NodeKind, size uint64) (*cas.Node, error) {
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

	var node *cas.Node
	err := store.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyNode(key))
		if err == nil {
			return item.Value(func(val []byte) error {
				record, err := decodeNodeRecord(val)
				if err != nil {
					return err
				}
				node = &cas.Node{
					Key:       key,
					Children:  record.Children,
					Kind:      record.Kind,
					Size:      record.Size,
					CreatedAt: record.CreatedAt,
				}
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		record := &nodeRecord{
			Children:  children,
			Kind:      kind,
			Size:      size,
			CreatedAt: store.now(),
		}
		encoded, err := encodeNodeRecord(record)
		if err != nil {
			return err
		}
		if err := txn.Set(keyNode(key), encoded); err != nil {
			return err
		}

		node = &cas.Node{
			Key:       key,
			Children:  append([]cas.Key(nil), children...),
			Kind:      kind,
			Size:      size,
			CreatedAt: record.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, &cas.StoreError{
			Code:    cas.ErrIOError,
			Message: fmt.Sprintf("failed to store node: %v", err),
			Key:     key,
		}
	}

	return node, nil
}
