package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/depotfs/pkg/cas"
)

// Exists checks whether content with the given key is stored.
func (store *Store) Exists(ctx context.Context, key cas.Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var exists bool
	err := store.db.View(func(txn *badger.Txn) error {
		// The record key is enough; content is only loaded on Get.
		_, err := txn.Get(keyBlobRecord(key))
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
		return false, &cas.StoreError{
			Code:    cas.ErrIOError,
			Message: fmt.Sprintf("failed to check blob existence: %v", err),
			Key:     key,
		}
	}

	return exists, nil
}

// Get retrieves a blob by key.
func (store *Store) Get(ctx context.Context, key cas.Key) (*cas.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var blob *cas.Blob
	err := store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyBlobRecord(key))
		if err != nil {
			return err
		}

		var record *blobRecord
		if err := item.Value(func(val []byte) error {
			record, err = decodeBlobRecord(val)
			return err
		}); err != nil {
			return err
		}

		contentItem, err := txn.Get(keyBlobContent(key))
		if err != nil {
			return err
		}
		content, err := contentItem.ValueCopy(nil)
		if err != nil {
			return err
		}

		blob = &cas.Blob{
			Key:         key,
			Content:     content,
			ContentType: record.ContentType,
			Metadata:    record.Metadata,
			Size:        record.Size,
			CreatedAt:   record.CreatedAt,
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &cas.StoreError{
			Code:    cas.ErrNotFound,
			Message: "blob not found",
			Key:     key,
		}
	}
	if err != nil {
		return nil, &cas.StoreError{
			Code:    cas.ErrIOError,
			Message: fmt.Sprintf("failed to read blob: %v", err),
			Key:     key,
		}
	}

	return blob, nil
}

// Put stores content under its computed key.
func (store *Store) Put(ctx context.Context, content []byte, contentType string, metadata map[string]string) (*cas.PutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return store.storeBlob(cas.ComputeKey(content), content, contentType, metadata)
}

// PutWithKey stores content after verifying the caller-declared key.
func (store *Store) PutWithKey(ctx context.Context, expected cas.Key, content []byte, contentType string, metadata map[string]string) (*cas.PutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := cas.VerifyKey(expected, content); err != nil {
		return nil, err
	}

	return store.storeBlob(expected, content, contentType, metadata)
}

// storeBlob writes the record and content if absent. Run in a single
// transaction so a concurrent identical put cannot interleave between the
// existence check and the writes.
func (store *Store) storeBlob(key cas.Key, content []byte, contentType string, metadata map[string]string) (*cas.PutResult, error) {
	isNew := false
	err := store.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(keyBlobRecord(key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		record := &blobRecord{
			ContentType: contentType,
			Metadata:    metadata,
			Size:        uint64(len(content)),
			CreatedAt:   store.now(),
		}
		encoded, err := encodeBlobRecord(record)
		if err != nil {
			return err
		}

		if err := txn.Set(keyBlobContent(key), content); err != nil {
			return err
		}
		if err := txn.Set(keyBlobRecord(key), encoded); err != nil {
			return err
		}

		isNew = true
		return nil
	})
	if err != nil {
		return nil, &cas.StoreError{
			Code:    cas.ErrIOError,
			Message: fmt.Sprintf("failed to store blob: %v", err),
			Key:     key,
		}
	}

	return &cas.PutResult{
		Key:   key,
		Size:  uint64(len(content)),
		IsNew: isNew,
	}, nil
}
