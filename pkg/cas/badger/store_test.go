package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/cas"
	castesting "github.com/marmos91/depotfs/pkg/cas/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(context.Background(), StoreConfig{
		DBPath: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestBlobStoreContract(t *testing.T) {
	suite := &castesting.BlobStoreTestSuite{
		NewStore: func() cas.BlobStore {
			return newTestStore(t)
		},
	}
	suite.Run(t)
}

func TestDagStoreContract(t *testing.T) {
	suite := &castesting.DagStoreTestSuite{
		NewStore: func() cas.DagStore {
			return newTestStore(t)
		},
	}
	suite.Run(t)
}

func TestReopenPersistsData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewStore(ctx, StoreConfig{DBPath: dir})
	require.NoError(t, err)

	result, err := store.Put(ctx, []byte("survives restart"), "text/plain", nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewStore(ctx, StoreConfig{DBPath: dir})
	require.NoError(t, err)
	defer reopened.Close()

	blob, err := reopened.Get(ctx, result.Key)
	require.NoError(t, err)
	require.Equal(t, []byte("survives restart"), blob.Content)
	require.Equal(t, "text/plain", blob.ContentType)
}
