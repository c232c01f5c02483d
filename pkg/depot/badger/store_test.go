package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/depot"
	depottesting "github.com/marmos91/depotfs/pkg/depot/testing"
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

func TestStoreContract(t *testing.T) {
	suite := &depottesting.StoreTestSuite{
		NewStore: func(t *testing.T) depot.Store {
			return newTestStore(t)
		},
	}
	suite.Run(t)
}

func TestReopenPersistsDepots(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewStore(ctx, StoreConfig{DBPath: dir})
	require.NoError(t, err)

	service := depot.NewService(store)
	created, err := service.Create(ctx, "usr_alice", depot.CreateParams{Name: "main"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewStore(ctx, StoreConfig{DBPath: dir})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, reopened.Close())
	}()

	got, err := reopened.GetDepot(ctx, "usr_alice", created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Root, got.Root)
	require.Equal(t, uint64(1), got.Version)
}
