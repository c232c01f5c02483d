package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/auth"
	authtesting "github.com/marmos91/depotfs/pkg/auth/testing"
)

func newTestStore(t *testing.T) *RoleStore {
	t.Helper()

	store, err := NewRoleStore(context.Background(), RoleStoreConfig{
		DBPath: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestRoleStoreContract(t *testing.T) {
	suite := &authtesting.RoleStoreTestSuite{
		NewStore: func(t *testing.T) auth.RoleStore {
			return newTestStore(t)
		},
	}
	suite.Run(t)
}

func TestReopenPersistsRoles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	store, err := NewRoleStore(ctx, RoleStoreConfig{DBPath: dir})
	require.NoError(t, err)
	_, err = store.SetRole(ctx, "usr_alice", auth.RoleAdmin, now)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewRoleStore(ctx, RoleStoreConfig{DBPath: dir})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, reopened.Close())
	}()

	record, err := reopened.GetRole(ctx, "usr_alice")
	require.NoError(t, err)
	require.Equal(t, auth.RoleAdmin, record.Role)
	require.True(t, record.CreatedAt.Equal(now))
}
