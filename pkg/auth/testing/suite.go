// Package testing provides a reusable contract test suite for
// auth.RoleStore implementations.
package testing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/auth"
	"github.com/marmos91/depotfs/pkg/cas"
)

// suiteEpoch is the fixed reference time the suite stamps records with.
var suiteEpoch = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// RoleStoreTestSuite is a contract test suite for auth.RoleStore
// implementations.
type RoleStoreTestSuite struct {
	// NewStore creates a fresh store for each test.
	NewStore func(t *testing.T) auth.RoleStore
}

// Run executes all tests in the suite.
func (suite *RoleStoreTestSuite) Run(test *testing.T) {
	test.Run("SetRole_Creates", suite.TestSetRole_Creates)
	test.Run("SetRole_PreservesCreatedAt", suite.TestSetRole_PreservesCreatedAt)
	test.Run("GetRole_NotFound", suite.TestGetRole_NotFound)
	test.Run("ListRoles_OrderedByUserID", suite.TestListRoles_OrderedByUserID)
	test.Run("DeleteRole", suite.TestDeleteRole)
}

func (suite *RoleStoreTestSuite) TestSetRole_Creates(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	record, err := store.SetRole(ctx, "usr_alice", auth.RoleAuthorized, suiteEpoch)
	require.NoError(t, err)
	assert.Equal(t, "usr_alice", record.UserID)
	assert.Equal(t, auth.RoleAuthorized, record.Role)
	assert.True(t, record.CreatedAt.Equal(suiteEpoch))
	assert.True(t, record.UpdatedAt.Equal(suiteEpoch))

	fetched, err := store.GetRole(ctx, "usr_alice")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAuthorized, fetched.Role)
}

func (suite *RoleStoreTestSuite) TestSetRole_PreservesCreatedAt(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	_, err := store.SetRole(ctx, "usr_bob", auth.RoleUnauthorized, suiteEpoch)
	require.NoError(t, err)

	later := suiteEpoch.Add(time.Hour)
	updated, err := store.SetRole(ctx, "usr_bob", auth.RoleAdmin, later)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, updated.Role)
	assert.True(t, updated.CreatedAt.Equal(suiteEpoch), "promotion must not rewrite CreatedAt")
	assert.True(t, updated.UpdatedAt.Equal(later))
}

func (suite *RoleStoreTestSuite) TestGetRole_NotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.GetRole(context.Background(), "usr_ghost")
	require.Error(t, err)
	assert.True(t, cas.IsNotFound(err))
}

func (suite *RoleStoreTestSuite) TestListRoles_OrderedByUserID(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	for _, userID := range []string{"usr_carol", "usr_alice", "usr_bob"} {
		_, err := store.SetRole(ctx, userID, auth.RoleAuthorized, suiteEpoch)
		require.NoError(t, err)
	}

	records, err := store.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "usr_alice", records[0].UserID)
	assert.Equal(t, "usr_bob", records[1].UserID)
	assert.Equal(t, "usr_carol", records[2].UserID)
}

func (suite *RoleStoreTestSuite) TestDeleteRole(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	_, err := store.SetRole(ctx, "usr_dave", auth.RoleAuthorized, suiteEpoch)
	require.NoError(t, err)

	require.NoError(t, store.DeleteRole(ctx, "usr_dave"))

	_, err = store.GetRole(ctx, "usr_dave")
	assert.True(t, cas.IsNotFound(err))

	err = store.DeleteRole(ctx, "usr_dave")
	require.Error(t, err)
	assert.True(t, cas.IsNotFound(err))
}
