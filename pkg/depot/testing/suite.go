// Package testing provides a reusable contract test suite for depot.Store
// implementations. Backend packages wire their store into the suite to
// prove they honor the same semantics.
package testing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/cas"
	"github.com/marmos91/depotfs/pkg/depot"
)

// StoreTestSuite runs the depot.Store contract tests against any
// implementation.
type StoreTestSuite struct {
	// NewStore returns a fresh, empty store for each test
	NewStore func(t *testing.T) depot.Store
}

// Run executes all contract tests.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("CreateDepot_Success", suite.TestCreateDepotSuccess)
	t.Run("CreateDepot_DuplicateName", suite.TestCreateDepotDuplicateName)
	t.Run("GetDepot_NotFound", suite.TestGetDepotNotFound)
	t.Run("GetDepotByName", suite.TestGetDepotByName)
	t.Run("ListDepots_OrderedByName", suite.TestListDepotsOrderedByName)
	t.Run("ListDepots_RealmIsolation", suite.TestListDepotsRealmIsolation)
	t.Run("AdvanceRoot_VersionSequence", suite.TestAdvanceRootVersionSequence)
	t.Run("AdvanceRoot_NotFound", suite.TestAdvanceRootNotFound)
	t.Run("ListHistory_Pagination", suite.TestListHistoryPagination)
	t.Run("GetHistory", suite.TestGetHistory)
	t.Run("Commit_Lifecycle", suite.TestCommitLifecycle)
	t.Run("CreateCommit_DuplicateRoot", suite.TestCreateCommitDuplicateRoot)
	t.Run("ListCommits_Pagination", suite.TestListCommitsPagination)
	t.Run("ListCommits_BadCursor", suite.TestListCommitsBadCursor)
}

var suiteEpoch = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func sampleDepot(realm string, id string, name string) *depot.Depot {
	return &depot.Depot{
		Realm:     realm,
		ID:        id,
		Name:      name,
		Root:      cas.EmptyDictKey(),
		Version:   1,
		CreatedAt: suiteEpoch,
		UpdatedAt: suiteEpoch,
	}
}

func rootForContent(content string) cas.Key {
	return cas.ComputeKey([]byte(content))
}

// TestCreateDepotSuccess verifies a created depot reads back intact.
func (suite *StoreTestSuite) TestCreateDepotSuccess(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	d := sampleDepot("usr_alice", "dpt_one", "main")
	d.Description = "default depot"
	require.NoError(t, store.CreateDepot(ctx, d))

	got, err := store.GetDepot(ctx, "usr_alice", "dpt_one")
	require.NoError(t, err)
	assert.Equal(t, "main", got.Name)
	assert.Equal(t, cas.EmptyDictKey(), got.Root)
	assert.Equal(t, uint64(1), got.Version)
	assert.Equal(t, "default depot", got.Description)
}

// TestCreateDepotDuplicateName verifies per-realm name uniqueness, and that
// the same name is free in another realm.
func (suite *StoreTestSuite) TestCreateDepotDuplicateName(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateDepot(ctx, sampleDepot("usr_alice", "dpt_one", "main")))

	err := store.CreateDepot(ctx, sampleDepot("usr_alice", "dpt_two", "main"))
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrAlreadyExists))

	assert.NoError(t, store.CreateDepot(ctx, sampleDepot("usr_bob", "dpt_three", "main")))
}

func (suite *StoreTestSuite) TestGetDepotNotFound(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	_, err := store.GetDepot(ctx, "usr_alice", "dpt_missing")
	require.Error(t, err)
	assert.True(t, cas.IsNotFound(err))

	_, err = store.GetDepotByName(ctx, "usr_alice", "missing")
	require.Error(t, err)
	assert.True(t, cas.IsNotFound(err))
}

func (suite *StoreTestSuite) TestGetDepotByName(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateDepot(ctx, sampleDepot("usr_alice", "dpt_one", "main")))
	require.NoError(t, store.CreateDepot(ctx, sampleDepot("usr_alice", "dpt_two", "scratch")))

	got, err := store.GetDepotByName(ctx, "usr_alice", "scratch")
	require.NoError(t, err)
	assert.Equal(t, "dpt_two", got.ID)
}

func (suite *StoreTestSuite) TestListDepotsOrderedByName(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateDepot(ctx, sampleDepot("usr_alice", "dpt_one", "scratch")))
	require.NoError(t, store.CreateDepot(ctx, sampleDepot("usr_alice", "dpt_two", "archive")))
	require.NoError(t, store.CreateDepot(ctx, sampleDepot("usr_alice", "dpt_three", "main")))

	depots, err := store.ListDepots(ctx, "usr_alice")
	require.NoError(t, err)
	require.Len(t, depots, 3)
	assert.Equal(t, "archive", depots[0].Name)
	assert.Equal(t, "main", depots[1].Name)
	assert.Equal(t, "scratch", depots[2].Name)
}

func (suite *StoreTestSuite) TestListDepotsRealmIsolation(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateDepot(ctx, sampleDepot("usr_alice", "dpt_one", "main")))

	depots, err := store.ListDepots(ctx, "usr_bob")
	require.NoError(t, err)
	assert.Empty(t, depots)
}

// TestAdvanceRootVersionSequence verifies N advances produce versions
// 2..N+1 with exactly N history rows.
func (suite *StoreTestSuite) TestAdvanceRootVersionSequence(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateDepot(ctx, sampleDepot("usr_alice", "dpt_one", "main")))

	for i := 1; i <= 5; i++ {
		root := rootForContent(fmt.Sprintf("update-%d", i))
		now := suiteEpoch.Add(time.Duration(i) * time.Minute)

		updated, row, err := store.AdvanceRoot(ctx, "usr_alice", "dpt_one", root, fmt.Sprintf("update %d", i), now)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), updated.Version)
		assert.Equal(t, root, updated.Root)
		assert.Equal(t, now, updated.UpdatedAt.UTC())
		require.NotNil(t, row)
		assert.Equal(t, updated.Version, row.Version)
		assert.Equal(t, root, row.Root)
	}

	page, err := store.ListHistory(ctx, "usr_alice", "dpt_one", depot.HistoryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Records, 5)
	// Newest first: versions 6 down to 2.
	for i, row := range page.Records {
		assert.Equal(t, uint64(6-i), row.Version)
	}
}

func (suite *StoreTestSuite) TestAdvanceRootNotFound(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	_, _, err := store.AdvanceRoot(ctx, "usr_alice", "dpt_missing", rootForContent("x"), "", suiteEpoch)
	require.Error(t, err)
	assert.True(t, cas.IsNotFound(err))
}

// TestListHistoryPagination walks a 7-row history in pages of 3 and checks
// the cursor contract: full pages carry a cursor, the final short page does
// not, and the union covers every row exactly once.
func (suite *StoreTestSuite) TestListHistoryPagination(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateDepot(ctx, sampleDepot("usr_alice", "dpt_one", "main")))
	for i := 1; i <= 7; i++ {
		_, _, err := store.AdvanceRoot(ctx, "usr_alice", "dpt_one", rootForContent(fmt.Sprintf("v%d", i)), "", suiteEpoch.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	seen := make(map[uint64]bool)
	var cursor uint64
	pages := 0
	for {
		page, err := store.ListHistory(ctx, "usr_alice", "dpt_one", depot.HistoryOptions{
			Limit:        3,
			StartVersion: cursor,
		})
		require.NoError(t, err)
		assert.Equal(t, 7, page.Total)
		pages++

		for _, row := range page.Records {
			assert.False(t, seen[row.Version], "version %d returned twice", row.Version)
			seen[row.Version] = true
		}

		if page.NextVersion == 0 {
			assert.Less(t, len(page.Records), 3)
			break
		}
		require.Len(t, page.Records, 3)
		cursor = page.NextVersion
	}

	assert.Equal(t, 3, pages)
	assert.Len(t, seen, 7)
}

func (suite *StoreTestSuite) TestGetHistory(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateDepot(ctx, sampleDepot("usr_alice", "dpt_one", "main")))
	root := rootForContent("first update")
	_, _, err := store.AdvanceRoot(ctx, "usr_alice", "dpt_one", root, "first", suiteEpoch.Add(time.Minute))
	require.NoError(t, err)

	row, err := store.GetHistory(ctx, "usr_alice", "dpt_one", 2)
	require.NoError(t, err)
	assert.Equal(t, root, row.Root)
	assert.Equal(t, "first", row.Message)

	// Version 1 is creation and has no row.
	_, err = store.GetHistory(ctx, "usr_alice", "dpt_one", 1)
	require.Error(t, err)
	assert.True(t, cas.IsNotFound(err))
}

func (suite *StoreTestSuite) TestCommitLifecycle(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	root := rootForContent("committed tree")
	commit := &depot.Commit{
		Realm:     "usr_alice",
		Root:      root,
		Title:     "initial import",
		CreatedBy: "tok_alice",
		CreatedAt: suiteEpoch,
	}
	require.NoError(t, store.CreateCommit(ctx, commit))

	got, err := store.GetCommit(ctx, "usr_alice", root)
	require.NoError(t, err)
	assert.Equal(t, "initial import", got.Title)
	assert.Equal(t, "tok_alice", got.CreatedBy)

	updated, err := store.UpdateCommitTitle(ctx, "usr_alice", root, "renamed")
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, "tok_alice", updated.CreatedBy)

	require.NoError(t, store.DeleteCommit(ctx, "usr_alice", root))
	_, err = store.GetCommit(ctx, "usr_alice", root)
	require.Error(t, err)
	assert.True(t, cas.IsNotFound(err))

	err = store.DeleteCommit(ctx, "usr_alice", root)
	require.Error(t, err)
	assert.True(t, cas.IsNotFound(err))
}

func (suite *StoreTestSuite) TestCreateCommitDuplicateRoot(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	root := rootForContent("tree")
	require.NoError(t, store.CreateCommit(ctx, &depot.Commit{
		Realm:     "usr_alice",
		Root:      root,
		CreatedAt: suiteEpoch,
	}))

	err := store.CreateCommit(ctx, &depot.Commit{
		Realm:     "usr_alice",
		Root:      root,
		CreatedAt: suiteEpoch.Add(time.Minute),
	})
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrAlreadyExists))

	// Another realm may tag the same root.
	assert.NoError(t, store.CreateCommit(ctx, &depot.Commit{
		Realm:     "usr_bob",
		Root:      root,
		CreatedAt: suiteEpoch,
	}))
}

func (suite *StoreTestSuite) TestListCommitsPagination(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, store.CreateCommit(ctx, &depot.Commit{
			Realm:     "usr_alice",
			Root:      rootForContent(fmt.Sprintf("tree-%d", i)),
			CreatedAt: suiteEpoch.Add(time.Duration(i) * time.Minute),
		}))
	}

	seen := make(map[cas.Key]bool)
	var cursor cas.Key
	pages := 0
	var previous *depot.Commit
	for {
		page, err := store.ListCommits(ctx, "usr_alice", depot.CommitListOptions{
			Limit:    3,
			StartKey: cursor,
		})
		require.NoError(t, err)
		assert.Equal(t, 7, page.Total)
		pages++

		for _, commit := range page.Records {
			assert.False(t, seen[commit.Root], "commit %s returned twice", commit.Root)
			seen[commit.Root] = true
			if previous != nil {
				assert.False(t, commit.CreatedAt.After(previous.CreatedAt), "commits must be newest first")
			}
			previous = commit
		}

		if page.NextKey == "" {
			assert.Less(t, len(page.Records), 3)
			break
		}
		require.Len(t, page.Records, 3)
		cursor = page.NextKey
	}

	assert.Equal(t, 3, pages)
	assert.Len(t, seen, 7)
}

func (suite *StoreTestSuite) TestListCommitsBadCursor(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateCommit(ctx, &depot.Commit{
		Realm:     "usr_alice",
		Root:      rootForContent("tree"),
		CreatedAt: suiteEpoch,
	}))

	_, err := store.ListCommits(ctx, "usr_alice", depot.CommitListOptions{
		Limit:    3,
		StartKey: rootForContent("never committed"),
	})
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrInvalidArgument))
}
