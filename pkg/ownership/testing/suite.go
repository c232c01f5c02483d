// Package testing provides a reusable contract test suite for
// ownership.Ledger implementations.
package testing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/cas"
	"github.com/marmos91/depotfs/pkg/ownership"
)

// LedgerTestSuite is a contract test suite for ownership.Ledger
// implementations.
type LedgerTestSuite struct {
	// NewLedger is a factory function that creates a fresh Ledger instance
	// for each test.
	NewLedger func() ownership.Ledger
}

// Run executes all tests in the suite.
func (suite *LedgerTestSuite) Run(test *testing.T) {
	test.Run("Add_Success", suite.TestAdd_Success)
	test.Run("Add_Idempotent", suite.TestAdd_Idempotent)
	test.Run("Add_InvalidInput", suite.TestAdd_InvalidInput)
	test.Run("Get_NotFound", suite.TestGet_NotFound)
	test.Run("RealmIsolation", suite.TestRealmIsolation)
	test.Run("Check_Partition", suite.TestCheck_Partition)
	test.Run("Delete", suite.TestDelete)
	test.Run("List_Pagination", suite.TestList_Pagination)
	test.Run("List_BadCursor", suite.TestList_BadCursor)
	test.Run("Usage", suite.TestUsage)
	test.Run("ListAllKeys", suite.TestListAllKeys)
}

func claimKey(t *testing.T, ledger ownership.Ledger, realm string, content string) cas.Key {
	t.Helper()

	key := cas.ComputeKey([]byte(content))
	_, err := ledger.AddOwnership(context.Background(), realm, key, ownership.Attributes{
		CreatedBy: "usr_tester",
		Size:      uint64(len(content)),
	})
	require.NoError(t, err)
	return key
}

// TestAdd_Success verifies claims round-trip with all attributes.
func (suite *LedgerTestSuite) TestAdd_Success(test *testing.T) {
	ledger := suite.NewLedger()
	ctx := context.Background()

	key := cas.ComputeKey([]byte("claimed content"))
	record, err := ledger.AddOwnership(ctx, "usr_alice", key, ownership.Attributes{
		CreatedBy:   "usr_alice",
		ContentType: "text/plain",
		Size:        15,
	})
	require.NoError(test, err)
	assert.Equal(test, "usr_alice", record.Realm)
	assert.Equal(test, key, record.Key)
	assert.False(test, record.CreatedAt.IsZero())

	fetched, err := ledger.GetOwnership(ctx, "usr_alice", key)
	require.NoError(test, err)
	assert.Equal(test, "usr_alice", fetched.CreatedBy)
	assert.Equal(test, "text/plain", fetched.ContentType)
	assert.Equal(test, uint64(15), fetched.Size)

	has, err := ledger.HasOwnership(ctx, "usr_alice", key)
	require.NoError(test, err)
	assert.True(test, has)
}

// TestAdd_Idempotent verifies re-adding a claim returns the original record.
func (suite *LedgerTestSuite) TestAdd_Idempotent(test *testing.T) {
	ledger := suite.NewLedger()
	ctx := context.Background()

	key := cas.ComputeKey([]byte("claim once"))
	first, err := ledger.AddOwnership(ctx, "usr_alice", key, ownership.Attributes{Size: 10})
	require.NoError(test, err)

	second, err := ledger.AddOwnership(ctx, "usr_alice", key, ownership.Attributes{Size: 99})
	require.NoError(test, err)
	assert.Equal(test, first.CreatedAt, second.CreatedAt)
	assert.Equal(test, uint64(10), second.Size)

	usage, err := ledger.GetUsage(ctx, "usr_alice")
	require.NoError(test, err)
	assert.Equal(test, 1, usage.Count)
}

// TestAdd_InvalidInput verifies empty realms and malformed keys are
// rejected.
func (suite *LedgerTestSuite) TestAdd_InvalidInput(test *testing.T) {
	ledger := suite.NewLedger()
	ctx := context.Background()

	_, err := ledger.AddOwnership(ctx, "", cas.ComputeKey([]byte("x")), ownership.Attributes{})
	require.Error(test, err)
	assert.True(test, cas.IsCode(err, cas.ErrInvalidArgument))

	_, err = ledger.AddOwnership(ctx, "usr_alice", cas.Key("not-a-key"), ownership.Attributes{})
	require.Error(test, err)
	assert.True(test, cas.IsCode(err, cas.ErrInvalidArgument))
}

// TestGet_NotFound verifies absent claims return a typed not-found error.
func (suite *LedgerTestSuite) TestGet_NotFound(test *testing.T) {
	ledger := suite.NewLedger()
	ctx := context.Background()

	_, err := ledger.GetOwnership(ctx, "usr_alice", cas.ComputeKey([]byte("unclaimed")))
	require.Error(test, err)
	assert.True(test, cas.IsNotFound(err))
}

// TestRealmIsolation verifies the same key can be claimed by many realms
// independently.
func (suite *LedgerTestSuite) TestRealmIsolation(test *testing.T) {
	ledger := suite.NewLedger()
	ctx := context.Background()

	key := cas.ComputeKey([]byte("shared content"))
	_, err := ledger.AddOwnership(ctx, "usr_alice", key, ownership.Attributes{Size: 14})
	require.NoError(test, err)
	_, err = ledger.AddOwnership(ctx, "usr_bob", key, ownership.Attributes{Size: 14})
	require.NoError(test, err)

	// Deleting one realm's claim leaves the other untouched.
	require.NoError(test, ledger.DeleteOwnership(ctx, "usr_alice", key))

	has, err := ledger.HasOwnership(ctx, "usr_alice", key)
	require.NoError(test, err)
	assert.False(test, has)

	has, err = ledger.HasOwnership(ctx, "usr_bob", key)
	require.NoError(test, err)
	assert.True(test, has)
}

// TestCheck_Partition verifies batch checks split keys into found and
// missing.
func (suite *LedgerTestSuite) TestCheck_Partition(test *testing.T) {
	ledger := suite.NewLedger()
	ctx := context.Background()

	claimed := claimKey(test, ledger, "usr_alice", "claimed")
	otherRealm := claimKey(test, ledger, "usr_bob", "someone else's")
	unclaimed := cas.ComputeKey([]byte("unclaimed"))

	result, err := ledger.CheckOwnership(ctx, "usr_alice", []cas.Key{claimed, otherRealm, unclaimed})
	require.NoError(test, err)
	assert.Equal(test, []cas.Key{claimed}, result.Found)
	assert.ElementsMatch(test, []cas.Key{otherRealm, unclaimed}, result.Missing)
}

// TestDelete verifies delete removes the claim and is not idempotent.
func (suite *LedgerTestSuite) TestDelete(test *testing.T) {
	ledger := suite.NewLedger()
	ctx := context.Background()

	key := claimKey(test, ledger, "usr_alice", "to be unlinked")

	require.NoError(test, ledger.DeleteOwnership(ctx, "usr_alice", key))

	err := ledger.DeleteOwnership(ctx, "usr_alice", key)
	require.Error(test, err)
	assert.True(test, cas.IsNotFound(err))
}

// TestList_Pagination verifies cursor pagination covers every claim exactly
// once with NextKey only set on full pages with more remaining.
func (suite *LedgerTestSuite) TestList_Pagination(test *testing.T) {
	ledger := suite.NewLedger()
	ctx := context.Background()

	const total = 7
	expected := make(map[cas.Key]struct{}, total)
	for i := 0; i < total; i++ {
		key := claimKey(test, ledger, "usr_alice", fmt.Sprintf("content %d", i))
		expected[key] = struct{}{}
	}

	seen := make(map[cas.Key]struct{})
	var cursor cas.Key
	pages := 0
	for {
		page, err := ledger.ListNodes(ctx, "usr_alice", ownership.ListOptions{
			Limit:    3,
			StartKey: cursor,
		})
		require.NoError(test, err)
		assert.Equal(test, total, page.Total)
		pages++

		for _, record := range page.Records {
			_, dup := seen[record.Key]
			assert.False(test, dup, "key %s returned twice", record.Key)
			seen[record.Key] = struct{}{}
		}

		if page.NextKey == "" {
			// A final partial page never carries a cursor.
			assert.LessOrEqual(test, len(page.Records), 3)
			break
		}
		assert.Len(test, page.Records, 3)
		cursor = page.NextKey
	}

	assert.Equal(test, 3, pages)
	assert.Equal(test, expected, seen)
}

// TestList_BadCursor verifies an unknown cursor is rejected rather than
// silently restarting the listing.
func (suite *LedgerTestSuite) TestList_BadCursor(test *testing.T) {
	ledger := suite.NewLedger()
	ctx := context.Background()

	claimKey(test, ledger, "usr_alice", "only record")

	_, err := ledger.ListNodes(ctx, "usr_alice", ownership.ListOptions{
		Limit:    2,
		StartKey: cas.ComputeKey([]byte("never listed")),
	})
	require.Error(test, err)
	assert.True(test, cas.IsCode(err, cas.ErrInvalidArgument))
}

// TestUsage verifies aggregate count and size accounting.
func (suite *LedgerTestSuite) TestUsage(test *testing.T) {
	ledger := suite.NewLedger()
	ctx := context.Background()

	_, err := ledger.AddOwnership(ctx, "usr_alice", cas.ComputeKey([]byte("aa")), ownership.Attributes{Size: 2})
	require.NoError(test, err)
	_, err = ledger.AddOwnership(ctx, "usr_alice", cas.ComputeKey([]byte("bbbb")), ownership.Attributes{Size: 4})
	require.NoError(test, err)
	_, err = ledger.AddOwnership(ctx, "usr_bob", cas.ComputeKey([]byte("cccccc")), ownership.Attributes{Size: 6})
	require.NoError(test, err)

	usage, err := ledger.GetUsage(ctx, "usr_alice")
	require.NoError(test, err)
	assert.Equal(test, 2, usage.Count)
	assert.Equal(test, uint64(6), usage.TotalSize)

	empty, err := ledger.GetUsage(ctx, "usr_nobody")
	require.NoError(test, err)
	assert.Equal(test, 0, empty.Count)
	assert.Equal(test, uint64(0), empty.TotalSize)
}

// TestListAllKeys verifies cross-realm key listing deduplicates shared
// claims.
func (suite *LedgerTestSuite) TestListAllKeys(test *testing.T) {
	ledger := suite.NewLedger()
	ctx := context.Background()

	shared := cas.ComputeKey([]byte("shared"))
	_, err := ledger.AddOwnership(ctx, "usr_alice", shared, ownership.Attributes{})
	require.NoError(test, err)
	_, err = ledger.AddOwnership(ctx, "usr_bob", shared, ownership.Attributes{})
	require.NoError(test, err)

	only := claimKey(test, ledger, "usr_alice", "alice only")

	keys, err := ledger.ListAllKeys(ctx)
	require.NoError(test, err)
	assert.ElementsMatch(test, []cas.Key{shared, only}, keys)
}
