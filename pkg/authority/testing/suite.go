// Package testing provides a reusable contract test suite for
// authority.TokenStore implementations.
package testing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/authority"
	"github.com/marmos91/depotfs/pkg/cas"
)

// TokenStoreTestSuite is a contract test suite for authority.TokenStore
// implementations.
type TokenStoreTestSuite struct {
	// NewStore is a factory function that creates a fresh TokenStore
	// instance for each test.
	NewStore func() authority.TokenStore
}

// Run executes all tests in the suite.
func (suite *TokenStoreTestSuite) Run(test *testing.T) {
	test.Run("PutGet_RoundTrip", suite.TestPutGet_RoundTrip)
	test.Run("Get_NotFound", suite.TestGet_NotFound)
	test.Run("Put_Overwrites", suite.TestPut_Overwrites)
	test.Run("Delete", suite.TestDelete)
	test.Run("Mutate_AppliesChanges", suite.TestMutate_AppliesChanges)
	test.Run("Mutate_ErrorLeavesUnchanged", suite.TestMutate_ErrorLeavesUnchanged)
	test.Run("Mutate_SerializesRacingWriters", suite.TestMutate_SerializesRacingWriters)
	test.Run("Isolation", suite.TestIsolation)
}

func sampleTicket(id string) *authority.Token {
	quota := uint64(1 << 20)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &authority.Token{
		ID:       id,
		Type:     authority.TokenTypeTicket,
		Realm:    "usr_alice",
		IssuerID: "tok_issuer",
		Scope:    []cas.Key{cas.ComputeKey([]byte("scope root"))},
		Commit: &authority.CommitConfig{
			Quota:  &quota,
			Accept: []string{"image/*", "application/json"},
		},
		Config: authority.TicketConfig{
			NodeLimit:    100,
			MaxNameBytes: 255,
		},
		CreatedAt: now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
}

// TestPutGet_RoundTrip verifies every token field survives storage.
func (suite *TokenStoreTestSuite) TestPutGet_RoundTrip(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	ticket := sampleTicket("tkt_roundtrip")
	require.NoError(test, store.PutToken(ctx, ticket))

	fetched, err := store.GetToken(ctx, "tkt_roundtrip")
	require.NoError(test, err)
	assert.Equal(test, ticket.Type, fetched.Type)
	assert.Equal(test, ticket.Realm, fetched.Realm)
	assert.Equal(test, ticket.IssuerID, fetched.IssuerID)
	assert.Equal(test, ticket.Scope, fetched.Scope)
	require.NotNil(test, fetched.Commit)
	require.NotNil(test, fetched.Commit.Quota)
	assert.Equal(test, uint64(1<<20), *fetched.Commit.Quota)
	assert.Equal(test, []string{"image/*", "application/json"}, fetched.Commit.Accept)
	assert.Equal(test, 100, fetched.Config.NodeLimit)
	assert.True(test, ticket.ExpiresAt.Equal(fetched.ExpiresAt))
	assert.False(test, fetched.IsRevoked)
	assert.Nil(test, fetched.Output)
	assert.False(test, fetched.Written)
}

// TestGet_NotFound verifies absent ids return a typed not-found error.
func (suite *TokenStoreTestSuite) TestGet_NotFound(test *testing.T) {
	store := suite.NewStore()

	_, err := store.GetToken(context.Background(), "tkt_absent")
	require.Error(test, err)
	assert.True(test, cas.IsNotFound(err))
}

// TestPut_Overwrites verifies re-putting an id replaces the record.
func (suite *TokenStoreTestSuite) TestPut_Overwrites(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	ticket := sampleTicket("tkt_overwrite")
	require.NoError(test, store.PutToken(ctx, ticket))

	ticket.IsRevoked = true
	require.NoError(test, store.PutToken(ctx, ticket))

	fetched, err := store.GetToken(ctx, "tkt_overwrite")
	require.NoError(test, err)
	assert.True(test, fetched.IsRevoked)
}

// TestDelete verifies deletion and its not-found contract.
func (suite *TokenStoreTestSuite) TestDelete(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	require.NoError(test, store.PutToken(ctx, sampleTicket("tkt_delete")))
	require.NoError(test, store.DeleteToken(ctx, "tkt_delete"))

	_, err := store.GetToken(ctx, "tkt_delete")
	assert.True(test, cas.IsNotFound(err))

	err = store.DeleteToken(ctx, "tkt_delete")
	assert.True(test, cas.IsNotFound(err))
}

// TestMutate_AppliesChanges verifies mutations persist.
func (suite *TokenStoreTestSuite) TestMutate_AppliesChanges(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	require.NoError(test, store.PutToken(ctx, sampleTicket("tkt_mutate")))

	output := cas.ComputeKey([]byte("committed root"))
	updated, err := store.MutateToken(ctx, "tkt_mutate", func(token *authority.Token) error {
		token.Output = &output
		token.Written = true
		return nil
	})
	require.NoError(test, err)
	assert.True(test, updated.Written)

	fetched, err := store.GetToken(ctx, "tkt_mutate")
	require.NoError(test, err)
	require.NotNil(test, fetched.Output)
	assert.Equal(test, output, *fetched.Output)
	assert.True(test, fetched.Written)
}

// TestMutate_ErrorLeavesUnchanged verifies a failing mutation does not
// persist partial changes.
func (suite *TokenStoreTestSuite) TestMutate_ErrorLeavesUnchanged(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	require.NoError(test, store.PutToken(ctx, sampleTicket("tkt_rollback")))

	sentinel := &cas.StoreError{Code: cas.ErrConflict, Message: "rejected"}
	_, err := store.MutateToken(ctx, "tkt_rollback", func(token *authority.Token) error {
		token.Written = true
		return sentinel
	})
	require.Error(test, err)
	assert.True(test, cas.IsCode(err, cas.ErrConflict))

	fetched, err := store.GetToken(ctx, "tkt_rollback")
	require.NoError(test, err)
	assert.False(test, fetched.Written)
}

// TestMutate_SerializesRacingWriters verifies the single-use latch: many
// concurrent committers, exactly one success.
func (suite *TokenStoreTestSuite) TestMutate_SerializesRacingWriters(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	require.NoError(test, store.PutToken(ctx, sampleTicket("tkt_race")))

	const writers = 16
	var wg sync.WaitGroup
	results := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, err := store.MutateToken(ctx, "tkt_race", func(token *authority.Token) error {
				if token.Written {
					return &cas.StoreError{
						Code:    cas.ErrConflict,
						Message: "ticket already committed",
					}
				}
				token.Written = true
				return nil
			})
			results[slot] = err
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.True(test, cas.IsCode(err, cas.ErrConflict))
		}
	}
	assert.Equal(test, 1, winners)
}

// TestIsolation verifies returned tokens do not alias stored state.
func (suite *TokenStoreTestSuite) TestIsolation(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	require.NoError(test, store.PutToken(ctx, sampleTicket("tkt_isolated")))

	fetched, err := store.GetToken(ctx, "tkt_isolated")
	require.NoError(test, err)
	fetched.Scope[0] = cas.ComputeKey([]byte("tampered"))
	fetched.IsRevoked = true

	fresh, err := store.GetToken(ctx, "tkt_isolated")
	require.NoError(test, err)
	assert.Equal(test, cas.ComputeKey([]byte("scope root")), fresh.Scope[0])
	assert.False(test, fresh.IsRevoked)
}
