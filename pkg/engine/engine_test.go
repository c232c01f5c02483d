package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/auth"
	"github.com/marmos91/depotfs/pkg/authority"
	authoritymemory "github.com/marmos91/depotfs/pkg/authority/memory"
	"github.com/marmos91/depotfs/pkg/cas"
	casmemory "github.com/marmos91/depotfs/pkg/cas/memory"
	"github.com/marmos91/depotfs/pkg/depot"
	depotmemory "github.com/marmos91/depotfs/pkg/depot/memory"
	"github.com/marmos91/depotfs/pkg/engine"
	ownershipmemory "github.com/marmos91/depotfs/pkg/ownership/memory"
)

const helloKey = cas.Key("sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")

type world struct {
	engine    *engine.Engine
	authority *authority.Authority
	blobs     *casmemory.BlobStore
	dag       *casmemory.DagStore
}

func newWorld(t *testing.T) *world {
	t.Helper()

	blobs := casmemory.NewBlobStore()
	dag := casmemory.NewDagStore()
	tokens := authoritymemory.NewTokenStore()
	tokenAuthority := authority.NewAuthority(tokens, dag)
	depots := depot.NewService(depotmemory.NewStore())

	return &world{
		engine: engine.NewEngine(engine.Config{
			Blobs:     blobs,
			Dag:       dag,
			Ledger:    ownershipmemory.NewLedger(),
			Authority: tokenAuthority,
			Depots:    depots,
		}),
		authority: tokenAuthority,
		blobs:     blobs,
		dag:       dag,
	}
}

func userContext(userID string) *auth.Context {
	return &auth.Context{
		UserID:         userID,
		Realm:          authority.RealmForUser(userID),
		CanRead:        true,
		CanWrite:       true,
		CanIssueTicket: true,
	}
}

func ticketContext(ticket *authority.Token) *auth.Context {
	return &auth.Context{
		Token:        ticket,
		Realm:        ticket.Realm,
		CanRead:      true,
		CanWrite:     ticket.Commit != nil,
		AllowedScope: ticket.Scope,
	}
}

func TestBootstrapRealmIdempotent(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	first, err := w.engine.BootstrapRealm(ctx, "usr_abc")
	require.NoError(t, err)
	assert.Equal(t, depot.MainDepotName, first.Name)
	assert.Equal(t, cas.EmptyDictKey(), first.Root)

	second, err := w.engine.BootstrapRealm(ctx, "usr_abc")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestWriteAndReadBlob(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	alice := userContext("alice")

	result, err := w.engine.WriteBlob(ctx, alice, engine.WriteBlobParams{
		Content:     []byte("hello"),
		ContentType: "text/plain",
	})
	require.NoError(t, err)
	assert.Equal(t, helloKey, result.Key)
	assert.True(t, result.IsNew)

	blob, err := w.engine.ReadBlob(ctx, alice, result.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), blob.Content)

	// The same content from another realm is invisible to it until that
	// realm writes (and thereby claims) it.
	bob := userContext("bob")
	_, err = w.engine.ReadBlob(ctx, bob, result.Key)
	require.Error(t, err)
	assert.True(t, cas.IsNotFound(err))
}

func TestWriteBlobRequiresWriteCapability(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	locked := &auth.Context{UserID: "mallory", Realm: "usr_mallory"}
	_, err := w.engine.WriteBlob(ctx, locked, engine.WriteBlobParams{Content: []byte("x")})
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrAccessDenied))
}

func TestPutNodeRequiresOwnedChildren(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	alice := userContext("alice")

	owned, err := w.engine.WriteBlob(ctx, alice, engine.WriteBlobParams{Content: []byte("file body")})
	require.NoError(t, err)

	node, err := w.engine.PutNode(ctx, alice, cas.NodeKindFile, []cas.Key{owned.Key}, 9)
	require.NoError(t, err)
	assert.Equal(t, cas.ComputeNodeKey(cas.NodeKindFile, []cas.Key{owned.Key}), node.Key)

	// A child the realm never wrote is rejected.
	stranger := cas.ComputeKey([]byte("someone else's bytes"))
	_, err = w.engine.PutNode(ctx, alice, cas.NodeKindDict, []cas.Key{stranger}, 0)
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrInvalidArgument))
}

// TestTicketWriteCommitFlow walks the full scenario: a writable scoped
// ticket writes "hello", commits it, and is then spent.
func TestTicketWriteCommitFlow(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	_, err := w.engine.BootstrapRealm(ctx, "usr_abc")
	require.NoError(t, err)

	issuer, err := w.authority.CreateUserToken(ctx, "abc", "", 0)
	require.NoError(t, err)

	scopeRoot := cas.ComputeNodeKey(cas.NodeKindDict, nil)
	quota := uint64(1 << 20)
	ticket, err := w.authority.CreateTicket(ctx, authority.TicketParams{
		Realm:    "usr_abc",
		IssuerID: issuer.ID,
		Scope:    []cas.Key{scopeRoot},
		Commit:   &authority.CommitConfig{Quota: &quota, Accept: []string{"text/*"}},
		TTL:      300 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, authority.TicketStatusIssued, ticket.Status())

	tctx := ticketContext(ticket)
	result, err := w.engine.WriteBlob(ctx, tctx, engine.WriteBlobParams{
		Content:     []byte("hello"),
		ContentType: "text/plain",
	})
	require.NoError(t, err)
	assert.Equal(t, helloKey, result.Key)

	committed, err := w.engine.CommitTicket(ctx, tctx, result.Key, "hello upload")
	require.NoError(t, err)
	assert.Equal(t, authority.TicketStatusCommitted, committed.Status())
	require.NotNil(t, committed.Output)
	assert.Equal(t, helloKey, *committed.Output)

	blobsBefore := w.blobs.Len()

	// The spent ticket may not write again; the store is unchanged.
	spent := ticketContext(committed)
	_, err = w.engine.WriteBlob(ctx, spent, engine.WriteBlobParams{
		Content:     []byte("second payload"),
		ContentType: "text/plain",
	})
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrConflict))
	assert.Equal(t, blobsBefore, w.blobs.Len())

	// Racing committer outcome: the second commit is a definitive conflict.
	_, err = w.engine.CommitTicket(ctx, spent, result.Key, "again")
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrConflict))
}

func TestTicketMimeRejection(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	issuer, err := w.authority.CreateUserToken(ctx, "abc", "", 0)
	require.NoError(t, err)
	ticket, err := w.authority.CreateTicket(ctx, authority.TicketParams{
		Realm:    "usr_abc",
		IssuerID: issuer.ID,
		Commit:   &authority.CommitConfig{Accept: []string{"image/*"}},
	})
	require.NoError(t, err)

	_, err = w.engine.WriteBlob(ctx, ticketContext(ticket), engine.WriteBlobParams{
		Content:     []byte("hello"),
		ContentType: "text/plain",
	})
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrUnsupportedMediaType))
}

func TestIssueTicketRequiresCapability(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	token, err := w.authority.CreateUserToken(ctx, "abc", "", 0)
	require.NoError(t, err)

	issuerCtx := userContext("abc")
	issuerCtx.Token = token
	ticket, err := w.engine.IssueTicket(ctx, issuerCtx, authority.TicketParams{
		Scope: []cas.Key{cas.EmptyDictKey()},
	})
	require.NoError(t, err)
	assert.Equal(t, "usr_abc", ticket.Realm)
	assert.Equal(t, token.ID, ticket.IssuerID)

	demoted := userContext("abc")
	demoted.Token = token
	demoted.CanIssueTicket = false
	_, err = w.engine.IssueTicket(ctx, demoted, authority.TicketParams{})
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrAccessDenied))
}

func TestAdvanceDepotThroughEngine(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	alice := userContext("alice")

	d, err := w.engine.BootstrapRealm(ctx, alice.Realm)
	require.NoError(t, err)

	newRoot := cas.ComputeKey([]byte("new tree"))
	updated, err := w.engine.AdvanceDepot(ctx, alice, d.ID, newRoot, "first update")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), updated.Version)
	assert.Equal(t, newRoot, updated.Root)
}
