package gc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/cas"
	casmemory "github.com/marmos91/depotfs/pkg/cas/memory"
	"github.com/marmos91/depotfs/pkg/depot"
	depotmemory "github.com/marmos91/depotfs/pkg/depot/memory"
	"github.com/marmos91/depotfs/pkg/gc"
	"github.com/marmos91/depotfs/pkg/ownership"
	ownershipmemory "github.com/marmos91/depotfs/pkg/ownership/memory"
)

type harness struct {
	dag        *casmemory.DagStore
	ledger     *ownershipmemory.Ledger
	depots     *depot.Service
	accountant *gc.Accountant
}

func newHarness() *harness {
	dag := casmemory.NewDagStore()
	ledger := ownershipmemory.NewLedger()
	depots := depot.NewService(depotmemory.NewStore())
	return &harness{
		dag:        dag,
		ledger:     ledger,
		depots:     depots,
		accountant: gc.NewAccountant(dag, ledger, depots),
	}
}

func (h *harness) putNode(t *testing.T, kind cas.NodeKind, children []cas.Key) cas.Key {
	t.Helper()
	node, err := h.dag.PutNode(context.Background(), cas.ComputeNodeKey(kind, children), children, kind, 0)
	require.NoError(t, err)
	return node.Key
}

func (h *harness) own(t *testing.T, realm string, keys ...cas.Key) {
	t.Helper()
	for _, key := range keys {
		_, err := h.ledger.AddOwnership(context.Background(), realm, key, ownership.Attributes{})
		require.NoError(t, err)
	}
}

func TestAccountRealmEmptyRealm(t *testing.T) {
	h := newHarness()

	report, err := h.accountant.AccountRealm(context.Background(), "usr_alice")
	require.NoError(t, err)
	assert.Empty(t, report.Referenced)
	assert.Zero(t, report.Owned)
	assert.Empty(t, report.Orphaned)
	assert.Empty(t, report.Unregistered)
}

func TestAccountRealmPartitionsKeys(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	// Tree: root dict → file node → blob key. All owned.
	blobKey := cas.ComputeKey([]byte("file content"))
	fileKey := h.putNode(t, cas.NodeKindFile, []cas.Key{blobKey})
	rootKey := h.putNode(t, cas.NodeKindDict, []cas.Key{fileKey})
	h.own(t, "usr_alice", blobKey, fileKey, rootKey)

	// An owned key nothing references.
	orphanKey := cas.ComputeKey([]byte("left behind"))
	h.own(t, "usr_alice", orphanKey)

	d, err := h.depots.Create(ctx, "usr_alice", depot.CreateParams{Name: "main", Root: rootKey})
	require.NoError(t, err)
	require.Equal(t, rootKey, d.Root)

	report, err := h.accountant.AccountRealm(ctx, "usr_alice")
	require.NoError(t, err)

	assert.ElementsMatch(t, []cas.Key{rootKey, fileKey, blobKey}, report.Referenced)
	assert.Equal(t, 4, report.Owned)
	assert.Equal(t, []cas.Key{orphanKey}, report.Orphaned)
	assert.Empty(t, report.Unregistered)
}

func TestAccountRealmFlagsUnregisteredKeys(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	blobKey := cas.ComputeKey([]byte("file content"))
	fileKey := h.putNode(t, cas.NodeKindFile, []cas.Key{blobKey})
	// Only the node is owned; the blob ownership row is missing.
	h.own(t, "usr_alice", fileKey)

	_, err := h.depots.Create(ctx, "usr_alice", depot.CreateParams{Name: "main", Root: fileKey})
	require.NoError(t, err)

	report, err := h.accountant.AccountRealm(ctx, "usr_alice")
	require.NoError(t, err)
	assert.Equal(t, []cas.Key{blobKey}, report.Unregistered)
	assert.Empty(t, report.Orphaned)
}

func TestAccountRealmIncludesCommitRoots(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	committedKey := h.putNode(t, cas.NodeKindFile, []cas.Key{cas.ComputeKey([]byte("archived"))})
	h.own(t, "usr_alice", committedKey)

	_, err := h.depots.CreateCommit(ctx, "usr_alice", committedKey, "snapshot", "tok_x")
	require.NoError(t, err)

	report, err := h.accountant.AccountRealm(ctx, "usr_alice")
	require.NoError(t, err)
	assert.Contains(t, report.Referenced, committedKey)
	assert.Empty(t, report.Orphaned)
}
