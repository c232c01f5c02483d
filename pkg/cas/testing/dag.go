package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/cas"
)

// fileNode stores a file node whose key is derived from the given content
// and returns its key.
func putFileNode(t *testing.T, store cas.DagStore, content string) cas.Key {
	t.Helper()

	key := cas.ComputeKey([]byte(content))
	_, err := store.PutNode(context.Background(), key, nil, cas.NodeKindFile, uint64(len(content)))
	require.NoError(t, err)
	return key
}

// dictNode stores a dict node over the given children and returns its
// canonical key.
func putDictNode(t *testing.T, store cas.DagStore, children ...cas.Key) cas.Key {
	t.Helper()

	key := cas.ComputeNodeKey(cas.NodeKindDict, children)
	_, err := store.PutNode(context.Background(), key, children, cas.NodeKindDict, 0)
	require.NoError(t, err)
	return key
}

// TestPutNode_Success verifies nodes round-trip with kind, children order,
// and size intact.
func (suite *DagStoreTestSuite) TestPutNode_Success(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	childA := cas.ComputeKey([]byte("a"))
	childB := cas.ComputeKey([]byte("b"))
	key := cas.ComputeNodeKey(cas.NodeKindDict, []cas.Key{childA, childB})

	stored, err := store.PutNode(ctx, key, []cas.Key{childA, childB}, cas.NodeKindDict, 42)
	require.NoError(test, err)
	assert.Equal(test, key, stored.Key)

	node, err := store.GetNode(ctx, key)
	require.NoError(test, err)
	assert.Equal(test, cas.NodeKindDict, node.Kind)
	assert.Equal(test, []cas.Key{childA, childB}, node.Children)
	assert.Equal(test, uint64(42), node.Size)
}

// TestPutNode_Idempotent verifies re-putting an existing key is a no-op
// returning the stored node.
func (suite *DagStoreTestSuite) TestPutNode_Idempotent(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	key := cas.ComputeNodeKey(cas.NodeKindFile, nil)

	first, err := store.PutNode(ctx, key, nil, cas.NodeKindFile, 10)
	require.NoError(test, err)

	second, err := store.PutNode(ctx, key, nil, cas.NodeKindFile, 10)
	require.NoError(test, err)
	assert.Equal(test, first.Key, second.Key)
	assert.Equal(test, first.CreatedAt, second.CreatedAt)
}

// TestPutNode_InvalidKey verifies malformed keys are rejected.
func (suite *DagStoreTestSuite) TestPutNode_InvalidKey(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	_, err := store.PutNode(ctx, cas.Key("not-a-key"), nil, cas.NodeKindDict, 0)
	require.Error(test, err)
	assert.True(test, cas.IsCode(err, cas.ErrInvalidArgument))
}

// TestPutNode_InvalidKind verifies unknown node kinds are rejected.
func (suite *DagStoreTestSuite) TestPutNode_InvalidKind(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	key := cas.ComputeKey([]byte("payload"))
	_, err := store.PutNode(ctx, key, nil, cas.NodeKind("symlink"), 0)
	require.Error(test, err)
	assert.True(test, cas.IsCode(err, cas.ErrInvalidArgument))
}

// TestGetNode_NotFound verifies absent keys return a typed not-found error.
func (suite *DagStoreTestSuite) TestGetNode_NotFound(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	_, err := store.GetNode(ctx, cas.ComputeKey([]byte("absent")))
	require.Error(test, err)
	assert.True(test, cas.IsNotFound(err))
}

// TestCollectKeys_SingleNode verifies the closure of a leaf is the leaf
// itself.
func (suite *DagStoreTestSuite) TestCollectKeys_SingleNode(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	leaf := putFileNode(test, store, "leaf content")

	keys, err := cas.CollectKeys(ctx, store, leaf)
	require.NoError(test, err)
	assert.Equal(test, []cas.Key{leaf}, keys)
}

// TestCollectKeys_Tree verifies every reachable key appears exactly once.
func (suite *DagStoreTestSuite) TestCollectKeys_Tree(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	fileA := putFileNode(test, store, "file a")
	fileB := putFileNode(test, store, "file b")
	subdir := putDictNode(test, store, fileB)
	root := putDictNode(test, store, fileA, subdir)

	keys, err := cas.CollectKeys(ctx, store, root)
	require.NoError(test, err)
	assert.Len(test, keys, 4)
	assert.ElementsMatch(test, []cas.Key{root, fileA, subdir, fileB}, keys)
	assert.Equal(test, root, keys[0])
}

// TestCollectKeys_SharedSubtree verifies a node referenced via two paths is
// collected once.
func (suite *DagStoreTestSuite) TestCollectKeys_SharedSubtree(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	shared := putFileNode(test, store, "shared leaf")
	left := putDictNode(test, store, shared)
	right := putDictNode(test, store, shared, shared)
	root := putDictNode(test, store, left, right)

	keys, err := cas.CollectKeys(ctx, store, root)
	require.NoError(test, err)
	assert.Len(test, keys, 4)
	assert.ElementsMatch(test, []cas.Key{root, left, right, shared}, keys)
}

// TestCollectKeys_DanglingChild verifies keys whose nodes were never written
// are included as leaves rather than failing the traversal.
func (suite *DagStoreTestSuite) TestCollectKeys_DanglingChild(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	dangling := cas.ComputeKey([]byte("not yet written"))
	root := putDictNode(test, store, dangling)

	keys, err := cas.CollectKeys(ctx, store, root)
	require.NoError(test, err)
	assert.ElementsMatch(test, []cas.Key{root, dangling}, keys)
}
