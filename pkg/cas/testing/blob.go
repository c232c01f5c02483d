package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/cas"
)

// TestPut_Success verifies storing content returns the computed key and the
// content round-trips with its descriptive fields.
func (suite *BlobStoreTestSuite) TestPut_Success(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	content := []byte("hello")
	result, err := store.Put(ctx, content, "text/plain", map[string]string{"origin": "unit-test"})
	require.NoError(test, err)

	// sha256("hello")
	assert.Equal(test, cas.Key("sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"), result.Key)
	assert.Equal(test, uint64(5), result.Size)
	assert.True(test, result.IsNew)

	blob, err := store.Get(ctx, result.Key)
	require.NoError(test, err)
	assert.Equal(test, content, blob.Content)
	assert.Equal(test, "text/plain", blob.ContentType)
	assert.Equal(test, "unit-test", blob.Metadata["origin"])
	assert.Equal(test, uint64(5), blob.Size)
}

// TestPut_Idempotent verifies storing identical content twice converges on
// one key with IsNew=false on the second call.
func (suite *BlobStoreTestSuite) TestPut_Idempotent(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	content := []byte("same bytes both times")

	first, err := store.Put(ctx, content, "", nil)
	require.NoError(test, err)
	assert.True(test, first.IsNew)

	second, err := store.Put(ctx, content, "", nil)
	require.NoError(test, err)
	assert.Equal(test, first.Key, second.Key)
	assert.False(test, second.IsNew)
}

// TestPutWithKey_Success verifies a correctly declared key is accepted.
func (suite *BlobStoreTestSuite) TestPutWithKey_Success(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	content := []byte("declared up front")
	expected := cas.ComputeKey(content)

	result, err := store.PutWithKey(ctx, expected, content, "application/octet-stream", nil)
	require.NoError(test, err)
	assert.Equal(test, expected, result.Key)
	assert.True(test, result.IsNew)
}

// TestPutWithKey_HashMismatch verifies a wrong declared key is rejected with
// both keys reported and nothing stored.
func (suite *BlobStoreTestSuite) TestPutWithKey_HashMismatch(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	content := []byte("actual content")
	wrong := cas.ComputeKey([]byte("different content"))

	_, err := store.PutWithKey(ctx, wrong, content, "", nil)
	require.Error(test, err)
	require.True(test, cas.IsCode(err, cas.ErrHashMismatch))

	var storeErr *cas.StoreError
	require.ErrorAs(test, err, &storeErr)
	assert.Equal(test, wrong, storeErr.Expected)
	assert.Equal(test, cas.ComputeKey(content), storeErr.Actual)

	// The blob must not be stored under either key.
	exists, err := store.Exists(ctx, wrong)
	require.NoError(test, err)
	assert.False(test, exists)

	exists, err = store.Exists(ctx, cas.ComputeKey(content))
	require.NoError(test, err)
	assert.False(test, exists)
}

// TestPutWithKey_MalformedKey verifies syntactically invalid keys are
// rejected as invalid arguments, not as hash mismatches.
func (suite *BlobStoreTestSuite) TestPutWithKey_MalformedKey(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	tests := []struct {
		name string
		key  cas.Key
	}{
		{"missing_prefix", cas.Key("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")},
		{"uppercase_hex", cas.Key("sha256:2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824")},
		{"short_digest", cas.Key("sha256:abc123")},
		{"empty", cas.Key("")},
	}

	for _, tt := range tests {
		test.Run(tt.name, func(t *testing.T) {
			_, err := store.PutWithKey(ctx, tt.key, []byte("content"), "", nil)
			require.Error(t, err)
			assert.True(t, cas.IsCode(err, cas.ErrInvalidArgument))
		})
	}
}

// TestGet_Success verifies returned blobs are isolated from store internals.
func (suite *BlobStoreTestSuite) TestGet_Success(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	result, err := store.Put(ctx, []byte("mutate me"), "", nil)
	require.NoError(test, err)

	blob, err := store.Get(ctx, result.Key)
	require.NoError(test, err)

	// Mutating the returned content must not affect a subsequent read.
	blob.Content[0] = 'X'

	fresh, err := store.Get(ctx, result.Key)
	require.NoError(test, err)
	assert.Equal(test, []byte("mutate me"), fresh.Content)
}

// TestGet_NotFound verifies absent keys return a typed not-found error.
func (suite *BlobStoreTestSuite) TestGet_NotFound(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	absent := cas.ComputeKey([]byte("never stored"))
	_, err := store.Get(ctx, absent)
	require.Error(test, err)
	assert.True(test, cas.IsNotFound(err))
}

// TestExists verifies existence checks report false without error for
// absent keys.
func (suite *BlobStoreTestSuite) TestExists(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	key := cas.ComputeKey([]byte("presence"))

	exists, err := store.Exists(ctx, key)
	require.NoError(test, err)
	assert.False(test, exists)

	_, err = store.Put(ctx, []byte("presence"), "", nil)
	require.NoError(test, err)

	exists, err = store.Exists(ctx, key)
	require.NoError(test, err)
	assert.True(test, exists)
}

// TestEmptyContent verifies the empty blob is storable; its key is the
// well-known sha256 of the empty string.
func (suite *BlobStoreTestSuite) TestEmptyContent(test *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	result, err := store.Put(ctx, []byte{}, "", nil)
	require.NoError(test, err)
	assert.Equal(test, cas.Key("sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"), result.Key)
	assert.Equal(test, uint64(0), result.Size)

	blob, err := store.Get(ctx, result.Key)
	require.NoError(test, err)
	assert.Empty(test, blob.Content)
}

// TestBlobContextCancelled verifies operations fail fast on a cancelled
// context.
func (suite *BlobStoreTestSuite) TestBlobContextCancelled(test *testing.T) {
	store := suite.NewStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Put(ctx, []byte("content"), "", nil)
	assert.ErrorIs(test, err, context.Canceled)

	_, err = store.Get(ctx, cas.ComputeKey([]byte("content")))
	assert.ErrorIs(test, err, context.Canceled)

	_, err = store.Exists(ctx, cas.ComputeKey([]byte("content")))
	assert.ErrorIs(test, err, context.Canceled)
}
