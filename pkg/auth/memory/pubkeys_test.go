package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/auth"
	"github.com/marmos91/depotfs/pkg/cas"
)

func TestPubKeyStoreRoundtrip(t *testing.T) {
	store := NewPubKeyStore()
	ctx := context.Background()

	key := &auth.AuthorizedKey{
		PublicKey: "encoded-key-material",
		UserID:    "usr_alice",
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.PutKey(ctx, key))

	fetched, err := store.GetKey(ctx, "encoded-key-material")
	require.NoError(t, err)
	assert.Equal(t, "usr_alice", fetched.UserID)

	// The store hands out copies; mutating one must not affect the other.
	fetched.UserID = "usr_mallory"
	again, err := store.GetKey(ctx, "encoded-key-material")
	require.NoError(t, err)
	assert.Equal(t, "usr_alice", again.UserID)
}

func TestPubKeyStoreValidation(t *testing.T) {
	store := NewPubKeyStore()
	ctx := context.Background()

	err := store.PutKey(ctx, &auth.AuthorizedKey{UserID: "usr_alice"})
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrInvalidArgument))

	err = store.PutKey(ctx, &auth.AuthorizedKey{PublicKey: "material"})
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrInvalidArgument))
}

func TestPubKeyStoreDelete(t *testing.T) {
	store := NewPubKeyStore()
	ctx := context.Background()

	require.NoError(t, store.PutKey(ctx, &auth.AuthorizedKey{
		PublicKey: "material",
		UserID:    "usr_alice",
	}))
	require.NoError(t, store.DeleteKey(ctx, "material"))

	_, err := store.GetKey(ctx, "material")
	assert.True(t, cas.IsNotFound(err))

	err = store.DeleteKey(ctx, "material")
	assert.True(t, cas.IsNotFound(err))
}
