package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/authority"
	authoritytesting "github.com/marmos91/depotfs/pkg/authority/testing"
)

func TestTokenStoreContract(t *testing.T) {
	suite := &authoritytesting.TokenStoreTestSuite{
		NewStore: func() authority.TokenStore {
			store, err := NewTokenStore(context.Background(), TokenStoreConfig{
				DBPath: t.TempDir(),
			})
			require.NoError(t, err)
			t.Cleanup(func() {
				require.NoError(t, store.Close())
			})
			return store
		},
	}
	suite.Run(t)
}
