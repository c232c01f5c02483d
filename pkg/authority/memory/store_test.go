package memory

import (
	"testing"

	"github.com/marmos91/depotfs/pkg/authority"
	authoritytesting "github.com/marmos91/depotfs/pkg/authority/testing"
)

func TestTokenStoreContract(t *testing.T) {
	suite := &authoritytesting.TokenStoreTestSuite{
		NewStore: func() authority.TokenStore {
			return NewTokenStore()
		},
	}
	suite.Run(t)
}
