package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/ownership"
	ownershiptesting "github.com/marmos91/depotfs/pkg/ownership/testing"
)

func TestLedgerContract(t *testing.T) {
	suite := &ownershiptesting.LedgerTestSuite{
		NewLedger: func() ownership.Ledger {
			ledger, err := NewLedger(context.Background(), LedgerConfig{
				DBPath: t.TempDir(),
			})
			require.NoError(t, err)
			t.Cleanup(func() {
				require.NoError(t, ledger.Close())
			})
			return ledger
		},
	}
	suite.Run(t)
}
