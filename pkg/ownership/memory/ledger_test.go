package memory

import (
	"testing"

	"github.com/marmos91/depotfs/pkg/ownership"
	ownershiptesting "github.com/marmos91/depotfs/pkg/ownership/testing"
)

func TestLedgerContract(t *testing.T) {
	suite := &ownershiptesting.LedgerTestSuite{
		NewLedger: func() ownership.Ledger {
			return NewLedger()
		},
	}
	suite.Run(t)
}
