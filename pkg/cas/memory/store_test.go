package memory

import (
	"testing"

	"github.com/marmos91/depotfs/pkg/cas"
	castesting "github.com/marmos91/depotfs/pkg/cas/testing"
)

func TestBlobStoreContract(t *testing.T) {
	suite := &castesting.BlobStoreTestSuite{
		NewStore: func() cas.BlobStore {
			return NewBlobStore()
		},
	}
	suite.Run(t)
}

func TestDagStoreContract(t *testing.T) {
	suite := &castesting.DagStoreTestSuite{
		NewStore: func() cas.DagStore {
			return NewDagStore()
		},
	}
	suite.Run(t)
}
