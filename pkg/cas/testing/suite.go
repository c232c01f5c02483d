// Package testing provides reusable contract test suites for cas interface
// implementations. The suites test the interface contract, not implementation
// details, so every backend (memory, badger, s3) runs the same assertions.
package testing

import (
	"testing"

	"github.com/marmos91/depotfs/pkg/cas"
)

// BlobStoreTestSuite is a contract test suite for cas.BlobStore
// implementations.
type BlobStoreTestSuite struct {
	// NewStore is a factory function that creates a fresh BlobStore instance
	// for each test. This ensures test isolation.
	NewStore func() cas.BlobStore
}

// Run executes all tests in the suite.
func (suite *BlobStoreTestSuite) Run(test *testing.T) {
	test.Run("Put_Success", suite.TestPut_Success)
	test.Run("Put_Idempotent", suite.TestPut_Idempotent)
	test.Run("PutWithKey_Success", suite.TestPutWithKey_Success)
	test.Run("PutWithKey_HashMismatch", suite.TestPutWithKey_HashMismatch)
	test.Run("PutWithKey_MalformedKey", suite.TestPutWithKey_MalformedKey)
	test.Run("Get_Success", suite.TestGet_Success)
	test.Run("Get_NotFound", suite.TestGet_NotFound)
	test.Run("Exists", suite.TestExists)
	test.Run("EmptyContent", suite.TestEmptyContent)
	test.Run("ContextCancelled", suite.TestBlobContextCancelled)
}

// DagStoreTestSuite is a contract test suite for cas.DagStore
// implementations.
type DagStoreTestSuite struct {
	// NewStore is a factory function that creates a fresh DagStore instance
	// for each test.
	NewStore func() cas.DagStore
}

// Run executes all tests in the suite.
func (suite *DagStoreTestSuite) Run(test *testing.T) {
	test.Run("PutNode_Success", suite.TestPutNode_Success)
	test.Run("PutNode_Idempotent", suite.TestPutNode_Idempotent)
	test.Run("PutNode_InvalidKey", suite.TestPutNode_InvalidKey)
	test.Run("PutNode_InvalidKind", suite.TestPutNode_InvalidKind)
	test.Run("GetNode_NotFound", suite.TestGetNode_NotFound)
	test.Run("CollectKeys_SingleNode", suite.TestCollectKeys_SingleNode)
	test.Run("CollectKeys_Tree", suite.TestCollectKeys_Tree)
	test.Run("CollectKeys_SharedSubtree", suite.TestCollectKeys_SharedSubtree)
	test.Run("CollectKeys_DanglingChild", suite.TestCollectKeys_DanglingChild)
}
