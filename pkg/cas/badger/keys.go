package badger

import "github.com/marmos91/depotfs/pkg/cas"

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so record types use prefixed keys to keep
// namespaces disjoint. CAS keys already have a fixed "sha256:<hex>" shape,
// which makes them safe to embed directly in database keys.
//
// Data Type       Prefix   Key Format        Value Type
// =========================================================================
// Blob Content    "b:"     b:<cas key>       raw content bytes
// Blob Record     "bm:"    bm:<cas key>      blobRecord (JSON)
// DAG Node        "n:"     n:<cas key>       nodeRecord (JSON)
//
// Content and record are stored under separate keys so existence checks and
// metadata reads never load the content value log entry.

const (
	// prefixBlobContent is the key prefix for raw blob content
	prefixBlobContent = "b:"

	// prefixBlobRecord is the key prefix for blob descriptive records
	prefixBlobRecord = "bm:"

	// prefixNode is the key prefix for DAG node records
	prefixNode = "n:"
)

func keyBlobContent(key cas.Key) []byte {
	return []byte(prefixBlobContent + string(key))
}

func keyBlobRecord(key cas.Key) []byte {
	return []byte(prefixBlobRecord + string(key))
}

func keyNode(key cas.Key) []byte {
	return []byte(prefixNode + string(key))
}
