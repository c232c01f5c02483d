package cas

import "bytes"

// nodeEncodingMagic versions the canonical node encoding. Changing the
// encoding changes every node key, so this must never be altered for
// already-deployed graphs.
const nodeEncodingMagic = "depotfs/node/v1"

// EncodeNode produces the canonical byte encoding of a node.
//
// The node key is defined as ComputeKey of this encoding, which makes the
// key a pure function of kind and ordered children. Keys use a fixed
// alphabet that cannot contain '\n', so newline separation is unambiguous.
func EncodeNode(kind NodeKind, children []Key) []byte {
	var buf bytes.Buffer
	buf.WriteString(nodeEncodingMagic)
	buf.WriteByte('\n')
	buf.WriteString(string(kind))
	for _, child := range children {
		buf.WriteByte('\n')
		buf.WriteString(string(child))
	}
	return buf.Bytes()
}

// ComputeNodeKey returns the content-addressed key of a node with the given
// kind and ordered children.
func ComputeNodeKey(kind NodeKind, children []Key) Key {
	return ComputeKey(EncodeNode(kind, children))
}

var emptyDictKey = ComputeNodeKey(NodeKindDict, nil)

// EmptyDictKey is the well-known key of a dict node with no children. It is
// the default root of a freshly created depot.
func EmptyDictKey() Key {
	return emptyDictKey
}
