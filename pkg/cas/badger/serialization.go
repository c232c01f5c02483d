package badger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/marmos91/depotfs/pkg/cas"
)

// Serialization Strategy
// ======================
//
// Blob content is stored as raw bytes (no encoding overhead on the hot
// path). Descriptive records use JSON: they are small, change rarely, and
// being human-readable makes the database easy to inspect with badger's
// CLI tooling.

// blobRecord is the stored descriptive record of a blob. Content lives
// under a separate key.
type blobRecord struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Size        uint64            `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
}

// nodeRecord is the stored representation of a DAG node.
type nodeRecord struct {
	Children  []cas.Key    `json:"children,omitempty"`
	Kind      cas.NodeKind `json:"kind"`
	Size      uint64       `json:"size"`
	CreatedAt time.Time    `json:"created_at"`
}

func encodeBlobRecord(record *blobRecord) ([]byte, error) {
	bytes, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode blob record: %w", err)
	}
	return bytes, nil
}

func decodeBlobRecord(bytes []byte) (*blobRecord, error) {
	var record blobRecord
	if err := json.Unmarshal(bytes, &record); err != nil {
		return nil, fmt.Errorf("failed to decode blob record: %w", err)
	}
	return &record, nil
}

func encodeNodeRecord(record *nodeRecord) ([]byte, error) {
	bytes, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node record: %w", err)
	}
	return bytes, nil
}

func decodeNodeRecord(bytes []byte) (*nodeRecord, error) {
	var record nodeRecord
	if err := json.Unmarshal(bytes, &record); err != nil {
		return nil, fmt.Errorf("failed to decode node record: %w", err)
	}
	return &record, nil
}
