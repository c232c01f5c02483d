package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineMetricsRecordsToRegistry(t *testing.T) {
	InitRegistry()
	m := NewEngineMetrics()

	m.RecordOperation("WriteBlob", 5*time.Millisecond, nil)
	m.RecordOperation("WriteBlob", time.Millisecond, errors.New("boom"))
	m.RecordBlobWrite(128)
	m.RecordBlobRead(64)
	m.RecordTicketCommit()

	families, err := GetRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["depotfs_engine_operations_total"])
	assert.True(t, names["depotfs_engine_operation_duration_seconds"])
	assert.True(t, names["depotfs_engine_blob_write_bytes_total"])
	assert.True(t, names["depotfs_engine_blob_read_bytes_total"])
	assert.True(t, names["depotfs_engine_ticket_commits_total"])
}
