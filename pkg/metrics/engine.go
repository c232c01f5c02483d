package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics provides observability for engine operations.
//
// This interface is optional - if not provided to the engine, operations
// proceed without metrics collection (zero overhead).
type EngineMetrics interface {
	// RecordOperation records a completed engine operation with its name,
	// duration, and outcome. Operation names match the engine methods
	// (e.g. "WriteBlob", "ReadBlob", "CommitTicket").
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordBlobWrite records the size of a stored blob.
	RecordBlobWrite(bytes uint64)

	// RecordBlobRead records the size of a served blob.
	RecordBlobRead(bytes uint64)

	// RecordTicketCommit records a successful ticket commit.
	RecordTicketCommit()
}

// engineMetrics is the Prometheus implementation of EngineMetrics.
type engineMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	blobWriteBytes    prometheus.Counter
	blobReadBytes     prometheus.Counter
	ticketCommits     prometheus.Counter
}

// NewEngineMetrics creates a new Prometheus-backed EngineMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry
// not called).
func NewEngineMetrics() EngineMetrics {
	if !IsEnabled() {
		return &noopEngineMetrics{}
	}

	reg := GetRegistry()

	return &engineMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "depotfs_engine_operations_total",
				Help: "Total number of engine operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "depotfs_engine_operation_duration_seconds",
				Help: "Duration of engine operations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.0005, // 500µs
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
					1,      // 1s
				},
			},
			[]string{"operation"},
		),
		blobWriteBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "depotfs_engine_blob_write_bytes_total",
				Help: "Total bytes written to the blob store through the engine",
			},
		),
		blobReadBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "depotfs_engine_blob_read_bytes_total",
				Help: "Total bytes read from the blob store through the engine",
			},
		),
		ticketCommits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "depotfs_engine_ticket_commits_total",
				Help: "Total number of successful ticket commits",
			},
		),
	}
}

func (m *engineMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *engineMetrics) RecordBlobWrite(bytes uint64) {
	m.blobWriteBytes.Add(float64(bytes))
}

func (m *engineMetrics) RecordBlobRead(bytes uint64) {
	m.blobReadBytes.Add(float64(bytes))
}

func (m *engineMetrics) RecordTicketCommit() {
	m.ticketCommits.Inc()
}

// noopEngineMetrics is returned when metrics are disabled.
type noopEngineMetrics struct{}

func (*noopEngineMetrics) RecordOperation(string, time.Duration, error) {}
func (*noopEngineMetrics) RecordBlobWrite(uint64)                       {}
func (*noopEngineMetrics) RecordBlobRead(uint64)                        {}
func (*noopEngineMetrics) RecordTicketCommit()                          {}
