package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MigrationMetrics contains Prometheus metrics for migration stages.
type MigrationMetrics struct {
	registry *prometheus.Registry

	itemsTotal        *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	transferredBytes  *prometheus.CounterVec
	workersBusy       prometheus.Gauge
}

// NewMigrationMetrics creates and registers migration metrics.
func NewMigrationMetrics(registry *prometheus.Registry) (*MigrationMetrics, error) {
	m := &MigrationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MigrationMetrics) initMetrics() {
	m.itemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfmigrate_items_total",
			Help: "Items processed per stage by outcome",
		},
		[]string{"stage", "status"}, // status: migrated, skipped, failed
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfmigrate_errors_total",
			Help: "Errors per operation by category",
		},
		[]string{"operation", "error_type"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "cfmigrate_operation_duration_seconds",
			Help: "Time taken by migration operations",
			// 10ms to ~40s covers metadata calls through large file transfers
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
		},
		[]string{"operation"},
	)

	m.transferredBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfmigrate_transferred_bytes_total",
			Help: "Asset bytes moved by direction",
		},
		[]string{"direction"},
	)

	m.workersBusy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cfmigrate_asset_workers_busy",
		Help: "Asset workers currently processing an item",
	})
}

// Describe implements the Collector interface
func (m *MigrationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.itemsTotal.Describe(ch)
	m.errorsTotal.Describe(ch)
	m.operationDuration.Describe(ch)
	m.transferredBytes.Describe(ch)
	m.workersBusy.Describe(ch)
}

// Collect implements the Collector interface
func (m *MigrationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.itemsTotal.Collect(ch)
	m.errorsTotal.Collect(ch)
	m.operationDuration.Collect(ch)
	m.transferredBytes.Collect(ch)
	m.workersBusy.Collect(ch)
}

// RecordOperation records an item outcome for a stage.
func (m *MigrationMetrics) RecordOperation(stage, status string) {
	m.itemsTotal.WithLabelValues(stage, status).Inc()
}

// RecordDuration records the duration of an operation.
func (m *MigrationMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError records an error of an operation.
func (m *MigrationMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// AddTransferredBytes counts asset bytes.
func (m *MigrationMetrics) AddTransferredBytes(direction string, n int64) {
	if n > 0 {
		m.transferredBytes.WithLabelValues(direction).Add(float64(n))
	}
}

// WorkerBusy adjusts the busy worker gauge by delta.
func (m *MigrationMetrics) WorkerBusy(delta int) {
	m.workersBusy.Add(float64(delta))
}
