// Package metrics provides the Prometheus collectors of a migration run.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on this abstraction so tests can run without a registry.
type Recorder interface {
	// RecordOperation records an item outcome, e.g. ("assets", "migrated").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds,
	// e.g. ("asset_download", 1.2).
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its category.
	RecordError(operation, errorType string)
}

// TransferRecorder is implemented by recorders that also count bytes.
type TransferRecorder interface {
	AddTransferredBytes(direction string, n int64)
}

// NoOpRecorder discards everything.
type NoOpRecorder struct{}

// RecordOperation does nothing.
func (NoOpRecorder) RecordOperation(operation, status string) {}

// RecordDuration does nothing.
func (NoOpRecorder) RecordDuration(operation string, seconds float64) {}

// RecordError does nothing.
func (NoOpRecorder) RecordError(operation, errorType string) {}

// NewNoOpRecorder returns a recorder that discards everything.
func NewNoOpRecorder() Recorder {
	return NoOpRecorder{}
}
