// Package observability wires the migration metric collectors into one
// registry and exports them.
package observability

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/o2cms/cfmigrate/internal/logger"
	"github.com/o2cms/cfmigrate/internal/observability/metrics"
)

// API labels for the request counters.
const (
	APISource      = "source"
	APIDestination = "destination"
	APIDownload    = "download"
)

// Metrics holds all the metric collectors of a run.
type Metrics struct {
	registry  *prometheus.Registry
	Migration *metrics.MigrationMetrics
	API       *metrics.APIMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	migrationMetrics, err := metrics.NewMigrationMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration metrics: %w", err)
	}

	apiMetrics, err := metrics.NewAPIMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create API metrics: %w", err)
	}

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}

	return &Metrics{
		registry:  registry,
		Migration: migrationMetrics,
		API:       apiMetrics,
	}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observer returns an HTTP exchange hook counting requests under api.
// A nil Metrics yields a nil hook.
func (m *Metrics) Observer(api string) func(*http.Request, *http.Response, error) {
	if m == nil {
		return nil
	}
	return m.API.Hook(api)
}

// Recorder returns the migration recorder, or a no-op one for nil Metrics.
func (m *Metrics) Recorder() metrics.Recorder {
	if m == nil {
		return metrics.NewNoOpRecorder()
	}
	return m.Migration
}

// WriteTextfile writes every metric in the text exposition format to path,
// for pickup by a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	GetLogger().Info("metrics written", logger.String("path", path))
	return nil
}
