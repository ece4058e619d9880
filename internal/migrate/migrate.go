// Package migrate moves schemas, assets and records from the source space to
// the destination, recording progress in a state.Store so an interrupted run
// resumes where it stopped.
package migrate

import (
	"context"
	"io"
	"runtime/debug"
	"time"

	"github.com/o2cms/cfmigrate/internal/content"
	"github.com/o2cms/cfmigrate/internal/destination"
	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/observability/metrics"
	"github.com/o2cms/cfmigrate/internal/state"
)

// Defaults for Options.
const (
	DefaultWorkers          = 5
	DefaultItemDelay        = 100 * time.Millisecond
	DefaultDownloadAttempts = 3
	DefaultDownloadBackoff  = time.Second
)

// Source reads the content being migrated.
type Source interface {
	ListSchemas(ctx context.Context) ([]content.Schema, error)
	ListAssets(ctx context.Context) ([]content.Asset, error)
	ListRecords(ctx context.Context, schemaID string) ([]content.Record, error)
}

// Destination receives the migrated content. Implementations are bound to a
// single space and environment.
type Destination interface {
	ListSchemas(ctx context.Context) ([]destination.Schema, error)
	CreateSchema(ctx context.Context, payload destination.SchemaPayload) (string, error)
	PublishSchema(ctx context.Context, id string) error

	Upload(ctx context.Context, filename, contentType string, file io.ReadSeeker) (string, error)
	CreateAsset(ctx context.Context, payload destination.AssetPayload) (string, error)
	PublishAsset(ctx context.Context, id string) error

	CreateRecord(ctx context.Context, schemaID string, payload destination.RecordPayload) (string, error)
	PublishRecord(ctx context.Context, id string) error
}

// URLSigner turns an asset URL into one that can be fetched.
type URLSigner interface {
	Sign(ctx context.Context, url string) (string, error)
}

// Options tunes a run.
type Options struct {
	// Workers is the asset pool size.
	Workers int
	// CheckpointInterval is the number of items between state saves.
	CheckpointInterval int
	// ItemDelay is slept after each schema and record.
	ItemDelay time.Duration

	SkipSchemas bool
	SkipAssets  bool
	SkipRecords bool
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		Workers:            DefaultWorkers,
		CheckpointInterval: state.DefaultCheckpointInterval,
		ItemDelay:          DefaultItemDelay,
	}
}

// Config wires a Migrator.
type Config struct {
	Source      Source
	Destination Destination
	Store       *state.Store
	Downloader  *Downloader

	// Signer is optional; without it asset URLs are fetched unsigned.
	Signer URLSigner
	// Recorder is optional.
	Recorder metrics.Recorder

	Options Options
}

// Migrator runs the migration stages against one store.
type Migrator struct {
	source     Source
	dest       Destination
	store      *state.Store
	downloader *Downloader
	signer     URLSigner
	recorder   metrics.Recorder
	opts       Options
}

// New creates a Migrator.
func New(cfg *Config) (*Migrator, error) {
	if cfg.Source == nil || cfg.Destination == nil || cfg.Store == nil || cfg.Downloader == nil {
		return nil, errors.Newf("migrator needs a source, a destination, a store and a downloader").
			Component("migrate").
			Category(errors.CategoryConfiguration).
			Build()
	}

	opts := cfg.Options
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = state.DefaultCheckpointInterval
	}
	if opts.ItemDelay < 0 {
		opts.ItemDelay = 0
	}

	recorder := cfg.Recorder
	if recorder == nil {
		recorder = metrics.NewNoOpRecorder()
	}

	return &Migrator{
		source:     cfg.Source,
		dest:       cfg.Destination,
		store:      cfg.Store,
		downloader: cfg.Downloader,
		signer:     cfg.Signer,
		recorder:   recorder,
		opts:       opts,
	}, nil
}

// outcome is the result of processing one item.
type outcome int

const (
	outcomeMigrated outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (o outcome) status() string {
	switch o {
	case outcomeMigrated:
		return metrics.StatusMigrated
	case outcomeSkipped:
		return metrics.StatusSkipped
	default:
		return metrics.StatusFailed
	}
}

// itemError wraps a per-item failure; the stage records it and continues.
func itemError(err error, stage state.Stage, sourceID, op string) error {
	return errors.New(err).
		Component("migrate").
		Category(errors.CategoryItemFailure).
		ItemContext(string(stage), sourceID).
		Context("operation", op).
		Build()
}

// fatal wraps an error that ends the run. Cancellation keeps its own category.
func fatal(err error, stage state.Stage, op string) error {
	if errors.IsCategory(err, errors.CategoryFatal) || errors.IsCategory(err, errors.CategoryCancellation) {
		return err
	}
	return errors.New(err).
		Component("migrate").
		Category(errors.CategoryFatal).
		Priority(errors.PriorityCritical).
		Context("stage", string(stage)).
		Context("operation", op).
		Build()
}

// recovered turns a panic value into an error carrying the stack.
func recovered(v any) error {
	return errors.Newf("panic: %v", v).
		Component("migrate").
		Context("stack", string(debug.Stack())).
		Build()
}

func cancelled(ctx context.Context, stage state.Stage) error {
	return errors.New(context.Cause(ctx)).
		Component("migrate").
		Category(errors.CategoryCancellation).
		Context("stage", string(stage)).
		Build()
}

// errorType is the metrics label for err.
func errorType(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		// the outermost item wrapper says nothing about the cause
		if ee.Category == errors.CategoryItemFailure {
			var inner *errors.EnhancedError
			if errors.As(ee.Err, &inner) {
				return inner.GetCategory()
			}
		}
		return ee.GetCategory()
	}
	return string(errors.CategoryGeneric)
}
