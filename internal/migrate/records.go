package migrate

import (
	"context"

	"github.com/o2cms/cfmigrate/internal/content"
	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/httpclient"
	"github.com/o2cms/cfmigrate/internal/logger"
	"github.com/o2cms/cfmigrate/internal/observability/metrics"
	"github.com/o2cms/cfmigrate/internal/state"
	"github.com/o2cms/cfmigrate/internal/transform"
)

// MigrateRecords creates the records of every selected schema with their
// references rewritten to destination ids. A reference to an item not yet
// migrated keeps its source id.
func (m *Migrator) MigrateRecords(ctx context.Context) error {
	const stage = state.StageRecords
	log := GetLogger().WithContext(ctx).With(logger.String("stage", stage.Label()))

	sel, _ := m.store.Selection()
	type batch struct {
		schemaID string
		records  []content.Record
	}
	batches := make([]batch, 0, len(sel.Schemas))
	total := 0
	for _, schemaID := range sel.Schemas {
		records, err := m.source.ListRecords(ctx, schemaID)
		if err != nil {
			if errors.IsNotFound(err) {
				log.Warn("schema has no records at source", logger.String("schema", schemaID))
				continue
			}
			return fatal(err, stage, "list source records")
		}
		batches = append(batches, batch{schemaID: schemaID, records: records})
		total += len(records)
	}

	m.store.SetTotal(stage, total)
	cp := state.NewCheckpointer(m.store, m.opts.CheckpointInterval)
	log.Info("migrating records", logger.Int("total", total), logger.Int("schemas", len(batches)))

	for _, b := range batches {
		for i := range b.records {
			if ctx.Err() != nil {
				return m.interrupt(ctx, cp, stage)
			}
			record := &b.records[i]

			if m.store.IsMigrated(stage, record.ID()) {
				m.store.RecordSkip(stage)
				m.recorder.RecordOperation(string(stage), metrics.StatusSkipped)
				continue
			}

			m.recorder.RecordOperation(string(stage), m.createRecord(ctx, b.schemaID, record).status())

			if err := cp.Tick(ctx); err != nil {
				return fatal(err, stage, "checkpoint")
			}
			if err := httpclient.SleepContext(ctx, m.opts.ItemDelay); err != nil {
				return m.interrupt(ctx, cp, stage)
			}
		}
	}

	if err := cp.Flush(ctx); err != nil {
		return fatal(err, stage, "checkpoint")
	}
	stats := m.store.Stats().Records
	log.Info("records done",
		logger.Int("migrated", stats.Migrated),
		logger.Int("skipped", stats.Skipped),
		logger.Int("failed", stats.Failed))
	return nil
}

func (m *Migrator) createRecord(ctx context.Context, listedSchema string, record *content.Record) outcome {
	const stage = state.StageRecords
	log := GetLogger().WithContext(ctx).With(logger.String("record", record.ID()))

	fail := func(err error, op string) outcome {
		err = itemError(err, stage, record.ID(), op)
		m.recorder.RecordError(string(stage), errorType(err))
		m.store.RecordFailure(stage, record.ID())
		log.Error("record migration failed", logger.Error(err))
		return outcomeFailed
	}

	schemaID := record.SchemaID()
	if schemaID == "" {
		schemaID = listedSchema
	}
	destSchema, ok := m.store.SchemaID(schemaID)
	if !ok {
		return fail(dependencyMissing(schemaID), "resolve schema")
	}

	payload, err := transform.RecordFields(record.Fields, m.store)
	if err != nil {
		return fail(err, "rewrite references")
	}

	destID, err := m.dest.CreateRecord(ctx, destSchema, payload)
	if err != nil {
		return fail(err, "create record")
	}
	m.store.MarkMigrated(stage, record.ID(), destID)
	log.Debug("record created", logger.String("destination_id", destID))

	if err := m.dest.PublishRecord(ctx, destID); err != nil {
		m.recorder.RecordError(metrics.OpPublish, errorType(err))
		log.Warn("record publish failed", logger.String("destination_id", destID), logger.Error(err))
	}
	return outcomeMigrated
}

func dependencyMissing(schemaID string) error {
	return errors.Newf("schema %q has no destination id", schemaID).
		Component("migrate").
		Category(errors.CategoryDependency).
		Context("schema", schemaID).
		Build()
}
