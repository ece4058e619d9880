package migrate

import (
	"context"
	"slices"

	"github.com/o2cms/cfmigrate/internal/content"
	"github.com/o2cms/cfmigrate/internal/httpclient"
	"github.com/o2cms/cfmigrate/internal/logger"
	"github.com/o2cms/cfmigrate/internal/observability/metrics"
	"github.com/o2cms/cfmigrate/internal/state"
	"github.com/o2cms/cfmigrate/internal/transform"
)

// MigrateSchemas creates the selected schemas at the destination. A schema
// whose apiId already exists there is adopted instead of created.
func (m *Migrator) MigrateSchemas(ctx context.Context) error {
	const stage = state.StageSchemas
	log := GetLogger().WithContext(ctx).With(logger.String("stage", stage.Label()))

	sel, _ := m.store.Selection()
	all, err := m.source.ListSchemas(ctx)
	if err != nil {
		return fatal(err, stage, "list source schemas")
	}
	selected := selectSchemas(all, sel.Schemas)
	if len(selected) < len(sel.Schemas) {
		log.Warn("selected schemas missing at source",
			logger.Int("selected", len(sel.Schemas)),
			logger.Int("found", len(selected)))
	}

	existing, err := m.dest.ListSchemas(ctx)
	if err != nil {
		return fatal(err, stage, "list destination schemas")
	}
	byAPIID := make(map[string]string, len(existing))
	for _, s := range existing {
		byAPIID[s.APIID] = s.Sys.ID
	}

	m.store.SetTotal(stage, len(selected))
	cp := state.NewCheckpointer(m.store, m.opts.CheckpointInterval)
	log.Info("migrating schemas", logger.Int("total", len(selected)))

	for i := range selected {
		if ctx.Err() != nil {
			return m.interrupt(ctx, cp, stage)
		}
		schema := &selected[i]

		if m.store.IsMigrated(stage, schema.ID()) {
			m.store.RecordSkip(stage)
			m.recorder.RecordOperation(string(stage), metrics.StatusSkipped)
			continue
		}

		if destID, ok := byAPIID[schema.ID()]; ok {
			m.store.Adopt(stage, schema.ID(), destID)
			m.recorder.RecordOperation(string(stage), metrics.StatusSkipped)
			log.Info("schema exists at destination",
				logger.String("schema", schema.ID()),
				logger.String("destination_id", destID))
		} else {
			m.recorder.RecordOperation(string(stage), m.createSchema(ctx, schema).status())
		}

		if err := cp.Tick(ctx); err != nil {
			return fatal(err, stage, "checkpoint")
		}
		if err := httpclient.SleepContext(ctx, m.opts.ItemDelay); err != nil {
			return m.interrupt(ctx, cp, stage)
		}
	}

	if err := cp.Flush(ctx); err != nil {
		return fatal(err, stage, "checkpoint")
	}
	stats := m.store.Stats().Schemas
	log.Info("schemas done",
		logger.Int("migrated", stats.Migrated),
		logger.Int("skipped", stats.Skipped),
		logger.Int("failed", stats.Failed))
	return nil
}

func (m *Migrator) createSchema(ctx context.Context, schema *content.Schema) outcome {
	const stage = state.StageSchemas
	log := GetLogger().WithContext(ctx).With(logger.String("schema", schema.ID()))

	destID, err := m.dest.CreateSchema(ctx, transform.Schema(schema))
	if err != nil {
		err = itemError(err, stage, schema.ID(), "create schema")
		m.recorder.RecordError(string(stage), errorType(err))
		m.store.RecordFailure(stage, schema.ID())
		log.Error("schema creation failed", logger.Error(err))
		return outcomeFailed
	}
	m.store.MarkMigrated(stage, schema.ID(), destID)
	log.Info("schema created", logger.String("destination_id", destID))

	if err := m.dest.PublishSchema(ctx, destID); err != nil {
		m.recorder.RecordError(metrics.OpPublish, errorType(err))
		log.Warn("schema publish failed", logger.String("destination_id", destID), logger.Error(err))
	}
	return outcomeMigrated
}

// selectSchemas keeps the schemas named in ids, in listing order.
func selectSchemas(all []content.Schema, ids []string) []content.Schema {
	out := make([]content.Schema, 0, len(ids))
	for _, s := range all {
		if slices.Contains(ids, s.ID()) {
			out = append(out, s)
		}
	}
	return out
}

// interrupt saves progress and reports the cancellation.
func (m *Migrator) interrupt(ctx context.Context, cp *state.Checkpointer, stage state.Stage) error {
	if err := cp.Flush(ctx); err != nil {
		GetLogger().Error("state save after interruption failed", logger.Error(err))
	}
	GetLogger().WithContext(ctx).Warn("stage interrupted", logger.String("stage", stage.Label()))
	return cancelled(ctx, stage)
}
