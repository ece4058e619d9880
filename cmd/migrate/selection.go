package migrate

import (
	"context"
	"slices"

	"github.com/o2cms/cfmigrate/internal/conf"
	"github.com/o2cms/cfmigrate/internal/content"
	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/logger"
	"github.com/o2cms/cfmigrate/internal/state"
)

type schemaLister interface {
	ListSchemas(ctx context.Context) ([]content.Schema, error)
}

type selector interface {
	Select(ctx context.Context, schemas []string, strategy state.AssetStrategy) error
}

// ensureSelection fixes the migration scope on a fresh state. A resumed
// state keeps its scope.
func ensureSelection(ctx context.Context, settings *conf.Settings, src schemaLister, m selector, store *state.Store, p Prompter) error {
	log := GetLogger()

	if sel, ok := store.Selection(); ok {
		snap := store.Snapshot()
		log.Info("resuming migration",
			logger.Int("schemas", len(sel.Schemas)),
			logger.String("asset_strategy", string(sel.Strategy)),
			logger.Int("migrated_schemas", len(snap.MigratedSchemas)),
			logger.Int("migrated_assets", len(snap.MigratedAssets)),
			logger.Int("migrated_records", len(snap.MigratedRecords)),
			logger.Int("failed_assets", len(snap.FailedAssets)),
			logger.Int("failed_records", len(snap.FailedRecords)))
		if want := settings.Migration.Schemas; len(want) > 0 && !slices.Equal(want, sel.Schemas) {
			log.Warn("ignoring configured content types, the saved selection applies; use --reset to change it",
				logger.Any("saved", sel.Schemas))
		}
		return nil
	}

	schemas, err := src.ListSchemas(ctx)
	if err != nil {
		return err
	}
	available := make([]string, 0, len(schemas))
	for i := range schemas {
		available = append(available, schemas[i].ID())
	}

	strategy := state.AssetStrategy(settings.Migration.AssetStrategy)
	var chosen []string

	switch {
	case len(settings.Migration.Schemas) > 0:
		for _, id := range settings.Migration.Schemas {
			if !slices.Contains(available, id) {
				log.Warn("configured content type not found in source", logger.String("schema", id))
				continue
			}
			chosen = append(chosen, id)
		}
	case p == nil:
		chosen = available
	default:
		if chosen, err = p.ChooseSchemas(ctx, schemas); err != nil {
			return err
		}
		if strategy, err = p.ChooseStrategy(ctx, strategy); err != nil {
			return err
		}
	}

	if len(chosen) == 0 {
		return errors.Newf("no content types to migrate").
			Component("cli").
			Category(errors.CategoryValidation).
			Build()
	}

	log.Info("migration scope selected",
		logger.Int("schemas", len(chosen)),
		logger.String("asset_strategy", string(strategy)))
	return m.Select(ctx, chosen, strategy)
}
