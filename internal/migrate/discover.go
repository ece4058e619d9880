package migrate

import (
	"context"
	"maps"
	"slices"

	"github.com/o2cms/cfmigrate/internal/logger"
	"github.com/o2cms/cfmigrate/internal/resolver"
	"github.com/o2cms/cfmigrate/internal/state"
)

// DiscoverLinkedAssets returns the ids of assets referenced by the locale map
// fields of the records of schemas, directly or from rich text, in first-seen
// order.
func DiscoverLinkedAssets(ctx context.Context, src Source, schemas []string) ([]string, error) {
	seen := make(map[string]struct{})
	ids := []string{}

	for _, schemaID := range schemas {
		records, err := src.ListRecords(ctx, schemaID)
		if err != nil {
			return nil, err
		}
		for i := range records {
			fields := records[i].Fields
			for _, name := range slices.Sorted(maps.Keys(fields)) {
				value := fields[name]
				if value.Single {
					// not sent to the destination, see transform.RecordFields
					continue
				}
				for _, locale := range value.Locales() {
					found, err := resolver.CollectAssetIDs(value.Values[locale])
					if err != nil {
						GetLogger().Warn("skipping field too deep to scan",
							logger.String("record", records[i].ID()),
							logger.String("field", name))
						continue
					}
					for _, id := range found {
						if _, dup := seen[id]; dup {
							continue
						}
						seen[id] = struct{}{}
						ids = append(ids, id)
					}
				}
			}
		}
	}
	return ids, nil
}

// Select fixes the migration scope in the store. For the linked strategy the
// referenced assets are discovered now and kept in the state.
func (m *Migrator) Select(ctx context.Context, schemas []string, strategy state.AssetStrategy) error {
	sel := state.Selection{Schemas: schemas, Strategy: strategy}
	if strategy == state.AssetsLinked {
		ids, err := DiscoverLinkedAssets(ctx, m.source, schemas)
		if err != nil {
			return fatal(err, state.StageAssets, "discover linked assets")
		}
		sel.LinkedAssetIDs = ids
		GetLogger().WithContext(ctx).Info("linked assets discovered", logger.Int("count", len(ids)))
	}
	return m.store.SetSelection(sel)
}
