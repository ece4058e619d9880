// Package state persists migration progress so an interrupted run resumes
// without duplicating work.
//
// The document keys match the state files written by earlier migration
// tooling, so an existing state file can be resumed.
package state

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Stage names a migration stage. The values double as the stats keys of the
// state document.
type Stage string

const (
	StageSchemas Stage = "content_types"
	StageAssets  Stage = "assets"
	StageRecords Stage = "entries"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageSchemas, StageAssets, StageRecords}

// Label returns the name used in logs and summaries.
func (s Stage) Label() string {
	switch s {
	case StageSchemas:
		return "schemas"
	case StageAssets:
		return "assets"
	case StageRecords:
		return "records"
	default:
		return string(s)
	}
}

// AssetStrategy selects which assets the asset stage moves.
type AssetStrategy string

const (
	// AssetsAll migrates every source asset.
	AssetsAll AssetStrategy = "all"
	// AssetsLinked migrates only assets referenced by selected records.
	AssetsLinked AssetStrategy = "linked"
)

// Valid reports whether s is a known strategy.
func (s AssetStrategy) Valid() bool {
	return s == AssetsAll || s == AssetsLinked
}

// StageStats counts the outcome of one stage in the current run.
type StageStats struct {
	Total    int `json:"total" yaml:"total"`
	Migrated int `json:"migrated" yaml:"migrated"`
	Skipped  int `json:"skipped" yaml:"skipped"`
	Failed   int `json:"failed" yaml:"failed"`
}

// Processed is the number of items with an outcome.
func (s StageStats) Processed() int {
	return s.Migrated + s.Skipped + s.Failed
}

// Stats holds per-stage counts.
type Stats struct {
	Schemas StageStats `json:"content_types" yaml:"schemas"`
	Assets  StageStats `json:"assets" yaml:"assets"`
	Records StageStats `json:"entries" yaml:"records"`
}

// For returns the stats of stage.
func (s *Stats) For(stage Stage) *StageStats {
	switch stage {
	case StageSchemas:
		return &s.Schemas
	case StageAssets:
		return &s.Assets
	default:
		return &s.Records
	}
}

// Selection is the scope of a migration, fixed for the life of a state.
type Selection struct {
	Schemas        []string
	Strategy       AssetStrategy
	LinkedAssetIDs []string
}

// Destination identifies where a state's items were created.
type Destination struct {
	SpaceID       string `yaml:"space_id"`
	SpaceName     string `yaml:"space_name,omitempty"`
	EnvironmentID string `yaml:"environment_id"`
}

// MigrationState is the persisted document.
type MigrationState struct {
	DestinationSpaceID       string `json:"o2_space_id"`
	DestinationSpaceName     string `json:"o2_space_name"`
	DestinationEnvironmentID string `json:"o2_environment_id"`

	SelectedSchemas []string      `json:"selected_content_types"`
	AssetStrategy   AssetStrategy `json:"asset_strategy"`
	LinkedAssetIDs  []string      `json:"linked_asset_ids"`

	SchemaMap map[string]string `json:"content_type_map"`
	AssetMap  map[string]string `json:"asset_map"`
	RecordMap map[string]string `json:"entry_map"`

	MigratedSchemas []string `json:"migrated_content_types"`
	MigratedAssets  []string `json:"migrated_assets"`
	MigratedRecords []string `json:"migrated_entries"`

	Stats Stats `json:"stats"`

	FailedSchemas []string `json:"failed_content_types,omitempty"`
	FailedAssets  []string `json:"failed_assets"`
	FailedRecords []string `json:"failed_entries"`

	LastRunID string    `json:"last_run_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// NewMigrationState returns an empty state.
func NewMigrationState() MigrationState {
	return MigrationState{
		AssetStrategy:   AssetsLinked,
		SelectedSchemas: []string{},
		LinkedAssetIDs:  []string{},
		SchemaMap:       map[string]string{},
		AssetMap:        map[string]string{},
		RecordMap:       map[string]string{},
		MigratedSchemas: []string{},
		MigratedAssets:  []string{},
		MigratedRecords: []string{},
		FailedAssets:    []string{},
		FailedRecords:   []string{},
	}
}

// normalize fills nil collections left by older or hand-edited documents.
func (m *MigrationState) normalize() {
	fresh := NewMigrationState()
	if m.AssetStrategy == "" {
		m.AssetStrategy = fresh.AssetStrategy
	}
	for _, p := range []*[]string{
		&m.SelectedSchemas, &m.LinkedAssetIDs,
		&m.MigratedSchemas, &m.MigratedAssets, &m.MigratedRecords,
		&m.FailedAssets, &m.FailedRecords,
	} {
		if *p == nil {
			*p = []string{}
		}
	}
	for _, p := range []*map[string]string{&m.SchemaMap, &m.AssetMap, &m.RecordMap} {
		if *p == nil {
			*p = map[string]string{}
		}
	}
}

// HasSelection reports whether the scope has been chosen.
func (m *MigrationState) HasSelection() bool {
	return len(m.SelectedSchemas) > 0
}

func (m *MigrationState) idMap(stage Stage) map[string]string {
	switch stage {
	case StageSchemas:
		return m.SchemaMap
	case StageAssets:
		return m.AssetMap
	default:
		return m.RecordMap
	}
}

func (m *MigrationState) migratedList(stage Stage) *[]string {
	switch stage {
	case StageSchemas:
		return &m.MigratedSchemas
	case StageAssets:
		return &m.MigratedAssets
	default:
		return &m.MigratedRecords
	}
}

func (m *MigrationState) failedList(stage Stage) *[]string {
	switch stage {
	case StageSchemas:
		return &m.FailedSchemas
	case StageAssets:
		return &m.FailedAssets
	default:
		return &m.FailedRecords
	}
}

// validate checks that, per stage, the id map keys and the migrated set are
// the same ids.
func (m *MigrationState) validate() error {
	if !m.AssetStrategy.Valid() {
		return fmt.Errorf("unknown asset strategy %q", m.AssetStrategy)
	}
	for _, stage := range Stages {
		ids := m.idMap(stage)
		migrated := *m.migratedList(stage)

		seen := make(map[string]struct{}, len(migrated))
		for _, id := range migrated {
			if _, dup := seen[id]; dup {
				return fmt.Errorf("%s: %q listed as migrated twice", stage.Label(), id)
			}
			seen[id] = struct{}{}
			if _, ok := ids[id]; !ok {
				return fmt.Errorf("%s: %q migrated without a destination id", stage.Label(), id)
			}
		}
		for _, id := range slices.Sorted(maps.Keys(ids)) {
			if _, ok := seen[id]; !ok {
				return fmt.Errorf("%s: %q mapped but not marked migrated", stage.Label(), id)
			}
		}
	}
	return nil
}

// clone returns a deep copy.
func (m *MigrationState) clone() MigrationState {
	out := *m
	out.SelectedSchemas = slices.Clone(m.SelectedSchemas)
	out.LinkedAssetIDs = slices.Clone(m.LinkedAssetIDs)
	out.SchemaMap = maps.Clone(m.SchemaMap)
	out.AssetMap = maps.Clone(m.AssetMap)
	out.RecordMap = maps.Clone(m.RecordMap)
	out.MigratedSchemas = slices.Clone(m.MigratedSchemas)
	out.MigratedAssets = slices.Clone(m.MigratedAssets)
	out.MigratedRecords = slices.Clone(m.MigratedRecords)
	out.FailedSchemas = slices.Clone(m.FailedSchemas)
	out.FailedAssets = slices.Clone(m.FailedAssets)
	out.FailedRecords = slices.Clone(m.FailedRecords)
	return out
}
