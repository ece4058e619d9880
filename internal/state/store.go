package state

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/logger"
)

// Store guards a MigrationState. Every read and write goes through its
// methods; it is safe for concurrent use.
type Store struct {
	backend Backend
	now     func() time.Time

	mu       sync.Mutex
	st       MigrationState
	migrated map[Stage]map[string]struct{}
	failed   map[Stage]map[string]struct{}
}

// NewStore returns a store over backend holding an empty state until Load.
func NewStore(backend Backend) *Store {
	s := &Store{backend: backend, now: time.Now}
	s.replace(NewMigrationState())
	return s
}

// replace installs st and rebuilds the lookup indexes. Caller holds mu or
// owns s exclusively.
func (s *Store) replace(st MigrationState) {
	s.st = st
	s.migrated = make(map[Stage]map[string]struct{}, len(Stages))
	s.failed = make(map[Stage]map[string]struct{}, len(Stages))
	for _, stage := range Stages {
		s.migrated[stage] = toSet(*st.migratedList(stage))
		s.failed[stage] = toSet(*st.failedList(stage))
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Load reads the persisted state, or starts empty when none exists. A
// document that cannot be decoded or breaks the map/set invariant is
// rejected rather than repaired.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.backend.Read(ctx)
	if errors.Is(err, ErrNoState) {
		s.mu.Lock()
		s.replace(NewMigrationState())
		s.mu.Unlock()
		GetLogger().Info("no saved state, starting fresh", logger.String("location", s.backend.Location()))
		return nil
	}
	if err != nil {
		return errors.New(fmt.Errorf("read state: %w", err)).
			Component("state").
			Category(errors.CategoryState).
			Context("location", s.backend.Location()).
			Build()
	}

	st, err := Decode(data)
	if err != nil {
		return errors.New(err).
			Component("state").
			Category(errors.CategoryState).
			Priority(errors.PriorityHigh).
			Context("location", s.backend.Location()).
			Build()
	}

	s.mu.Lock()
	s.replace(st)
	s.mu.Unlock()

	GetLogger().Info("state loaded",
		logger.String("location", s.backend.Location()),
		logger.Int("schemas", len(st.MigratedSchemas)),
		logger.Int("assets", len(st.MigratedAssets)),
		logger.Int("records", len(st.MigratedRecords)))
	return nil
}

// Decode parses and validates a state document.
func Decode(data []byte) (MigrationState, error) {
	var st MigrationState
	if err := json.Unmarshal(data, &st); err != nil {
		return MigrationState{}, fmt.Errorf("corrupt state: %w", err)
	}
	st.normalize()
	if err := st.validate(); err != nil {
		return MigrationState{}, fmt.Errorf("corrupt state: %w", err)
	}
	return st, nil
}

// Save persists a consistent snapshot of the state.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	s.st.UpdatedAt = s.now().UTC()
	data, err := json.MarshalIndent(&s.st, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return errors.New(fmt.Errorf("encode state: %w", err)).
			Component("state").
			Category(errors.CategoryState).
			Build()
	}

	if err := s.backend.Write(ctx, data); err != nil {
		return errors.New(fmt.Errorf("write state: %w", err)).
			Component("state").
			Category(errors.CategoryState).
			Priority(errors.PriorityHigh).
			Context("location", s.backend.Location()).
			Build()
	}
	GetLogger().Debug("state saved", logger.Int("bytes", len(data)))
	return nil
}

// Reset deletes the persisted state and empties the store.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.backend.Remove(ctx); err != nil {
		return errors.New(fmt.Errorf("remove state: %w", err)).
			Component("state").
			Category(errors.CategoryState).
			Build()
	}
	s.mu.Lock()
	s.replace(NewMigrationState())
	s.mu.Unlock()
	GetLogger().Info("state reset", logger.String("location", s.backend.Location()))
	return nil
}

// MarkMigrated records that sourceID was created at the destination as
// destID and counts it as migrated. It reports false, changing nothing, when
// the item was already migrated.
func (s *Store) MarkMigrated(stage Stage, sourceID, destID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.markLocked(stage, sourceID, destID) {
		return false
	}
	s.st.Stats.For(stage).Migrated++
	return true
}

// Adopt maps sourceID to an item that already exists at the destination and
// counts it as skipped.
func (s *Store) Adopt(stage Stage, sourceID, destID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.markLocked(stage, sourceID, destID) {
		return false
	}
	s.st.Stats.For(stage).Skipped++
	return true
}

func (s *Store) markLocked(stage Stage, sourceID, destID string) bool {
	if _, done := s.migrated[stage][sourceID]; done {
		return false
	}
	s.st.idMap(stage)[sourceID] = destID
	list := s.st.migratedList(stage)
	*list = append(*list, sourceID)
	s.migrated[stage][sourceID] = struct{}{}

	// a retry that succeeds clears the earlier failure
	if _, failed := s.failed[stage][sourceID]; failed {
		delete(s.failed[stage], sourceID)
		failedList := s.st.failedList(stage)
		*failedList = slices.DeleteFunc(*failedList, func(id string) bool { return id == sourceID })
	}
	return true
}

// IsMigrated reports whether sourceID completed in an earlier or the current run.
func (s *Store) IsMigrated(stage Stage, sourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.migrated[stage][sourceID]
	return ok
}

// RecordFailure counts a terminal failure of sourceID and keeps its id for a
// later re-run.
func (s *Store) RecordFailure(stage Stage, sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Stats.For(stage).Failed++
	if sourceID == "" {
		return
	}
	if _, dup := s.failed[stage][sourceID]; dup {
		return
	}
	s.failed[stage][sourceID] = struct{}{}
	list := s.st.failedList(stage)
	*list = append(*list, sourceID)
}

// RecordSkip counts an item that needed no work.
func (s *Store) RecordSkip(stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Stats.For(stage).Skipped++
}

// SetTotal starts a fresh count for stage with n items in scope.
func (s *Store) SetTotal(stage Stage, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.st.Stats.For(stage) = StageStats{Total: n}
}

// SchemaID returns the destination id of a source schema.
func (s *Store) SchemaID(sourceID string) (string, bool) {
	return s.lookup(StageSchemas, sourceID)
}

// AssetID returns the destination id of a source asset.
func (s *Store) AssetID(sourceID string) (string, bool) {
	return s.lookup(StageAssets, sourceID)
}

// RecordID returns the destination id of a source record.
func (s *Store) RecordID(sourceID string) (string, bool) {
	return s.lookup(StageRecords, sourceID)
}

func (s *Store) lookup(stage Stage, sourceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.st.idMap(stage)[sourceID]
	return id, ok
}

// Stats returns a copy of the counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Stats
}

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() MigrationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clone()
}

// FailedIDs returns the ids of items that failed in stage.
func (s *Store) FailedIDs(stage Stage) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(*s.st.failedList(stage))
}

// Selection returns the migration scope and whether one has been chosen.
func (s *Store) Selection() (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Selection{
		Schemas:        slices.Clone(s.st.SelectedSchemas),
		Strategy:       s.st.AssetStrategy,
		LinkedAssetIDs: slices.Clone(s.st.LinkedAssetIDs),
	}, s.st.HasSelection()
}

// SetSelection fixes the migration scope. It fails once a scope is set;
// changing scope needs a reset.
func (s *Store) SetSelection(sel Selection) error {
	if !sel.Strategy.Valid() {
		return errors.Newf("unknown asset strategy %q", sel.Strategy).
			Component("state").
			Category(errors.CategoryValidation).
			Build()
	}
	if len(sel.Schemas) == 0 {
		return errors.Newf("selection must name at least one schema").
			Component("state").
			Category(errors.CategoryValidation).
			Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.HasSelection() {
		return errors.Newf("selection already fixed for this state; reset to change it").
			Component("state").
			Category(errors.CategoryState).
			Build()
	}
	s.st.SelectedSchemas = slices.Clone(sel.Schemas)
	s.st.AssetStrategy = sel.Strategy
	s.st.LinkedAssetIDs = slices.Clone(sel.LinkedAssetIDs)
	if s.st.LinkedAssetIDs == nil {
		s.st.LinkedAssetIDs = []string{}
	}
	return nil
}

// Destination returns the bound destination, if any.
func (s *Store) Destination() (Destination, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := Destination{
		SpaceID:       s.st.DestinationSpaceID,
		SpaceName:     s.st.DestinationSpaceName,
		EnvironmentID: s.st.DestinationEnvironmentID,
	}
	return d, d.SpaceID != ""
}

// SetDestination binds the state to a destination space and environment.
func (s *Store) SetDestination(d Destination) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.DestinationSpaceID = d.SpaceID
	s.st.DestinationSpaceName = d.SpaceName
	s.st.DestinationEnvironmentID = d.EnvironmentID
}

// SetRunID records the id of the run that last touched the state.
func (s *Store) SetRunID(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.LastRunID = runID
}

// Location describes where the state is persisted.
func (s *Store) Location() string {
	return s.backend.Location()
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
