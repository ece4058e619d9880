package migrate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/logger"
	"github.com/o2cms/cfmigrate/internal/observability/metrics"
	"github.com/o2cms/cfmigrate/internal/state"
)

// Summary describes a finished or interrupted run.
type Summary struct {
	RunID       string
	Stats       state.Stats
	Failed      map[state.Stage][]string
	Elapsed     time.Duration
	Interrupted bool
}

// FailedCount returns the number of failed items across stages.
func (s *Summary) FailedCount() int {
	n := 0
	for _, ids := range s.Failed {
		n += len(ids)
	}
	return n
}

// Run executes the stages in order: schemas, assets, records. The store must
// already hold a selection. State is saved before Run returns, whatever the
// outcome, including a panic inside a stage.
func (m *Migrator) Run(ctx context.Context) (summary Summary, err error) {
	runID := uuid.NewString()
	ctx = logger.WithTraceID(ctx, runID)
	log := GetLogger().WithContext(ctx)
	start := time.Now()

	summary = Summary{RunID: runID}
	finish := func(err error) (Summary, error) {
		if saveErr := m.store.Save(context.WithoutCancel(ctx)); saveErr != nil {
			log.Error("final state save failed", logger.Error(saveErr))
			if err == nil {
				err = fatal(saveErr, "", "save state")
			}
		}
		summary.Stats = m.store.Stats()
		summary.Failed = make(map[state.Stage][]string, len(state.Stages))
		for _, stage := range state.Stages {
			summary.Failed[stage] = m.store.FailedIDs(stage)
		}
		summary.Elapsed = time.Since(start)
		summary.Interrupted = errors.IsCategory(err, errors.CategoryCancellation)
		return summary, err
	}

	var current state.Stage
	defer func() {
		if r := recover(); r != nil {
			perr := fatal(recovered(r), current, "run stage")
			log.Error("migration aborted by panic",
				logger.String("stage", current.Label()),
				logger.Error(perr))
			summary, err = finish(perr)
		}
	}()

	sel, ok := m.store.Selection()
	if !ok {
		return finish(errors.Newf("no selection recorded in state").
			Component("migrate").
			Category(errors.CategoryState).
			Build())
	}
	m.store.SetRunID(runID)
	log.Info("migration run started",
		logger.String("run_id", runID),
		logger.Int("schemas", len(sel.Schemas)),
		logger.String("asset_strategy", string(sel.Strategy)),
		logger.String("state", m.store.Location()))

	stages := []struct {
		stage state.Stage
		skip  bool
		run   func(context.Context) error
	}{
		{state.StageSchemas, m.opts.SkipSchemas, m.MigrateSchemas},
		{state.StageAssets, m.opts.SkipAssets, m.MigrateAssets},
		{state.StageRecords, m.opts.SkipRecords, m.MigrateRecords},
	}
	for _, s := range stages {
		if s.skip {
			log.Info("stage skipped", logger.String("stage", s.stage.Label()))
			continue
		}
		current = s.stage
		started := time.Now()
		err := s.run(ctx)
		m.recorder.RecordDuration(metrics.OpStage+"_"+s.stage.Label(), time.Since(started).Seconds())
		if err != nil {
			if errors.IsCategory(err, errors.CategoryCancellation) {
				log.Warn("migration interrupted", logger.String("stage", s.stage.Label()))
			} else {
				log.Error("migration aborted", logger.String("stage", s.stage.Label()), logger.Error(err))
			}
			return finish(err)
		}
	}

	summary, err = finish(nil)
	log.Info("migration run finished",
		logger.Duration("elapsed", summary.Elapsed),
		logger.Int("failed", summary.FailedCount()))
	return summary, err
}
