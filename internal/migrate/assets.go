package migrate

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/o2cms/cfmigrate/internal/content"
	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/logger"
	"github.com/o2cms/cfmigrate/internal/observability/metrics"
	"github.com/o2cms/cfmigrate/internal/signer"
	"github.com/o2cms/cfmigrate/internal/state"
	"github.com/o2cms/cfmigrate/internal/transform"
)

// assetResult is what a worker reports for one asset.
type assetResult struct {
	sourceID string
	destID   string
	outcome  outcome
	err      error
	bytes    int64
}

type busyRecorder interface {
	WorkerBusy(delta int)
}

// MigrateAssets moves the assets in scope through a fixed pool of workers.
// Workers only report results; this goroutine applies them to the store and
// drives checkpoints.
func (m *Migrator) MigrateAssets(ctx context.Context) error {
	const stage = state.StageAssets
	log := GetLogger().WithContext(ctx).With(logger.String("stage", stage.Label()))

	all, err := m.source.ListAssets(ctx)
	if err != nil {
		return fatal(err, stage, "list source assets")
	}
	sel, _ := m.store.Selection()
	scope := all
	if sel.Strategy == state.AssetsLinked {
		scope = linkedAssets(all, sel.LinkedAssetIDs)
	}

	m.store.SetTotal(stage, len(scope))
	pending := make([]content.Asset, 0, len(scope))
	for i := range scope {
		if m.store.IsMigrated(stage, scope[i].ID()) {
			m.store.RecordSkip(stage)
			m.recorder.RecordOperation(string(stage), metrics.StatusSkipped)
			continue
		}
		pending = append(pending, scope[i])
	}
	log.Info("migrating assets",
		logger.Int("total", len(scope)),
		logger.Int("pending", len(pending)),
		logger.Int("workers", m.opts.Workers),
		logger.String("strategy", string(sel.Strategy)))

	// dispatch stops on cancellation or a fatal checkpoint error
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	jobs := make(chan content.Asset)
	results := make(chan assetResult)

	var g errgroup.Group
	g.Go(func() error {
		defer close(jobs)
		for i := range pending {
			if dispatchCtx.Err() != nil {
				return nil
			}
			select {
			case <-dispatchCtx.Done():
				return nil
			case jobs <- pending[i]:
			}
		}
		return nil
	})
	for range m.opts.Workers {
		g.Go(func() error {
			// in-flight items finish even when the run is cancelled so a
			// created asset is never left unrecorded
			workCtx := context.WithoutCancel(ctx)
			for asset := range jobs {
				results <- m.migrateAsset(workCtx, &asset)
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	cp := state.NewCheckpointer(m.store, m.opts.CheckpointInterval)
	var checkpointErr error
	for r := range results {
		m.applyAssetResult(ctx, r)
		if checkpointErr != nil {
			continue
		}
		if err := cp.Tick(ctx); err != nil {
			checkpointErr = err
			stopDispatch()
		}
	}

	if checkpointErr != nil {
		return fatal(checkpointErr, stage, "checkpoint")
	}
	if ctx.Err() != nil {
		return m.interrupt(ctx, cp, stage)
	}
	if err := cp.Flush(ctx); err != nil {
		return fatal(err, stage, "checkpoint")
	}

	stats := m.store.Stats().Assets
	log.Info("assets done",
		logger.Int("migrated", stats.Migrated),
		logger.Int("skipped", stats.Skipped),
		logger.Int("failed", stats.Failed))
	return nil
}

func (m *Migrator) applyAssetResult(ctx context.Context, r assetResult) {
	const stage = state.StageAssets
	log := GetLogger().WithContext(ctx).With(logger.String("asset", r.sourceID))

	switch r.outcome {
	case outcomeMigrated:
		m.store.MarkMigrated(stage, r.sourceID, r.destID)
		log.Info("asset migrated",
			logger.String("destination_id", r.destID),
			logger.String("size", humanize.Bytes(uint64(max(r.bytes, 0)))))
	case outcomeSkipped:
		m.store.RecordSkip(stage)
	case outcomeFailed:
		m.store.RecordFailure(stage, r.sourceID)
		m.recorder.RecordError(string(stage), errorType(r.err))
		log.Error("asset migration failed", logger.Error(r.err))
	}
	m.recorder.RecordOperation(string(stage), r.outcome.status())
}

// migrateAsset runs on a worker. It must not touch the store. A panic fails
// only this asset.
func (m *Migrator) migrateAsset(ctx context.Context, asset *content.Asset) (res assetResult) {
	const stage = state.StageAssets
	defer func() {
		if r := recover(); r != nil {
			res = assetResult{
				sourceID: asset.ID(),
				outcome:  outcomeFailed,
				err:      itemError(recovered(r), stage, asset.ID(), "migrate asset"),
			}
		}
	}()
	if busy, ok := m.recorder.(busyRecorder); ok {
		busy.WorkerBusy(1)
		defer busy.WorkerBusy(-1)
	}
	log := GetLogger().WithContext(ctx).With(logger.String("asset", asset.ID()))
	res = assetResult{sourceID: asset.ID()}

	file := asset.Fields.File
	if !file.Present() {
		log.Info("asset has no usable file, skipping", logger.String("shape", file.Shape.String()))
		res.outcome = outcomeSkipped
		return res
	}
	info := file.Info

	fail := func(err error, op string) assetResult {
		res.outcome = outcomeFailed
		res.err = itemError(err, stage, asset.ID(), op)
		return res
	}

	url, err := m.sign(ctx, info.URL)
	if err != nil {
		return fail(err, "sign url")
	}

	start := time.Now()
	tmp, err := m.downloader.Download(ctx, url, info.FileName)
	if err != nil {
		return fail(err, metrics.OpAssetDownload)
	}
	defer func() {
		if err := tmp.Close(); err != nil {
			log.Warn("temp file cleanup failed", logger.Error(err))
		}
	}()
	m.recorder.RecordDuration(metrics.OpAssetDownload, time.Since(start).Seconds())
	res.bytes = tmp.Size
	if tr, ok := m.recorder.(metrics.TransferRecorder); ok {
		tr.AddTransferredBytes(metrics.DirectionDownload, tmp.Size)
	}

	start = time.Now()
	uploadID, err := m.dest.Upload(ctx, info.FileName, info.ContentType, tmp)
	if err != nil {
		return fail(err, metrics.OpAssetUpload)
	}
	m.recorder.RecordDuration(metrics.OpAssetUpload, time.Since(start).Seconds())
	if tr, ok := m.recorder.(metrics.TransferRecorder); ok {
		tr.AddTransferredBytes(metrics.DirectionUpload, tmp.Size)
	}

	destID, err := m.dest.CreateAsset(ctx, transform.AssetPayload(asset, uploadID))
	if err != nil {
		return fail(err, "create asset")
	}
	if err := m.dest.PublishAsset(ctx, destID); err != nil {
		m.recorder.RecordError(metrics.OpPublish, errorType(err))
		log.Warn("asset publish failed", logger.String("destination_id", destID), logger.Error(err))
	}

	res.outcome = outcomeMigrated
	res.destID = destID
	return res
}

func (m *Migrator) sign(ctx context.Context, url string) (string, error) {
	if m.signer == nil {
		return signer.NormalizeURL(url), nil
	}
	signed, err := m.signer.Sign(ctx, url)
	if err != nil {
		return "", errors.New(err).
			Component("migrate").
			Category(errors.CategoryCredential).
			Build()
	}
	return signed, nil
}

// linkedAssets keeps the assets named in ids, in listing order.
func linkedAssets(all []content.Asset, ids []string) []content.Asset {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]content.Asset, 0, len(ids))
	for i := range all {
		if _, ok := want[all[i].ID()]; ok {
			out = append(out, all[i])
		}
	}
	return out
}
