package migrate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/signer"
	"github.com/o2cms/cfmigrate/internal/state"
)

func TestPanicInStageSavesProgress(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.src.addSchema(t, schemaJSON("note", ""))
	for i := range 6 {
		h.src.addRecord(t, recordJSON(fmt.Sprintf("n%d", i), "note", map[string]string{"title": fmt.Sprintf(`"note %d"`, i)}))
	}
	h.dest.onRecord = func(n int) {
		if n == 4 {
			panic("destination exploded")
		}
	}

	m := h.migrator(t, Options{Workers: 1, CheckpointInterval: 10})
	require.NoError(t, m.Select(t.Context(), []string{"note"}, state.AssetsLinked))

	var (
		summary Summary
		err     error
	)
	require.NotPanics(t, func() { summary, err = m.Run(t.Context()) })
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFatal))
	assert.Contains(t, err.Error(), "destination exploded")
	assert.False(t, summary.Interrupted)
	assert.Equal(t, 3, summary.Stats.Records.Migrated)

	// records finished before the panic survive a restart
	h.store = h.loadStore(t)
	assert.Len(t, h.store.Snapshot().MigratedRecords, 3)
	assert.Len(t, h.store.Snapshot().MigratedSchemas, 1)
}

func TestPanicInAssetWorkerFailsOnlyThatAsset(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	for _, id := range []string{"a1", "a2", "a3"} {
		h.src.addAsset(t, assetJSON(id))
	}
	h.serveFiles("a1", "a2", "a3")
	h.dest.uploadErr = func(filename string) error {
		if filename == "a2.png" {
			panic("upload exploded")
		}
		return nil
	}

	m := h.migrator(t, Options{Workers: 3, CheckpointInterval: 2, SkipSchemas: true, SkipRecords: true})
	require.NoError(t, m.Select(t.Context(), []string{"note"}, state.AssetsAll))
	summary, err := m.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, state.StageStats{Total: 3, Migrated: 2, Failed: 1}, summary.Stats.Assets)
	assert.Equal(t, []string{"a2"}, summary.Failed[state.StageAssets])
	assert.Equal(t, 0, h.tempFiles(t))
}

func TestSignedDownloadsAndCredentialFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.src.addAsset(t, assetJSON("open"))
	h.src.addAsset(t, assetURLJSON("locked", "//secure.ctfassets.net/space/locked.png"))
	h.serveFiles("open")
	h.signer = signer.New(signer.IssuerFunc(func(context.Context, time.Time) (signer.Credential, error) {
		return signer.Credential{}, errors.NewStd("403 forbidden")
	}))

	m := h.migrator(t, Options{Workers: 2, CheckpointInterval: 2, SkipSchemas: true, SkipRecords: true})
	require.NoError(t, m.Select(t.Context(), []string{"note"}, state.AssetsAll))
	summary, err := m.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, state.StageStats{Total: 2, Migrated: 1, Failed: 1}, summary.Stats.Assets)
	assert.Equal(t, []string{"locked"}, summary.Failed[state.StageAssets])
	assert.True(t, h.store.IsMigrated(state.StageAssets, "open"))
	assert.Equal(t, int32(1), h.dest.createAsset.Load())
}

func TestAssetResumeRetriesOnlyRemaining(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("a%d", i)
		h.src.addAsset(t, assetJSON(ids[i]))
	}
	h.serveFiles(ids...)

	// a previous run got through three assets before it stopped
	for _, id := range ids[:3] {
		h.store.MarkMigrated(state.StageAssets, id, "prev-"+id)
	}
	require.NoError(t, h.store.Save(t.Context()))
	h.store = h.loadStore(t)

	m := h.migrator(t, Options{Workers: 4, CheckpointInterval: 2, SkipSchemas: true, SkipRecords: true})
	require.NoError(t, m.Select(t.Context(), []string{"note"}, state.AssetsAll))
	summary, err := m.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, int32(7), h.dest.createAsset.Load())
	assert.Equal(t, state.StageStats{Total: 10, Migrated: 7, Skipped: 3}, summary.Stats.Assets)
	assert.Equal(t, "prev-a0", h.store.Snapshot().AssetMap["a0"])
}
