package status

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/o2cms/cfmigrate/internal/state"
	"github.com/o2cms/cfmigrate/internal/testutil"
)

func progressedStore(t *testing.T) *state.Store {
	t.Helper()
	store := testutil.MemStore(t)
	require.NoError(t, store.SetSelection(state.Selection{
		Schemas:        []string{"blogPost", "author"},
		Strategy:       state.AssetsLinked,
		LinkedAssetIDs: []string{"a1", "a2", "a3"},
	}))
	store.SetDestination(state.Destination{SpaceID: "sp-1", EnvironmentID: "env-1"})
	store.SetTotal(state.StageAssets, 3)
	store.MarkMigrated(state.StageAssets, "a1", "A1")
	store.MarkMigrated(state.StageAssets, "a2", "A2")
	store.RecordFailure(state.StageAssets, "a3")
	store.SetRunID("run-7")
	require.NoError(t, store.Save(t.Context()))
	return store
}

func TestBuild(t *testing.T) {
	t.Parallel()

	r := Build(progressedStore(t))
	assert.Equal(t, testutil.StatePath, r.Location)
	require.NotNil(t, r.Selection)
	assert.Equal(t, 3, r.Selection.LinkedAssets)
	assert.Equal(t, 2, r.Migrated["assets"])
	assert.Equal(t, []string{"a3"}, r.Failed["assets"])
	assert.Equal(t, "run-7", r.LastRunID)
	require.NotNil(t, r.Destination)
	assert.Equal(t, "env-1", r.Destination.EnvironmentID)
}

func TestWriteText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Build(progressedStore(t)), FormatText))
	out := buf.String()
	assert.Contains(t, out, "blogPost, author")
	assert.Contains(t, out, "space sp-1")
	assert.Contains(t, out, "Failed assets (1): a3")
}

func TestWriteTextFreshState(t *testing.T) {
	t.Parallel()

	store := testutil.MemStore(t)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Build(store), ""))
	assert.Contains(t, buf.String(), "No migration started")
}

func TestWriteYAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Build(progressedStore(t)), FormatYAML))

	var doc struct {
		Destination struct {
			SpaceID string `yaml:"space_id"`
		} `yaml:"destination"`
		Failed  map[string][]string `yaml:"failed"`
		LastRun struct {
			Assets struct {
				Migrated int `yaml:"migrated"`
				Failed   int `yaml:"failed"`
			} `yaml:"assets"`
		} `yaml:"last_run"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "sp-1", doc.Destination.SpaceID)
	assert.Equal(t, []string{"a3"}, doc.Failed["assets"])
	assert.Equal(t, 2, doc.LastRun.Assets.Migrated)
	assert.Equal(t, 1, doc.LastRun.Assets.Failed)
}

func TestWriteUnknownFormat(t *testing.T) {
	t.Parallel()
	assert.Error(t, Write(&bytes.Buffer{}, Report{}, "xml"))
}
