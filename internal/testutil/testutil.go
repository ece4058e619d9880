// Package testutil provides shared test helpers.
package testutil

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/o2cms/cfmigrate/internal/state"
)

// StatePath is where MemStore keeps its document.
const StatePath = "/state.json"

// MemStore returns a loaded store backed by an in-memory filesystem.
func MemStore(t testing.TB) *state.Store {
	t.Helper()
	store, _ := MemStoreFs(t)
	return store
}

// MemStoreFs is MemStore that also returns the filesystem, for tests that
// inspect or corrupt the saved document.
func MemStoreFs(t testing.TB) (*state.Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store := state.NewStore(state.NewFileBackend(fs, StatePath))
	require.NoError(t, store.Load(t.Context()))
	return store, fs
}
