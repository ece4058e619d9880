package state

import (
	"github.com/spf13/afero"

	"github.com/o2cms/cfmigrate/internal/errors"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open creates a store on the named backend. File backends live on fs;
// a nil fs means the OS filesystem. The store is not loaded.
func Open(fs afero.Fs, backend, path string) (*Store, error) {
	switch backend {
	case BackendFile, "":
		if fs == nil {
			fs = afero.NewOsFs()
		}
		return NewStore(NewFileBackend(fs, path)), nil
	case BackendSQLite:
		b, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return NewStore(b), nil
	default:
		return nil, errors.Newf("unknown state backend %q", backend).
			Component("state").
			Category(errors.CategoryConfiguration).
			Build()
	}
}
